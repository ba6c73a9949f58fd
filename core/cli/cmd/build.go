package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/spec"
	"github.com/spf13/cobra"
)

var (
	buildSource string
	buildOut    string
)

// buildCmd fetches the upstream schema and writes the resolved spec artifact.
var buildCmd = &cobra.Command{
	Use:           "build",
	Short:         "Fetch, validate and resolve the OpenAPI schema into the spec artifact",
	RunE:          buildSpec,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildSource, "source", "s", "", "Schema URL or file path (overrides CODEMODE_SPEC_SOURCE)")
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Output path for the artifact (overrides CODEMODE_SPEC_PATH)")
}

func buildSpec(cmd *cobra.Command, args []string) error {
	log := logger.New("build")

	cfg, err := loadCommandConfig()
	if err != nil {
		return err
	}

	source := cfg.SpecSource
	if buildSource != "" {
		source = buildSource
	}
	out := cfg.SpecPath
	if buildOut != "" {
		out = buildOut
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolved, err := writeSpecArtifact(ctx, &http.Client{Timeout: cfg.HTTPTimeout}, source, out)
	if err != nil {
		return err
	}

	log.Successf("Spec artifact written to %s", out)
	log.Infof("%d endpoints: %s", len(spec.Endpoints(resolved)), spec.CategorySummary(resolved))
	return nil
}

func writeSpecArtifact(ctx context.Context, client *http.Client, source, out string) (*spec.ResolvedSpec, error) {
	log := logger.New("build")

	log.Infof("Building spec from %s", source)
	resolved, err := spec.Build(ctx, client, source)
	if err != nil {
		return nil, log.Errorf("error building spec: %w", err)
	}
	if err := spec.WriteArtifact(out, resolved); err != nil {
		return nil, log.Errorf("error writing spec artifact: %w", err)
	}
	return resolved, nil
}
