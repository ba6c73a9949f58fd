package cmd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/spec"
	"github.com/spf13/cobra"
)

var catalogOutput string

// catalogCmd renders the human-readable endpoint catalog.
var catalogCmd = &cobra.Command{
	Use:           "catalog",
	Short:         "Write a markdown catalog of every endpoint in the spec artifact",
	RunE:          writeCatalog,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringVarP(&catalogOutput, "output", "o", "catalog.md", "Output file, or - for stdout")
	catalogCmd.Flags().StringVar(&specPath, "spec", "", "Path to the resolved spec artifact (overrides CODEMODE_SPEC_PATH)")
}

func writeCatalog(cmd *cobra.Command, args []string) error {
	log := logger.New("catalog")

	cfg, err := loadCommandConfig()
	if err != nil {
		return err
	}

	index, err := spec.Load(cfg.SpecPath)
	if err != nil {
		return log.Errorf("failed to load spec %s: %w", cfg.SpecPath, err)
	}
	content := spec.Catalog(index.Get(), cfg.APIName)

	if catalogOutput == "-" {
		_, err := io.WriteString(cmd.OutOrStdout(), content)
		return err
	}

	if dir := filepath.Dir(catalogOutput); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return log.Errorf("error creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(catalogOutput, []byte(content), 0o644); err != nil {
		return log.Errorf("error writing catalog: %w", err)
	}
	log.Successf("Catalog written to %s", catalogOutput)
	return nil
}
