package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/spec"
	"github.com/spf13/cobra"
)

// validateCmd checks configuration and the spec artifact without serving.
var validateCmd = &cobra.Command{
	Use:           "validate",
	Short:         "Validate configuration and the spec artifact",
	RunE:          validateSetup,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&specPath, "spec", "", "Path to the resolved spec artifact (overrides CODEMODE_SPEC_PATH)")
}

func validateSetup(cmd *cobra.Command, args []string) error {
	log := logger.New("validate")

	cfg, err := loadCommandConfig()
	if err != nil {
		return err
	}

	index, err := spec.Load(cfg.SpecPath)
	if err != nil {
		return log.Errorf("validation failed: %w", err)
	}
	resolved := index.Get()
	endpoints := spec.Endpoints(resolved)
	if len(endpoints) == 0 {
		return log.Errorf("validation failed: %s has no endpoints", cfg.SpecPath)
	}
	var doc any
	if err := json.Unmarshal([]byte(index.Source()), &doc); err != nil {
		return log.Errorf("validation failed: %w", err)
	}
	if spec.ContainsRefs(doc) {
		return log.Errorf("validation failed: %s still contains $ref entries; rebuild it", cfg.SpecPath)
	}

	log.Successf("Configuration is valid")
	fmt.Fprintf(cmd.OutOrStdout(), "API:       %s (%s)\n", cfg.APIName, cfg.APIBaseURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Spec:      %s\n", cfg.SpecPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Endpoints: %d\n", len(endpoints))
	fmt.Fprintf(cmd.OutOrStdout(), "Transport: %s\n", cfg.Transport)
	if cfg.FixedAccount() {
		fmt.Fprintf(cmd.OutOrStdout(), "Account:   %s\n", cfg.AccountID)
	}
	return nil
}
