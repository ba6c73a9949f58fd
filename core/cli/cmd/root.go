package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperterse/codemode/core/cli/internal"
	"github.com/hyperterse/codemode/core/config"
	"github.com/hyperterse/codemode/core/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version stores the version string, set via SetVersion()
var version = "dev"

// SetVersion sets the version string (called from main.init())
func SetVersion(v string) {
	version = v
}

// GetVersion returns the current version string
func GetVersion() string {
	return version
}

var (
	envDir      string
	specPath    string
	port        string
	transport   string
	logLevel    int
	verbose     bool
	logTags     string
	logFile     bool
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "codemode",
	Short:         "codemode\nLet agents search and call a REST API by writing code",
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

// completionCmd is a hidden command for generating shell completions
var completionCmd = &cobra.Command{
	Use:          "completion [bash|zsh|fish|powershell]",
	Short:        "Generate shell completion script",
	Hidden:       true,
	ValidArgs:    []string{"bash", "zsh", "fish", "powershell"},
	Args:         cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletion(os.Stdout)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(completionCmd)
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the installed version and exit")

	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", "", "Directory to load .env files from before the working directory")
	rootCmd.PersistentFlags().IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (sets log level to DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides CODEMODE_LOG_TAGS env var")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Stream logs to a file in $TMPDIR/.codemode/logs/")

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		}
		return cmd.Help()
	}
}

// LoadEnvFiles attempts to load .env files from multiple locations.
// It tries each location in order and stops at the first successful load.
// Priority order:
// 1. From the provided directory (if not empty)
// 2. From the current working directory
// 3. From the directory containing the executable binary
// System environment variables always take precedence over .env file values.
func LoadEnvFiles(fromDir string) {
	envFiles := []string{".env.local", ".env.development", ".env"}

	if fromDir != "" {
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(fromDir, envFile)); err == nil {
				return
			}
		}
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			return
		}
	}

	if execPath, err := os.Executable(); err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = realPath
		}
		execDir := filepath.Dir(execPath)
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(execDir, envFile)); err == nil {
				return
			}
		}
	}
}

// loadCommandConfig loads .env files, configures logging and resolves the
// configuration with flag overrides applied.
func loadCommandConfig() (config.Config, error) {
	log := logger.New("main")

	LoadEnvFiles(envDir)
	filePath, err := internal.ConfigureLogging(internal.ResolveLogLevel(verbose, logLevel), logTags, logFile)
	if err != nil {
		return config.Config{}, log.Errorf("failed to initialize log file: %w", err)
	}
	if filePath != "" {
		log.Infof("Log file: %s", filePath)
	}

	cfg, err := internal.LoadConfig(internal.Overrides{
		Port:      port,
		Transport: transport,
		SpecPath:  specPath,
		LogTags:   logTags,
	})
	if err != nil {
		return config.Config{}, log.Errorf("%w", err)
	}
	return cfg, nil
}
