package internal

import (
	"os"
	"strconv"
	"strings"

	"github.com/hyperterse/codemode/core/config"
	"github.com/hyperterse/codemode/core/logger"
)

// Overrides are CLI flag values applied on top of the environment.
type Overrides struct {
	Port      string
	Transport string
	SpecPath  string
	LogTags   string
}

// LoadConfig resolves the configuration from the environment and applies
// flag overrides before validating.
func LoadConfig(overrides Overrides) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	cfg.Port = ResolvePort(overrides.Port, cfg)
	if overrides.Transport != "" {
		cfg.Transport = strings.ToLower(overrides.Transport)
	}
	if overrides.SpecPath != "" {
		cfg.SpecPath = overrides.SpecPath
	}
	if overrides.LogTags != "" {
		cfg.LogTags = overrides.LogTags
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// ResolvePort resolves the port from CLI flag, config (PORT env var), or default
func ResolvePort(cliPort string, cfg config.Config) string {
	if cliPort != "" {
		return cliPort
	}
	if cfg.Port != "" {
		return cfg.Port
	}
	return "8080"
}

// ResolveLogLevel resolves the log level from verbose flag, CLI flag,
// CODEMODE_LOG_LEVEL, or default
func ResolveLogLevel(verbose bool, cliLogLevel int) int {
	if verbose {
		return logger.LogLevelDebug
	}
	if cliLogLevel > 0 {
		return cliLogLevel
	}
	if level, err := strconv.Atoi(os.Getenv("CODEMODE_LOG_LEVEL")); err == nil && level > 0 {
		return level
	}
	return logger.LogLevelInfo
}

// ConfigureLogging applies level and tag filtering and, when toFile is set,
// mirrors logs to a file whose path is returned.
func ConfigureLogging(level int, tags string, toFile bool) (string, error) {
	logger.SetLogLevel(level)

	if tags == "" {
		tags = os.Getenv("CODEMODE_LOG_TAGS")
	}
	if tags != "" {
		logger.SetTagFilter(tags)
	}

	if !toFile {
		return "", nil
	}
	return logger.SetLogFile()
}
