package observability

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Enabled           bool
	TracesEnabled     bool
	MetricsEnabled    bool
	ServiceName       string
	ServiceVersion    string
	Environment       string
	OTLPEndpoint      string
	TraceSamplingRate float64
}

// ResolveConfig reads the CODEMODE_OTEL_* variables over the defaults.
// Export is off unless CODEMODE_OTEL_ENABLED is true.
func ResolveConfig() Config {
	cfg := Config{
		Enabled:           false,
		TracesEnabled:     true,
		MetricsEnabled:    true,
		ServiceName:       "codemode",
		ServiceVersion:    "dev",
		Environment:       "development",
		OTLPEndpoint:      "localhost:4317",
		TraceSamplingRate: 1.0,
	}

	overrideBool("CODEMODE_OTEL_ENABLED", &cfg.Enabled)
	overrideBool("CODEMODE_OTEL_TRACES_ENABLED", &cfg.TracesEnabled)
	overrideBool("CODEMODE_OTEL_METRICS_ENABLED", &cfg.MetricsEnabled)
	overrideString("CODEMODE_OTEL_SERVICE_NAME", &cfg.ServiceName)
	overrideString("CODEMODE_OTEL_SERVICE_VERSION", &cfg.ServiceVersion)
	overrideString("CODEMODE_OTEL_ENVIRONMENT", &cfg.Environment)
	overrideString("CODEMODE_OTEL_ENDPOINT", &cfg.OTLPEndpoint)
	overrideFloat("CODEMODE_OTEL_TRACE_SAMPLING_RATIO", &cfg.TraceSamplingRate)

	if cfg.TraceSamplingRate < 0 {
		cfg.TraceSamplingRate = 0
	}
	if cfg.TraceSamplingRate > 1 {
		cfg.TraceSamplingRate = 1
	}
	cfg.OTLPEndpoint = strings.TrimSpace(cfg.OTLPEndpoint)

	return cfg
}

func overrideString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func overrideBool(name string, target *bool) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err == nil {
		*target = parsed
	}
}

func overrideFloat(name string, target *float64) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err == nil {
		*target = parsed
	}
}
