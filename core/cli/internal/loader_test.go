package internal

import (
	"testing"

	"github.com/hyperterse/codemode/core/config"
	"github.com/hyperterse/codemode/core/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort(t *testing.T) {
	assert.Equal(t, "9000", ResolvePort("9000", config.Config{Port: "8081"}))
	assert.Equal(t, "8081", ResolvePort("", config.Config{Port: "8081"}))
	assert.Equal(t, "8080", ResolvePort("", config.Config{}))
}

func TestResolveLogLevel(t *testing.T) {
	t.Setenv("CODEMODE_LOG_LEVEL", "")
	assert.Equal(t, logger.LogLevelDebug, ResolveLogLevel(true, 1))
	assert.Equal(t, logger.LogLevelWarn, ResolveLogLevel(false, logger.LogLevelWarn))
	assert.Equal(t, logger.LogLevelInfo, ResolveLogLevel(false, 0))

	t.Setenv("CODEMODE_LOG_LEVEL", "1")
	assert.Equal(t, logger.LogLevelError, ResolveLogLevel(false, 0))
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	t.Setenv("CODEMODE_TRANSPORT", "stdio")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(Overrides{Port: "9191", Transport: "HTTP", SpecPath: "/tmp/spec.json"})
	require.NoError(t, err)
	assert.Equal(t, "9191", cfg.Port)
	assert.Equal(t, config.TransportHTTP, cfg.Transport)
	assert.Equal(t, "/tmp/spec.json", cfg.SpecPath)
}

func TestLoadConfigRejectsBadOverride(t *testing.T) {
	_, err := LoadConfig(Overrides{Transport: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Transport (oneof)")
}
