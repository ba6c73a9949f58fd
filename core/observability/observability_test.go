package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigDefaults(t *testing.T) {
	cfg := ResolveConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "codemode", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate)
}

func TestResolveConfigOverrides(t *testing.T) {
	t.Setenv("CODEMODE_OTEL_SERVICE_NAME", "codemode-test")
	t.Setenv("CODEMODE_OTEL_TRACE_SAMPLING_RATIO", "3")
	t.Setenv("CODEMODE_OTEL_METRICS_ENABLED", "false")

	cfg := ResolveConfig()
	assert.Equal(t, "codemode-test", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate)
	assert.False(t, cfg.MetricsEnabled)
}

func TestSetupDisabledUsesLocalProviders(t *testing.T) {
	providers, err := Setup(context.Background(), "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", ActiveConfig().ServiceVersion)

	ctx, span := StartSpan(context.Background(), "test")
	RecordSandboxRun(ctx, "query", "", 1.5)
	RecordToolCall(ctx, "search", true, 2)
	EndSpan(span, nil)

	require.NoError(t, providers.Shutdown(context.Background()))
}
