package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

type metrics struct {
	toolCallsTotal      metric.Int64Counter
	toolCallDuration    metric.Float64Histogram
	sandboxRunsTotal    metric.Int64Counter
	sandboxRunDuration  metric.Float64Histogram
	accountLookupsTotal metric.Int64Counter
	truncatedResponses  metric.Int64Counter
}

var (
	metricsOnce sync.Once
	m           metrics
)

func buildMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentName(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter),
		),
	), nil
}

func initInstruments() {
	metricsOnce.Do(func() {
		meter := otel.Meter("codemode/runtime")
		m.toolCallsTotal, _ = meter.Int64Counter("codemode.tool.calls_total")
		m.toolCallDuration, _ = meter.Float64Histogram("codemode.tool.call_duration_ms")
		m.sandboxRunsTotal, _ = meter.Int64Counter("codemode.sandbox.runs_total")
		m.sandboxRunDuration, _ = meter.Float64Histogram("codemode.sandbox.run_duration_ms")
		m.accountLookupsTotal, _ = meter.Int64Counter("codemode.accounts.lookups_total")
		m.truncatedResponses, _ = meter.Int64Counter("codemode.tool.truncated_responses_total")
	})
}

func RecordToolCall(ctx context.Context, tool string, success bool, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.Bool("success", success),
	)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	m.toolCallDuration.Record(ctx, durationMS, attrs)
}

// RecordSandboxRun counts one gateway run. code is empty on success.
func RecordSandboxRun(ctx context.Context, variant, code string, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrSandboxVariant, variant),
		attribute.String(AttrErrorType, code),
		attribute.Bool("success", code == ""),
	)
	m.sandboxRunsTotal.Add(ctx, 1, attrs)
	m.sandboxRunDuration.Record(ctx, durationMS, attrs)
}

func RecordAccountLookup(ctx context.Context, code string) {
	initInstruments()
	m.accountLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorType, code),
		attribute.Bool("success", code == ""),
	))
}

func RecordTruncation(ctx context.Context, tool string) {
	initInstruments()
	m.truncatedResponses.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrToolName, tool)))
}
