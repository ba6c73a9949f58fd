package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperterse/codemode/core/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Providers struct {
	config        Config
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
}

var (
	providersMu sync.RWMutex
	active      *Providers
)

type otelLoggerErrorHandler struct {
	log *logger.Logger
}

func (h otelLoggerErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.log.Warnf("OpenTelemetry warning: %v", err)
}

// Setup installs the global tracer and meter providers.
func Setup(ctx context.Context, serviceVersion string) (*Providers, error) {
	cfg := ResolveConfig()
	if serviceVersion != "" && cfg.ServiceVersion == "dev" {
		cfg.ServiceVersion = serviceVersion
	}

	traceProvider, err := buildTraceProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	meterProvider, err := buildMeterProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(otelLoggerErrorHandler{log: logger.New("observability")})

	p := &Providers{
		config:        cfg,
		traceProvider: traceProvider,
		meterProvider: meterProvider,
	}

	providersMu.Lock()
	active = p
	providersMu.Unlock()

	if cfg.Enabled {
		logger.New("observability").Infof("Exporting telemetry to %s", cfg.OTLPEndpoint)
	}
	return p, nil
}

func ActiveConfig() Config {
	providersMu.RLock()
	defer providersMu.RUnlock()
	if active == nil {
		return Config{}
	}
	return active.config
}

func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var shutdownErr error
	if p.traceProvider != nil {
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; %w", shutdownErr, err)
			} else {
				shutdownErr = err
			}
		}
	}
	return shutdownErr
}
