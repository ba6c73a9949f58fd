package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperterse/codemode/core/accounts"
	"github.com/hyperterse/codemode/core/config"
	"github.com/hyperterse/codemode/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/observability"
	"github.com/hyperterse/codemode/core/runtime/mcp"
	"github.com/hyperterse/codemode/core/runtime/server"
	"github.com/hyperterse/codemode/core/sandbox"
	"github.com/hyperterse/codemode/core/spec"
	"github.com/hyperterse/codemode/core/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the MCP server over stdio or Streamable HTTP.
var serveCmd = &cobra.Command{
	Use:           "serve",
	Short:         "Serve the search and execute MCP tools",
	RunE:          serveTools,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (overrides PORT env var)")
	serveCmd.Flags().StringVarP(&transport, "transport", "t", "", "Transport: stdio or http (overrides CODEMODE_TRANSPORT)")
	serveCmd.Flags().StringVar(&specPath, "spec", "", "Path to the resolved spec artifact (overrides CODEMODE_SPEC_PATH)")

	// stdout is the stdio transport; keep cobra's own output off it.
	serveCmd.SetOut(os.Stderr)
}

// service is everything serve needs, built once at startup.
type service struct {
	cfg       config.Config
	adapter   *mcp.Adapter
	index     *spec.Index
	providers *observability.Providers
	redis     *redis.Client
}

func serveTools(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := prepareService(ctx)
	if err != nil {
		return err
	}
	return svc.run(ctx)
}

func prepareService(ctx context.Context) (*service, error) {
	log := logger.New("main")

	cfg, err := loadCommandConfig()
	if err != nil {
		return nil, err
	}
	log.Infof("Configuration loaded")

	// The spec is never reloaded.
	index, err := spec.Init(cfg.SpecPath)
	if err != nil {
		return nil, log.Errorf("failed to load spec %s: %w", cfg.SpecPath, err)
	}
	log.Infof("Spec loaded: %s", spec.CategorySummary(index.Get()))

	providers, err := observability.Setup(ctx, GetVersion())
	if err != nil {
		return nil, log.Errorf("failed to initialize observability: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	gateway := sandbox.NewGateway(sandbox.NewGojaProvider(httpClient), sandbox.Options{
		APIBaseURL: cfg.APIBaseURL,
		APIName:    cfg.APIName,
		Timeout:    cfg.ExecutionTimeout,
	})

	opts := mcp.Options{
		Index:     index,
		Runner:    gateway,
		APIName:   cfg.APIName,
		APIToken:  cfg.APIToken,
		AccountID: cfg.AccountID,
	}
	if !cfg.FixedAccount() {
		opts.Accounts = accounts.NewResolver(upstream.NewClient(cfg.APIBaseURL, cfg.APIName, httpClient))
	}
	adapter, err := mcp.New(opts)
	if err != nil {
		return nil, log.Errorf("failed to build MCP adapter: %w", err)
	}

	svc := &service{cfg: cfg, adapter: adapter, index: index, providers: providers}
	if cfg.FixedAccount() {
		log.Infof("Using fixed account %s", cfg.AccountID)
	}
	return svc, nil
}

func (s *service) run(ctx context.Context) error {
	log := logger.New("main")

	var rt *server.Runtime
	if s.cfg.Transport == config.TransportHTTP {
		var err error
		if rt, err = s.httpRuntime(ctx); err != nil {
			_ = s.shutdown()
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		if rt != nil {
			return rt.Start(gctx)
		}
		return server.ServeStdio(gctx, s.adapter)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Infof("Shutting down")
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown releases the redis client, flushes telemetry and closes the log file.
func (s *service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if err := s.providers.Shutdown(ctx); err != nil {
		logger.New("main").Warnf("Telemetry shutdown: %v", err)
	}
	return logger.CloseLogFile()
}

func (s *service) httpRuntime(ctx context.Context) (*server.Runtime, error) {
	log := logger.New("main")

	opts := []server.RuntimeOption{server.WithSessionTimeout(s.cfg.SessionTimeout)}
	if s.cfg.RedisURL != "" && s.cfg.RateLimit > 0 {
		limiter, client, err := middleware.NewRedisRateLimiterFromURL(ctx, s.cfg.RedisURL)
		if err != nil {
			return nil, log.Errorf("rate limiting: %w", err)
		}
		s.redis = client
		opts = append(opts, server.WithRateLimiter(limiter, s.cfg.RateLimit, s.cfg.RateLimitWindow))
		log.Infof("Rate limiting /mcp to %d requests per %s", s.cfg.RateLimit, s.cfg.RateLimitWindow)
	}

	rt, err := server.NewRuntime(s.adapter, s.index, s.cfg.APIName, s.cfg.Port, opts...)
	if err != nil {
		return nil, err
	}
	log.Infof("Runtime initialized")
	return rt, nil
}
