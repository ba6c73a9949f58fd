package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperterse/codemode/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/runtime/handlers"
	"github.com/hyperterse/codemode/core/runtime/mcp"
	"github.com/hyperterse/codemode/core/spec"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runtime serves the MCP adapter over Streamable HTTP alongside the
// catalog, spec and metrics endpoints.
type Runtime struct {
	adapter *mcp.Adapter
	index   *spec.Index
	apiName string
	port    string

	limiter        middleware.RateLimiter
	rateLimit      int
	rateWindow     time.Duration
	sessionTimeout time.Duration

	server   *http.Server
	listener net.Listener
}

// NewRuntime creates a runtime for adapter. The index backs /llms.txt and
// /openapi.json.
func NewRuntime(adapter *mcp.Adapter, index *spec.Index, apiName, port string, opts ...RuntimeOption) (*Runtime, error) {
	if adapter == nil {
		return nil, fmt.Errorf("runtime requires an mcp adapter")
	}
	if index == nil {
		return nil, fmt.Errorf("runtime requires a spec index")
	}
	if port == "" {
		port = "8080"
	}

	r := &Runtime{
		adapter: adapter,
		index:   index,
		apiName: apiName,
		port:    port,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handler builds the HTTP routes.
func (r *Runtime) Handler() http.Handler {
	log := logger.New("runtime")
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(middleware.Tracing("codemode"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mcpHandler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return r.adapter.Server()
	}, &mcpsdk.StreamableHTTPOptions{SessionTimeout: r.sessionTimeout})

	var routes []string

	router.Group(func(group chi.Router) {
		if r.limiter != nil && r.rateLimit > 0 {
			group.Use(middleware.RateLimitByIP(r.limiter, r.rateLimit, r.rateWindow))
		}
		group.Handle("/mcp", mcpHandler)
	})
	routes = append(routes, "POST|GET|DELETE /mcp (Streamable HTTP)")

	router.Get("/heartbeat", handlers.HeartbeatHandler)
	routes = append(routes, "GET /heartbeat")

	router.Get("/llms.txt", handlers.LLMTxtHandler(r.index, r.apiName, fmt.Sprintf("http://localhost:%s", r.port)))
	routes = append(routes, "GET /llms.txt")

	router.Get("/openapi.json", handlers.SpecHandler(r.index))
	routes = append(routes, "GET /openapi.json")

	router.Handle("/metrics", promhttp.Handler())
	routes = append(routes, "GET /metrics")

	log.Debug("Registered Routes:")
	for _, route := range routes {
		log.Debugf("\t  %s", route)
	}
	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.StartAsync(); err != nil {
		return err
	}
	<-ctx.Done()
	return r.Stop()
}

// StartAsync binds the port and serves in the background.
func (r *Runtime) StartAsync() error {
	log := logger.New("runtime")

	listener, err := net.Listen("tcp", ":"+r.port)
	if err != nil {
		return log.Errorf("failed to listen on port %s: %w", r.port, err)
	}
	r.listener = listener

	r.server = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("Serving MCP on http://127.0.0.1:%s/mcp", r.port)
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.PrintError("Server error", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down, waiting up to five seconds for
// in-flight requests.
func (r *Runtime) Stop() error {
	log := logger.New("runtime")
	log.Info("Shutting down server...")

	if r.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.server.Shutdown(ctx); err != nil {
		return log.Errorf("error shutting down HTTP server: %w", err)
	}
	log.Debug("HTTP server stopped")
	return nil
}

// ServeStdio runs adapter over stdin/stdout until ctx is cancelled or the
// client disconnects.
func ServeStdio(ctx context.Context, adapter *mcp.Adapter) error {
	log := logger.New("runtime")
	log.Info("Serving MCP over stdio")
	if err := adapter.Server().Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return log.Errorf("stdio transport: %w", err)
	}
	return nil
}
