package server

import (
	"time"

	"github.com/hyperterse/codemode/core/infrastructure/transport/http/middleware"
)

type RuntimeOption func(*Runtime)

// WithRateLimiter limits /mcp to limit requests per window per client IP.
func WithRateLimiter(limiter middleware.RateLimiter, limit int, window time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.limiter = limiter
		r.rateLimit = limit
		r.rateWindow = window
	}
}

// WithSessionTimeout closes Streamable HTTP sessions idle for longer than d.
func WithSessionTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.sessionTimeout = d
	}
}
