package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hyperterse/codemode/core/logger"
	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether the request identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter is a sliding-window log limiter backed by a Redis sorted set.
type RedisRateLimiter struct {
	client redis.Cmdable
}

func NewRedisRateLimiter(client redis.Cmdable) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// NewRedisRateLimiterFromURL parses a redis:// URL and checks connectivity.
func NewRedisRateLimiterFromURL(ctx context.Context, rawURL string) (*RedisRateLimiter, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return NewRedisRateLimiter(client), client, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	if err := r.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10)).Err(); err != nil {
		return false, err
	}

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count >= int64(limit) {
		return false, nil
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RateLimit rejects requests over limit per window with 429. Limiter
// failures let the request through.
func RateLimit(limiter RateLimiter, limit int, window time.Duration, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	log := logger.New("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				log.Warnf("Rate limiter unavailable, allowing request: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				rateLimitedTotal.Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP keys requests by client address. Run it after chi's
// RealIP middleware so proxied addresses are honoured.
func RateLimitByIP(limiter RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return RateLimit(limiter, limit, window, func(r *http.Request) string {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return "codemode:ratelimit:" + host
	})
}
