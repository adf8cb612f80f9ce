package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/sakif/codebuddy/internal/auth"
	"github.com/sakif/codebuddy/internal/ratelimit"
)

// RateLimitObserver is implemented by metrics.Collector.
type RateLimitObserver interface {
	ObserveRateLimited(route string)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// Route labels the limited route in keys, logs and metrics.
	Route    string
	Observer RateLimitObserver
	Logger   *slog.Logger
}

// RateLimit rejects requests over the limiter's budget with 429 and a
// Retry-After header. Authenticated callers are keyed by user id, everyone
// else by client IP. If the limiter itself fails the request is let through
// and a warning is logged.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := RateLimitKey(cfg.Route, r)

			d, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("route", cfg.Route),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				if cfg.Observer != nil {
					cfg.Observer.ObserveRateLimited(cfg.Route)
				}
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests, slow down"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey is the limiter key RateLimit uses for r on route. Handlers
// that meter work outside the middleware, such as websocket messages, use it
// to draw from the same budget.
func RateLimitKey(route string, r *http.Request) string {
	return route + ":" + clientKey(r)
}

func clientKey(r *http.Request) string {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	// chi's RealIP has already rewritten RemoteAddr when it is in the chain.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
