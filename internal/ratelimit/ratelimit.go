// Package ratelimit decides whether a caller may make another request.
//
// Two limiters implement the same Limiter interface:
//
//   - RedisLimiter keeps a sliding window of request timestamps in a sorted
//     set, so every server instance shares one budget per key.
//   - MemoryLimiter keeps a token bucket per key in process memory, for
//     single-instance deployments without redis.
package ratelimit

import (
	"context"
	"time"
)

// Policy is "Limit requests per Window".
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy allows 4 requests per 10 seconds.
func DefaultPolicy() Policy {
	return Policy{Limit: 4, Window: 10 * time.Second}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Limit <= 0 {
		p.Limit = def.Limit
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	return p
}

// Decision is the result of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until a request would be allowed; zero when
	// Allowed.
	RetryAfter time.Duration
}

// Limiter is implemented by RedisLimiter and MemoryLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
