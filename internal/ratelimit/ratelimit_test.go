package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// ============================================================================
// Redis sliding window
// ============================================================================

func newRedisLimiter(t *testing.T, policy Policy) (*RedisLimiter, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := newClock()
	l := NewRedisLimiter(client, policy, "")
	l.now = clock.now
	return l, clock, mr
}

func TestRedisLimiter_AllowsUpToLimit(t *testing.T) {
	l, _, _ := newRedisLimiter(t, DefaultPolicy())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 4, d.Limit)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 10*time.Second, d.RetryAfter)
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	l, clock, _ := newRedisLimiter(t, Policy{Limit: 2, Window: 10 * time.Second})
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	clock.advance(4 * time.Second)
	d, _ = l.Allow(ctx, "k")
	require.True(t, d.Allowed)

	d, _ = l.Allow(ctx, "k")
	require.False(t, d.Allowed)
	assert.Equal(t, 6*time.Second, d.RetryAfter)

	// The first request leaves the window; the second still counts.
	clock.advance(6*time.Second + time.Millisecond)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "k")
	assert.False(t, d.Allowed)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	l, _, mr := newRedisLimiter(t, Policy{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	a, _ := l.Allow(ctx, "a")
	b, _ := l.Allow(ctx, "b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)

	assert.True(t, mr.Exists("codebuddy:ratelimit:a"))
	assert.True(t, mr.Exists("codebuddy:ratelimit:b"))
}

func TestRedisLimiter_RedisDown(t *testing.T) {
	l, _, mr := newRedisLimiter(t, DefaultPolicy())
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

// ============================================================================
// In-memory token bucket
// ============================================================================

func TestMemoryLimiter(t *testing.T) {
	clock := newClock()
	l := NewMemoryLimiter(DefaultPolicy())
	l.now = clock.now
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		d, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2500*time.Millisecond, d.RetryAfter)

	// A denied request does not consume a token.
	clock.advance(2500 * time.Millisecond)
	d, _ = l.Allow(ctx, "user:1")
	assert.True(t, d.Allowed)

	other, _ := l.Allow(ctx, "user:2")
	assert.True(t, other.Allowed)
	assert.Equal(t, 2, l.Len())
}

func TestMemoryLimiter_SweepsIdleKeys(t *testing.T) {
	clock := newClock()
	l := NewMemoryLimiter(Policy{Limit: 1, Window: time.Second})
	l.now = clock.now

	_, _ = l.Allow(context.Background(), "idle")
	clock.advance(2 * time.Second)
	l.sweep(clock.now())
	assert.Equal(t, 0, l.Len())
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultPolicy(), p)
}
