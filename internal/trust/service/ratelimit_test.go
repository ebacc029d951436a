package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	kvredis "github.com/aussiebroadwan/trustcore/internal/trust/kv/drivers/redis"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	// Ten seconds into a one-minute window.
	start := time.Unix(1700000050, 0)
	clock := newTestClock(start)
	rl := &service.RateLimiter{KV: newMemoryKV(clock), Now: clock.Now}

	windowStart := time.Unix(1700000040, 0)
	for i := 1; i <= 5; i++ {
		d, err := rl.Check(ctx, "ip:203.0.113.4", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
		require.Equal(t, 5-i, d.Remaining)
		require.True(t, d.ResetAt.Equal(windowStart.Add(time.Minute)))
	}

	d, err := rl.Check(ctx, "ip:203.0.113.4", 5, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)

	clock.Advance(time.Minute)
	d, err = rl.Check(ctx, "ip:203.0.113.4", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 4, d.Remaining)
	require.True(t, d.ResetAt.After(windowStart.Add(time.Minute)))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Unix(1700000000, 0))
	rl := &service.RateLimiter{KV: newMemoryKV(clock), Now: clock.Now}

	_, err := rl.Check(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	d, err := rl.Check(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = rl.Check(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Unix(1700000000, 0))
	rl := &service.RateLimiter{KV: newMemoryKV(clock), Now: clock.Now}

	require.NoError(t, rl.Allow(ctx, "k", 2, time.Minute))
	require.NoError(t, rl.Allow(ctx, "k", 2, time.Minute))
	require.ErrorIs(t, rl.Allow(ctx, "k", 2, time.Minute), service.ErrRateLimited)

	clock.Advance(time.Minute)
	require.NoError(t, rl.Allow(ctx, "k", 2, time.Minute))
}

func TestRateLimiterConcurrentCallersAgainstRedis(t *testing.T) {
	m := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: m.Addr()})
	rl := &service.RateLimiter{KV: kvredis.New(client)}

	const (
		callers = 40
		limit   = 7
	)
	var (
		allowed atomic.Int32
		wg      sync.WaitGroup
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := rl.Check(context.Background(), "burst", limit, time.Hour)
			assert.NoError(t, err)
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, limit, allowed.Load())
}

func TestRateLimiterDefaultPolicy(t *testing.T) {
	clock := newTestClock(time.Unix(1700000000, 0))
	rl := &service.RateLimiter{
		KV:      newMemoryKV(clock),
		Default: service.RateLimitPolicy{Limit: 2, Window: time.Second},
		Now:     clock.Now,
	}
	d, err := rl.CheckDefault(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, 2, d.Limit)
	require.Equal(t, 1, d.Remaining)
}

func TestRateLimiterRejectsInvalidPolicy(t *testing.T) {
	rl := &service.RateLimiter{KV: newMemoryKV(newTestClock(time.Now()))}

	_, err := rl.Check(context.Background(), "k", 0, time.Minute)
	require.ErrorIs(t, err, service.ErrInvalidPolicy)

	_, err = rl.Check(context.Background(), "k", 5, 0)
	require.ErrorIs(t, err, service.ErrInvalidPolicy)
}

func TestRateLimiterFailsClosed(t *testing.T) {
	rl := &service.RateLimiter{KV: downKV{}}

	d, err := rl.Check(context.Background(), "k", 5, time.Minute)
	require.ErrorIs(t, err, service.ErrStorageUnavailable)
	require.False(t, d.Allowed)
}
