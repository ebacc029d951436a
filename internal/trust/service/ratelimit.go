package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// RateLimitPolicy is a limit per fixed window.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

func (p RateLimitPolicy) validate() error {
	if p.Limit <= 0 || p.Window < time.Millisecond {
		return fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, p.Limit, p.Window)
	}
	return nil
}

// RateLimiter is a fixed-window counter in the shared KV. Windows are
// aligned to multiples of their length, so every instance agrees on the
// window a request falls in and on when it resets.
type RateLimiter struct {
	KV      kv.Store
	Default RateLimitPolicy

	// Prefix namespaces counters so different limiters never share keys.
	// Defaults to "rl".
	Prefix string

	Now func() time.Time
}

func (l *RateLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *RateLimiter) prefix() string {
	if l.Prefix == "" {
		return "rl"
	}
	return l.Prefix
}

// Check counts one request against key. Denied requests still count, so
// probing the limit is not free. On storage failure the decision is a deny
// and the error wraps ErrStorageUnavailable.
func (l *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	policy := RateLimitPolicy{Limit: limit, Window: window}
	if err := policy.validate(); err != nil {
		return domain.RateLimitDecision{}, err
	}

	windowStart := windowStartFor(l.now(), window)
	resetAt := windowStart.Add(window)
	decision := domain.RateLimitDecision{Limit: limit, ResetAt: resetAt}

	counterKey := fmt.Sprintf("%s:%s:%d", l.prefix(), key, windowStart.UnixMilli())
	count, err := l.KV.IncrWithTTL(ctx, counterKey, window)
	if err != nil {
		rateLimitDecisions.WithLabelValues("error").Inc()
		slogx.FromContext(ctx).Error("rate limit counter unavailable", "key", key, "err", err)
		return decision, storageErr("increment rate counter", err)
	}

	decision.Allowed = count <= int64(limit)
	decision.Remaining = max(limit-int(count), 0)

	if decision.Allowed {
		rateLimitDecisions.WithLabelValues("allowed").Inc()
	} else {
		rateLimitDecisions.WithLabelValues("denied").Inc()
	}
	return decision, nil
}

// windowStartFor floors now to a multiple of window since the unix epoch.
func windowStartFor(now time.Time, window time.Duration) time.Time {
	ms, w := now.UnixMilli(), window.Milliseconds()
	return time.UnixMilli(ms - ms%w).UTC()
}

// Allow is Check for callers that only need a verdict: nil when allowed,
// ErrRateLimited when over the limit, a storage error otherwise.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	d, err := l.Check(ctx, key, limit, window)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return ErrRateLimited
	}
	return nil
}

// CheckDefault applies the configured default policy.
func (l *RateLimiter) CheckDefault(ctx context.Context, key string) (domain.RateLimitDecision, error) {
	return l.Check(ctx, key, l.Default.Limit, l.Default.Window)
}
