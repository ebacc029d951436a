// Package kv is the shared low-latency store behind nonces, rate-limit
// counters, fraud counters and blacklists. Every implementation must make
// SetNX and IncrWithTTL atomic across all callers, not just within one
// process.
package kv

import (
	"context"
	"time"
)

type Store interface {
	// SetNX stores value under key with ttl only if key is absent. It
	// reports whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// IncrWithTTL increments key and, on the increment that creates it,
	// sets its expiry to ttl. It returns the post-increment value.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Set overwrites key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
