package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv/drivers/memory"
	"github.com/aussiebroadwan/trustcore/internal/trust/store/drivers/sqlite"
	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by services and the memory KV.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "trust.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()
	c, err := cryptox.NewCipher([]byte("test master key material"))
	require.NoError(t, err)
	return c
}

func newMemoryKV(clock *testClock) *memory.Store {
	m := memory.New()
	m.Now = clock.Now
	return m
}

var errKVDown = errors.New("kv: connection refused")

// downKV fails every call, standing in for an unreachable shared store.
type downKV struct{}

var _ kv.Store = downKV{}

func (downKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errKVDown
}
func (downKV) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 0, errKVDown
}
func (downKV) Set(context.Context, string, string, time.Duration) error { return errKVDown }
func (downKV) Exists(context.Context, string) (bool, error)             { return false, errKVDown }
func (downKV) Del(context.Context, ...string) error                     { return errKVDown }
func (downKV) SAdd(context.Context, string, ...string) error            { return errKVDown }
func (downKV) SRem(context.Context, string, ...string) error            { return errKVDown }
func (downKV) SIsMember(context.Context, string, string) (bool, error)  { return false, errKVDown }
func (downKV) SMembers(context.Context, string) ([]string, error)       { return nil, errKVDown }
func (downKV) Ping(context.Context) error                               { return errKVDown }
func (downKV) Close() error                                             { return nil }
