// Package kvtest holds the behavioural suite every kv.Store driver must pass.
package kvtest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s. advance must move the store's clock forward by d.
func Run(t *testing.T, s kv.Store, advance func(d time.Duration)) {
	ctx := context.Background()

	t.Run("SetNX only once", func(t *testing.T) {
		ok, err := s.SetNX(ctx, "nx:a", "1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.SetNX(ctx, "nx:a", "2", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("SetNX succeeds again after expiry", func(t *testing.T) {
		ok, err := s.SetNX(ctx, "nx:b", "1", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		advance(2 * time.Second)

		ok, err = s.SetNX(ctx, "nx:b", "1", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("IncrWithTTL keeps first expiry", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := s.IncrWithTTL(ctx, "ctr:a", 10*time.Second)
			require.NoError(t, err)
			require.Equal(t, want, n)
			advance(2 * time.Second)
		}

		// 6s elapsed; the counter expires 10s after its first increment
		// regardless of the later ones.
		advance(5 * time.Second)
		n, err := s.IncrWithTTL(ctx, "ctr:a", 10*time.Second)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	})

	t.Run("IncrWithTTL is atomic", func(t *testing.T) {
		const workers = 50
		var wg sync.WaitGroup
		seen := make([]int64, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.IncrWithTTL(ctx, "ctr:race", time.Minute)
				assert.NoError(t, err)
				seen[i] = n
			}()
		}
		wg.Wait()

		sort.Slice(seen, func(a, b int) bool { return seen[a] < seen[b] })
		for i, n := range seen {
			require.EqualValues(t, i+1, n)
		}
	})

	t.Run("Set Exists Del", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "k:set", "v", time.Second))
		ok, err := s.Exists(ctx, "k:set")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.Del(ctx, "k:set"))
		ok, err = s.Exists(ctx, "k:set")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.Set(ctx, "k:ttl", "v", time.Second))
		advance(2 * time.Second)
		ok, err = s.Exists(ctx, "k:ttl")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("sets", func(t *testing.T) {
		require.NoError(t, s.SAdd(ctx, "set:a", "x", "y"))

		ok, err := s.SIsMember(ctx, "set:a", "x")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.SRem(ctx, "set:a", "x"))
		ok, err = s.SIsMember(ctx, "set:a", "x")
		require.NoError(t, err)
		require.False(t, ok)

		members, err := s.SMembers(ctx, "set:a")
		require.NoError(t, err)
		require.Equal(t, []string{"y"}, members)

		ok, err = s.SIsMember(ctx, "set:missing", "x")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})
}
