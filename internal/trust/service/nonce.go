package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
)

// NonceStore records single-use values per scope. A record is immutable
// once written and disappears with its TTL.
type NonceStore struct {
	KV kv.Store
}

func nonceKey(scope, nonce string) string {
	return "nonce:" + scope + ":" + nonce
}

// Claim atomically records nonce for scope. It returns ErrReplayedNonce if
// the pair was already recorded and has not expired.
func (s *NonceStore) Claim(ctx context.Context, scope, nonce string, ttl time.Duration) error {
	ok, err := s.KV.SetNX(ctx, nonceKey(scope, nonce), "1", ttl)
	if err != nil {
		return storageErr("claim nonce", err)
	}
	if !ok {
		return ErrReplayedNonce
	}
	return nil
}

// Seen reports whether the pair is currently recorded without claiming it.
func (s *NonceStore) Seen(ctx context.Context, scope, nonce string) (bool, error) {
	ok, err := s.KV.Exists(ctx, nonceKey(scope, nonce))
	if err != nil {
		return false, storageErr("lookup nonce", err)
	}
	return ok, nil
}
