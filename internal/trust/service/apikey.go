package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/store"
	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/aussiebroadwan/trustcore/pkg/idx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

var ErrAPIKeyNotFound = errors.New("api_key_not_found")

// APIKeyService issues and revokes merchant signing credentials.
type APIKeyService struct {
	Store  store.Store
	Cipher *cryptox.Cipher
	Now    func() time.Time
}

// Create issues a key for merchantID. The plaintext secret is returned once
// and only its ciphertext is stored.
func (s *APIKeyService) Create(ctx context.Context, merchantID string) (apiKey, secret string, err error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return "", "", fmt.Errorf("merchant id is required")
	}

	secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", err
	}
	enc, err := s.Cipher.EncryptString(secret)
	if err != nil {
		return "", "", fmt.Errorf("encrypt api secret: %w", err)
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	apiKey = "ak_" + strings.ToLower(idx.NewAt(now).String())

	if err := s.Store.APIKeys().CreateAPIKey(ctx, domain.APIKey{
		Key:             apiKey,
		MerchantID:      merchantID,
		SecretEncrypted: enc,
		CreatedAt:       now,
	}); err != nil {
		return "", "", storageErr("create api key", err)
	}

	slogx.FromContext(ctx).Info("api key created", "api_key", apiKey, "merchant_id", merchantID)
	return apiKey, secret, nil
}

// Revoke disables apiKey immediately. Nonces already claimed are left to
// expire.
func (s *APIKeyService) Revoke(ctx context.Context, apiKey string) error {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	err := s.Store.APIKeys().RevokeAPIKey(ctx, apiKey, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrAPIKeyNotFound
	case err != nil:
		return storageErr("revoke api key", err)
	}
	slogx.FromContext(ctx).Info("api key revoked", "api_key", apiKey)
	return nil
}
