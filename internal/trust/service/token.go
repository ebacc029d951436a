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
	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// TokenService issues short-lived access tokens and rotating single-use
// refresh tokens. Refresh tokens belong to a per-user family; bumping the
// family epoch invalidates every token issued before it.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Cipher     *cryptox.Cipher
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.AccessTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.RefreshTTL
}

// IssueAccessToken signs a token for sub stamped with the family epoch
// passed in. Use IssueTokenPair when the epoch is not already known.
func (s *TokenService) IssueAccessToken(sub domain.Subject, epoch int64) (string, error) {
	if sub.UserID == "" {
		return "", fmt.Errorf("subject user id is required")
	}
	claims := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:    sub.UserID,
		Email:      sub.Email,
		IsAdmin:    sub.IsAdmin,
		MerchantID: sub.MerchantID,
		Generation: epoch,
		Issuer:     s.Issuer,
		TTL:        s.accessTTL(),
		Now:        s.now(),
	})
	return s.KeyManager.GetSigner().Sign(claims)
}

// ValidateAccessToken checks signature, expiry and issuer without touching
// storage.
func (s *TokenService) ValidateAccessToken(token string) (jwtx.Claims, error) {
	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessTokenFresh additionally rejects tokens minted before the
// subject's last family revocation.
func (s *TokenService) ValidateAccessTokenFresh(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	epoch, err := s.Store.TokenFamilies().GetEpoch(ctx, claims.Subject)
	if err != nil {
		return jwtx.Claims{}, storageErr("load token family", err)
	}
	if claims.Generation < epoch {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// IssueRefreshToken stores a new refresh token for sub under the current
// family epoch and returns its opaque form "{id}.{secret}".
func (s *TokenService) IssueRefreshToken(ctx context.Context, sub domain.Subject) (string, error) {
	epoch, err := s.Store.TokenFamilies().GetEpoch(ctx, sub.UserID)
	if err != nil {
		return "", storageErr("load token family", err)
	}
	return s.createRefreshToken(ctx, s.Store, sub, epoch)
}

func (s *TokenService) createRefreshToken(ctx context.Context, st store.Store, sub domain.Subject, epoch int64) (string, error) {
	if sub.UserID == "" {
		return "", fmt.Errorf("subject user id is required")
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	enc, err := s.Cipher.EncryptString(secret)
	if err != nil {
		return "", fmt.Errorf("encrypt refresh secret: %w", err)
	}

	now := s.now()
	id := idx.NewAt(now).String()
	if err := st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:              id,
		UserID:          sub.UserID,
		Email:           sub.Email,
		IsAdmin:         sub.IsAdmin,
		MerchantID:      sub.MerchantID,
		SecretEncrypted: enc,
		Epoch:           epoch,
		ExpiresAt:       now.Add(s.refreshTTL()),
		CreatedAt:       now,
	}); err != nil {
		return "", storageErr("create refresh token", err)
	}
	return id + "." + secret, nil
}

// IssueTokenPair issues an access token and a refresh token for sub.
func (s *TokenService) IssueTokenPair(ctx context.Context, sub domain.Subject) (*domain.TokenPair, error) {
	epoch, err := s.Store.TokenFamilies().GetEpoch(ctx, sub.UserID)
	if err != nil {
		return nil, storageErr("load token family", err)
	}
	return s.issuePair(ctx, s.Store, sub, epoch)
}

func (s *TokenService) issuePair(ctx context.Context, st store.Store, sub domain.Subject, epoch int64) (*domain.TokenPair, error) {
	access, err := s.IssueAccessToken(sub, epoch)
	if err != nil {
		return nil, err
	}
	refresh, err := s.createRefreshToken(ctx, st, sub, epoch)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL() / time.Second,
	}, nil
}

// ValidateAndConsumeRefreshToken redeems token exactly once. A token that
// was already redeemed, or was issued before the last family revocation, is
// treated as stolen: the whole family is revoked and ErrRefreshReused is
// returned.
func (s *TokenService) ValidateAndConsumeRefreshToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	id, secret, err := parseRefreshToken(token)
	if err != nil {
		return s.finishRedeem(ctx, domain.RefreshToken{}, err)
	}

	var consumed domain.RefreshToken
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := s.consume(ctx, tx, id, secret)
		consumed = rt
		return err
	})
	return s.finishRedeem(ctx, consumed, err)
}

// Refresh redeems token and rotates it into a new pair. Consumption and
// issuance commit together, so a failed issuance leaves the old token
// usable.
func (s *TokenService) Refresh(ctx context.Context, token string) (*domain.TokenPair, error) {
	id, secret, err := parseRefreshToken(token)
	if err != nil {
		_, err = s.finishRedeem(ctx, domain.RefreshToken{}, err)
		return nil, err
	}

	var (
		consumed domain.RefreshToken
		pair     *domain.TokenPair
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := s.consume(ctx, tx, id, secret)
		consumed = rt
		if err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, rt.Subject(), rt.Epoch)
		return err
	})
	if _, err := s.finishRedeem(ctx, consumed, err); err != nil {
		return nil, err
	}
	return pair, nil
}

// parseRefreshToken splits "{id}.{secret}" and checks the id is a ULID, so
// malformed tokens are rejected without a transaction.
func parseRefreshToken(token string) (idx.ID, string, error) {
	raw, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return idx.Zero, "", ErrInvalidRefresh
	}
	id, err := idx.Parse(raw)
	if err != nil {
		return idx.Zero, "", ErrInvalidRefresh
	}
	return id, secret, nil
}

// consume runs inside tx. On reuse it returns the loaded row alongside
// ErrRefreshReused so the caller can revoke the family after rollback.
func (s *TokenService) consume(ctx context.Context, tx store.Tx, id idx.ID, secret string) (domain.RefreshToken, error) {
	rt, err := tx.RefreshTokens().GetRefreshToken(ctx, id.String())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.RefreshToken{}, ErrInvalidRefresh
	case err != nil:
		return domain.RefreshToken{}, storageErr("load refresh token", err)
	}

	stored, err := s.Cipher.DecryptString(rt.SecretEncrypted)
	if err != nil || !cryptox.Equal(stored, secret) {
		return domain.RefreshToken{}, ErrInvalidRefresh
	}

	now := s.now()
	if !now.Before(rt.ExpiresAt) {
		return domain.RefreshToken{}, ErrInvalidRefresh
	}

	won, err := tx.RefreshTokens().ConsumeRefreshToken(ctx, rt.ID, now)
	if err != nil {
		return domain.RefreshToken{}, storageErr("consume refresh token", err)
	}
	if !won {
		// Unexpired and authentic but not consumable: either redeemed before
		// or issued under a revoked epoch.
		return rt, ErrRefreshReused
	}
	rt.ConsumedAt = &now
	return rt, nil
}

func (s *TokenService) finishRedeem(ctx context.Context, rt domain.RefreshToken, err error) (domain.RefreshToken, error) {
	log := slogx.FromContext(ctx)

	switch {
	case err == nil:
		refreshRedemptions.WithLabelValues("ok").Inc()
		return rt, nil

	case errors.Is(err, ErrRefreshReused):
		refreshRedemptions.WithLabelValues("reused").Inc()
		log.Warn("refresh token reuse detected; revoking family",
			"user_id", rt.UserID,
			"token_id", rt.ID,
			"token_issued_at", idx.ID(rt.ID).Time(),
		)
		if rerr := s.RevokeRefreshTokens(ctx, rt.UserID); rerr != nil {
			log.Error("failed to revoke token family", "user_id", rt.UserID, "err", rerr)
		}
		return domain.RefreshToken{}, ErrRefreshReused

	case errors.Is(err, ErrInvalidRefresh):
		refreshRedemptions.WithLabelValues("invalid").Inc()
		return domain.RefreshToken{}, err

	default:
		refreshRedemptions.WithLabelValues("error").Inc()
		log.Error("refresh token redemption failed", "err", err)
		if !errors.Is(err, ErrStorageUnavailable) {
			err = storageErr("refresh transaction", err)
		}
		return domain.RefreshToken{}, err
	}
}

// RevokeRefreshTokens invalidates every outstanding refresh token of userID,
// and every access token checked with ValidateAccessTokenFresh, by bumping
// the family epoch.
func (s *TokenService) RevokeRefreshTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	epoch, err := s.Store.TokenFamilies().BumpEpoch(ctx, userID, s.now())
	if err != nil {
		return storageErr("bump token family", err)
	}
	slogx.FromContext(ctx).Info("token family revoked", "user_id", userID, "epoch", epoch)
	return nil
}
