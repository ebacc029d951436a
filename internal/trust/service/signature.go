package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/store"
	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/aussiebroadwan/trustcore/pkg/paysdk"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

const (
	DefaultClockSkew   = 5 * time.Minute
	DefaultNonceMargin = time.Minute

	maxNonceLen = 128
)

// SignedRequest is the material of one inbound signed call. Timestamp is
// the raw header value in unix seconds.
type SignedRequest struct {
	APIKey    string
	Timestamp string
	Nonce     string
	Method    string
	Path      string
	Body      []byte
	Signature string
}

// SignatureVerifier authenticates merchant requests signed with
// HMAC-SHA256 over paysdk.CanonicalMessage.
type SignatureVerifier struct {
	Store  store.Store
	Cipher *cryptox.Cipher
	Nonces *NonceStore

	// Skew is the tolerated |now - timestamp|.
	Skew time.Duration

	// NonceMargin is added to 2*Skew for the nonce TTL, so a nonce outlives
	// every timestamp that could still pass the skew check.
	NonceMargin time.Duration

	Now func() time.Time
}

func (v *SignatureVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *SignatureVerifier) skew() time.Duration {
	if v.Skew <= 0 {
		return DefaultClockSkew
	}
	return v.Skew
}

// NonceTTL is how long a claimed nonce is remembered.
func (v *SignatureVerifier) NonceTTL() time.Duration {
	margin := v.NonceMargin
	if margin <= 0 {
		margin = DefaultNonceMargin
	}
	return 2*v.skew() + margin
}

// Verify checks req and, only if every check passes, claims its nonce. A
// rejected request writes nothing, so a legitimate retry with the same
// nonce is still possible after a transient failure.
func (v *SignatureVerifier) Verify(ctx context.Context, req SignedRequest) (domain.APIKey, error) {
	log := slogx.FromContext(ctx)

	key, err := v.verify(ctx, req)
	outcome := verifyOutcome(err)
	signatureVerifications.WithLabelValues(outcome).Inc()

	switch {
	case err == nil:
		return key, nil
	case outcome == "error":
		log.Error("signature verification failed", "api_key", req.APIKey, "err", err)
	default:
		log.Warn("signature verification denied", "api_key", req.APIKey, "outcome", outcome)
	}
	return domain.APIKey{}, err
}

func (v *SignatureVerifier) verify(ctx context.Context, req SignedRequest) (domain.APIKey, error) {
	ts, err := checkShape(req)
	if err != nil {
		return domain.APIKey{}, err
	}

	now := v.now()
	if d := now.Sub(time.Unix(ts, 0)); d > v.skew() || d < -v.skew() {
		return domain.APIKey{}, ErrTimestampSkew
	}

	key, err := v.Store.APIKeys().GetAPIKey(ctx, req.APIKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.APIKey{}, ErrUnknownAPIKey
	case err != nil:
		return domain.APIKey{}, storageErr("load api key", err)
	case key.Revoked():
		return domain.APIKey{}, ErrUnknownAPIKey
	}

	secret, err := v.Cipher.DecryptString(key.SecretEncrypted)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("decrypt api secret: %w", err)
	}

	canonical := paysdk.CanonicalMessage(ts, req.Nonce, req.Method, req.Path, req.Body)
	expected := paysdk.Sign(secret, canonical)
	if !cryptox.Equal(expected, strings.ToLower(req.Signature)) {
		return domain.APIKey{}, ErrInvalidSignature
	}

	if err := v.Nonces.Claim(ctx, req.APIKey, req.Nonce, v.NonceTTL()); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// checkShape rejects requests that cannot possibly verify, before any I/O.
func checkShape(req SignedRequest) (int64, error) {
	if req.APIKey == "" || req.Nonce == "" || req.Signature == "" || req.Method == "" || req.Path == "" {
		return 0, ErrMalformedRequest
	}
	if len(req.Nonce) > maxNonceLen || strings.ContainsAny(req.Nonce, ".: ") {
		return 0, ErrMalformedRequest
	}
	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil || strconv.FormatInt(ts, 10) != req.Timestamp {
		return 0, ErrMalformedRequest
	}
	return ts, nil
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed"
	case errors.Is(err, ErrTimestampSkew):
		return "skew"
	case errors.Is(err, ErrUnknownAPIKey):
		return "unknown_key"
	case errors.Is(err, ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, ErrReplayedNonce):
		return "replay"
	default:
		return "error"
	}
}
