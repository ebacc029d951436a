package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

// AuthError is a definite authentication deny. Code is stable and safe to
// return to callers.
type AuthError struct {
	Code string
}

func (e *AuthError) Error() string { return e.Code }

var (
	ErrInvalidSignature = &AuthError{Code: "invalid_signature"}
	ErrTimestampSkew    = &AuthError{Code: "timestamp_out_of_window"}
	ErrReplayedNonce    = &AuthError{Code: "replayed_nonce"}
	ErrUnknownAPIKey    = &AuthError{Code: "unknown_api_key"}
	ErrMalformedRequest = &AuthError{Code: "malformed_request"}
	ErrInvalidToken     = &AuthError{Code: "invalid_token"}
	ErrInvalidRefresh   = &AuthError{Code: "invalid_refresh_token"}
	ErrRefreshReused    = &AuthError{Code: "refresh_token_reused"}
)

var (
	ErrRateLimited = errors.New("rate_limit_exceeded")

	// ErrStorageUnavailable wraps any shared-store or database failure on
	// the request path. Callers must deny.
	ErrStorageUnavailable = errors.New("storage_unavailable")

	// ErrLedgerUnavailable aborts a reconciliation run.
	ErrLedgerUnavailable = errors.New("ledger_unavailable")

	ErrInvalidPolicy = errors.New("invalid_rate_limit_policy")
)

// FraudRejectedError carries the rule that rejected a payment.
type FraudRejectedError struct {
	Rule   domain.FraudRule
	Reason string
}

func (e *FraudRejectedError) Error() string {
	return fmt.Sprintf("fraud rejected by %s: %s", e.Rule, e.Reason)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
