package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root relational data access interface. Drivers implement it
// and expose sub-repositories so a Tx-scoped store cannot open a nested
// transaction by accident.
type Store interface {
	APIKeys() APIKeys
	RefreshTokens() RefreshTokens
	TokenFamilies() TokenFamilies
	Payments() Payments
	Reports() Reports

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing if fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type APIKeys interface {
	// CreateAPIKey returns ErrAlreadyExists if the key is taken.
	CreateAPIKey(ctx context.Context, k domain.APIKey) error

	// GetAPIKey returns revoked keys too; callers check Revoked().
	GetAPIKey(ctx context.Context, key string) (domain.APIKey, error)

	RevokeAPIKey(ctx context.Context, key string, at time.Time) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshToken(ctx context.Context, id string) (domain.RefreshToken, error)

	// ConsumeRefreshToken marks the token consumed in one conditional write.
	// It succeeds only if the token is unconsumed, unexpired at now, and was
	// issued under the owner's current family epoch. The bool reports
	// whether this call won.
	ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpiredRefreshTokens removes rows past expiry and returns the
	// count. Consumed but unexpired rows are kept so reuse stays detectable.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type TokenFamilies interface {
	// GetEpoch returns 0 for users with no family row.
	GetEpoch(ctx context.Context, userID string) (int64, error)

	// BumpEpoch increments the user's epoch and returns the new value.
	BumpEpoch(ctx context.Context, userID string, now time.Time) (int64, error)
}

type Payments interface {
	CreatePayment(ctx context.Context, p domain.Payment) error

	// ListSettledPayments returns payments with from <= settled_at < to.
	ListSettledPayments(ctx context.Context, from, to time.Time) ([]domain.Payment, error)
}

type Reports interface {
	// SaveReport replaces any report stored for the same date.
	SaveReport(ctx context.Context, r domain.ReconciliationReport) error

	GetReportByDate(ctx context.Context, date string) (domain.ReconciliationReport, error)
}
