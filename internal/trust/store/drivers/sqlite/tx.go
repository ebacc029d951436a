package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/trustcore/internal/trust/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error { return sql.ErrTxDone }

func (t *txStore) APIKeys() store.APIKeys             { return &apiKeysRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) TokenFamilies() store.TokenFamilies { return &tokenFamiliesRepo{db: t.tx} }
func (t *txStore) Payments() store.Payments           { return &paymentsRepo{db: t.tx} }
func (t *txStore) Reports() store.Reports             { return &reportsRepo{db: t.tx} }

// Migrations must be applied before any transaction is opened.
func (t *txStore) ApplyMigrations() error { return nil }
