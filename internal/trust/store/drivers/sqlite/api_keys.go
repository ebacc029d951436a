package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/store"
)

type apiKeysRepo struct {
	db dbtx
}

func (r *apiKeysRepo) CreateAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key, merchant_id, secret_encrypted, created_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?)`,
		k.Key, k.MerchantID, k.SecretEncrypted, toMillis(k.CreatedAt), mapOptionalMillis(k.RevokedAt),
	)
	return mapConstraint(err)
}

func (r *apiKeysRepo) GetAPIKey(ctx context.Context, key string) (domain.APIKey, error) {
	var (
		k         domain.APIKey
		createdAt int64
		revokedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, merchant_id, secret_encrypted, created_at, revoked_at
		 FROM api_keys WHERE key = ?`, key,
	).Scan(&k.Key, &k.MerchantID, &k.SecretEncrypted, &createdAt, &revokedAt)
	if err != nil {
		return domain.APIKey{}, mapNotFound(err)
	}
	k.CreatedAt = fromMillis(createdAt)
	k.RevokedAt = mapNullMillis(revokedAt)
	return k, nil
}

func (r *apiKeysRepo) RevokeAPIKey(ctx context.Context, key string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE key = ? AND revoked_at IS NULL`,
		toMillis(at), key,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
