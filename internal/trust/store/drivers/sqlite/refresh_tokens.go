package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens
		   (id, user_id, email, is_admin, merchant_id, secret_encrypted, epoch, expires_at, consumed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Email, t.IsAdmin, t.MerchantID, t.SecretEncrypted, t.Epoch,
		toMillis(t.ExpiresAt), mapOptionalMillis(t.ConsumedAt), toMillis(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshToken(ctx context.Context, id string) (domain.RefreshToken, error) {
	var (
		t                    domain.RefreshToken
		expiresAt, createdAt int64
		consumedAt           sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, is_admin, merchant_id, secret_encrypted, epoch, expires_at, consumed_at, created_at
		 FROM refresh_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.Email, &t.IsAdmin, &t.MerchantID, &t.SecretEncrypted, &t.Epoch,
		&expiresAt, &consumedAt, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.ConsumedAt = mapNullMillis(consumedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *refreshTokensRepo) ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (bool, error) {
	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET consumed_at = ?
		 WHERE id = ?
		   AND consumed_at IS NULL
		   AND expires_at > ?
		   AND epoch = COALESCE((SELECT epoch FROM token_families WHERE user_id = refresh_tokens.user_id), 0)`,
		ms, id, ms,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
