package sqlite

import (
	"context"
	"time"
)

type tokenFamiliesRepo struct {
	db dbtx
}

func (r *tokenFamiliesRepo) GetEpoch(ctx context.Context, userID string) (int64, error) {
	var epoch int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT epoch FROM token_families WHERE user_id = ?), 0)`, userID,
	).Scan(&epoch)
	return epoch, err
}

func (r *tokenFamiliesRepo) BumpEpoch(ctx context.Context, userID string, now time.Time) (int64, error) {
	var epoch int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO token_families (user_id, epoch, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT (user_id) DO UPDATE SET epoch = epoch + 1, updated_at = excluded.updated_at
		 RETURNING epoch`,
		userID, toMillis(now),
	).Scan(&epoch)
	return epoch, err
}
