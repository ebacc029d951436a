package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

type paymentsRepo struct {
	db dbtx
}

func (r *paymentsRepo) CreatePayment(ctx context.Context, p domain.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments
		   (id, merchant_id, provider, provider_payment_id, amount_cents, currency, status, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MerchantID, p.Provider, p.ProviderPaymentID, p.AmountCents, p.Currency, p.Status,
		toMillis(p.SettledAt),
	)
	return mapConstraint(err)
}

func (r *paymentsRepo) ListSettledPayments(ctx context.Context, from, to time.Time) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, merchant_id, provider, provider_payment_id, amount_cents, currency, status, settled_at
		 FROM payments
		 WHERE settled_at >= ? AND settled_at < ?
		 ORDER BY settled_at, id`,
		toMillis(from), toMillis(to),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Payment
	for rows.Next() {
		var (
			p         domain.Payment
			settledAt int64
		)
		if err := rows.Scan(&p.ID, &p.MerchantID, &p.Provider, &p.ProviderPaymentID,
			&p.AmountCents, &p.Currency, &p.Status, &settledAt); err != nil {
			return nil, err
		}
		p.SettledAt = fromMillis(settledAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
