package sqlite

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
)

type reportsRepo struct {
	db dbtx
}

func (r *reportsRepo) SaveReport(ctx context.Context, rep domain.ReconciliationReport) error {
	mismatches := rep.Mismatches
	if mismatches == nil {
		mismatches = []domain.ReconciliationMismatch{}
	}
	raw, err := json.Marshal(mismatches)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO reconciliation_reports (id, date, total, matched, mismatched, mismatches_json, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (date) DO UPDATE SET
		   id = excluded.id,
		   total = excluded.total,
		   matched = excluded.matched,
		   mismatched = excluded.mismatched,
		   mismatches_json = excluded.mismatches_json,
		   generated_at = excluded.generated_at`,
		rep.ID, rep.Date, rep.Total, rep.Matched, rep.Mismatched, string(raw), toMillis(rep.GeneratedAt),
	)
	return err
}

func (r *reportsRepo) GetReportByDate(ctx context.Context, date string) (domain.ReconciliationReport, error) {
	var (
		rep         domain.ReconciliationReport
		raw         string
		generatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, date, total, matched, mismatched, mismatches_json, generated_at
		 FROM reconciliation_reports WHERE date = ?`, date,
	).Scan(&rep.ID, &rep.Date, &rep.Total, &rep.Matched, &rep.Mismatched, &raw, &generatedAt)
	if err != nil {
		return domain.ReconciliationReport{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(raw), &rep.Mismatches); err != nil {
		return domain.ReconciliationReport{}, err
	}
	rep.GeneratedAt = fromMillis(generatedAt)
	return rep, nil
}
