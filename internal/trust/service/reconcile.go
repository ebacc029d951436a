package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/provider"
	"github.com/aussiebroadwan/trustcore/internal/trust/store"
	"github.com/aussiebroadwan/trustcore/pkg/idx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var ErrReportNotFound = errors.New("report_not_found")

const (
	DefaultReconcileConcurrency = 8
	DefaultProviderRPS          = 20
)

// Reconciler compares one day of the internal ledger against the
// providers' records and persists the resulting report.
type Reconciler struct {
	Store     store.Store
	Providers provider.Registry

	// Concurrency bounds in-flight provider lookups.
	Concurrency int

	// ProviderRPS paces lookups across all providers. Zero or less means
	// DefaultProviderRPS.
	ProviderRPS float64

	Now func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ParseReportDate validates a YYYY-MM-DD date.
func ParseReportDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(domain.DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	return day, nil
}

// tally serialises updates to the report being built.
type tally struct {
	mu     sync.Mutex
	report *domain.ReconciliationReport
}

func (t *tally) matched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Total++
	t.report.Matched++
	reconciliationRecords.WithLabelValues("matched").Inc()
}

func (t *tally) mismatch(m domain.ReconciliationMismatch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Total++
	t.report.Mismatched++
	t.report.Mismatches = append(t.report.Mismatches, m)
	reconciliationRecords.WithLabelValues(string(m.Type)).Inc()
}

// Reconcile builds and stores the report for date (YYYY-MM-DD, UTC). A
// failing provider lookup becomes a LOOKUP_FAILED mismatch for that record
// only; failing to read the ledger aborts with ErrLedgerUnavailable.
// Rerunning a date replaces its report.
func (r *Reconciler) Reconcile(ctx context.Context, date string) (*domain.ReconciliationReport, error) {
	day, err := ParseReportDate(date)
	if err != nil {
		return nil, err
	}
	from, to := day, day.Add(24*time.Hour)

	ctx, span := tracer.Start(ctx, "Reconciler.Reconcile",
		trace.WithAttributes(attribute.String("reconcile.date", date)),
	)
	defer span.End()

	ctx = slogx.With(ctx, "date", date)
	log := slogx.FromContext(ctx)

	payments, err := r.Store.Payments().ListSettledPayments(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger unavailable")
		log.Error("reconciliation aborted: ledger unavailable", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	log.Info("reconciliation started", "payments", len(payments))

	now := r.now()
	t := &tally{report: &domain.ReconciliationReport{
		ID:         idx.NewAt(now).String(),
		Date:       date,
		Mismatches: []domain.ReconciliationMismatch{},
	}}

	rps := r.ProviderRPS
	if rps <= 0 {
		rps = DefaultProviderRPS
	}
	limiter := rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultReconcileConcurrency
	}

	// Lookups never return errors to the group: one record's failure must
	// not cancel the others.
	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, p := range payments {
		g.Go(func() error {
			r.reconcileOne(ctx, limiter, t, p)
			return nil
		})
	}
	_ = g.Wait()

	r.findMissingInternally(ctx, limiter, t, payments, from, to)

	report := t.report
	sort.SliceStable(report.Mismatches, func(i, j int) bool {
		a, b := report.Mismatches[i], report.Mismatches[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ProviderPaymentID < b.ProviderPaymentID
	})
	report.GeneratedAt = r.now()

	if err := r.Store.Reports().SaveReport(ctx, *report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save report failed")
		return nil, storageErr("save reconciliation report", err)
	}

	span.SetAttributes(
		attribute.Int("reconcile.total", report.Total),
		attribute.Int("reconcile.mismatched", report.Mismatched),
	)
	log.Info("reconciliation completed",
		"total", report.Total,
		"matched", report.Matched,
		"mismatched", report.Mismatched,
	)
	return report, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, limiter *rate.Limiter, t *tally, p domain.Payment) {
	base := domain.ReconciliationMismatch{
		PaymentID:         p.ID,
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		InternalStatus:    p.Status,
		InternalAmount:    p.AmountCents,
	}

	client, ok := r.Providers.Get(p.Provider)
	if !ok {
		base.Type = domain.MismatchLookupFailed
		base.Cause = "no client registered for provider"
		t.mismatch(base)
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		base.Type = domain.MismatchLookupFailed
		base.Cause = err.Error()
		t.mismatch(base)
		return
	}

	pp, err := client.GetPayment(ctx, p.ProviderPaymentID)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		base.Type = domain.MismatchMissingOnProvider
		t.mismatch(base)
		return
	case err != nil:
		slogx.FromContext(ctx).Warn("provider lookup failed",
			"provider", p.Provider,
			"provider_payment_id", p.ProviderPaymentID,
			"err", err,
		)
		base.Type = domain.MismatchLookupFailed
		base.Cause = err.Error()
		t.mismatch(base)
		return
	}

	if mt, diverged := classify(p, pp); diverged {
		base.Type = mt
		base.ProviderStatus = pp.Status
		base.ProviderAmount = pp.AmountCents
		t.mismatch(base)
		return
	}
	t.matched()
}

// classify checks status before amount; a record diverging on both is a
// status mismatch with both sides recorded.
func classify(p domain.Payment, pp domain.ProviderPayment) (domain.MismatchType, bool) {
	switch {
	case p.Status != pp.Status:
		return domain.MismatchStatus, true
	case p.AmountCents != pp.AmountCents:
		return domain.MismatchAmount, true
	default:
		return "", false
	}
}

// findMissingInternally asks providers that can list settlements for
// records the ledger does not have. A provider whose listing fails gets a
// LOOKUP_FAILED entry with no payment or provider payment id, so the report
// shows the check did not run.
func (r *Reconciler) findMissingInternally(
	ctx context.Context,
	limiter *rate.Limiter,
	t *tally,
	payments []domain.Payment,
	from, to time.Time,
) {
	known := make(map[string]map[string]struct{})
	for _, p := range payments {
		if known[p.Provider] == nil {
			known[p.Provider] = make(map[string]struct{})
		}
		known[p.Provider][p.ProviderPaymentID] = struct{}{}
	}

	for _, name := range r.Providers.Names() {
		lister, ok := r.Providers[name].(provider.Lister)
		if !ok {
			continue
		}
		var settled []domain.ProviderPayment
		err := limiter.Wait(ctx)
		if err == nil {
			settled, err = lister.ListSettled(ctx, from, to)
		}
		if err != nil {
			slogx.FromContext(ctx).Warn("provider listing failed; missing-internally check incomplete",
				"provider", name, "err", err)
			t.mismatch(domain.ReconciliationMismatch{
				Type:     domain.MismatchLookupFailed,
				Provider: name,
				Cause:    "list settled payments: " + err.Error(),
			})
			continue
		}
		for _, pp := range settled {
			if _, ok := known[name][pp.ProviderPaymentID]; ok {
				continue
			}
			t.mismatch(domain.ReconciliationMismatch{
				Type:              domain.MismatchMissingInternally,
				Provider:          name,
				ProviderPaymentID: pp.ProviderPaymentID,
				ProviderStatus:    pp.Status,
				ProviderAmount:    pp.AmountCents,
			})
		}
	}
}

// Report returns the stored report for date.
func (r *Reconciler) Report(ctx context.Context, date string) (*domain.ReconciliationReport, error) {
	if _, err := ParseReportDate(date); err != nil {
		return nil, err
	}
	rep, err := r.Store.Reports().GetReportByDate(ctx, date)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrReportNotFound
	case err != nil:
		return nil, storageErr("load reconciliation report", err)
	}
	return &rep, nil
}
