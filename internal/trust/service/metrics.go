package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// Label values are fixed sets so cardinality stays bounded; API keys, IPs
// and user ids never become labels.
var (
	signatureVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_signature_verifications_total",
			Help: "Signed request verifications by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_ratelimit_decisions_total",
			Help: "Rate limiter decisions by outcome.",
		},
		[]string{"outcome"},
	)

	fraudDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_fraud_decisions_total",
			Help: "Fraud checks by triggered rule; allowed checks use rule=\"none\".",
		},
		[]string{"rule"},
	)

	refreshRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_refresh_redemptions_total",
			Help: "Refresh token redemptions by outcome.",
		},
		[]string{"outcome"},
	)

	reconciliationRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_reconciliation_records_total",
			Help: "Reconciled records by result (matched or mismatch type).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		signatureVerifications,
		rateLimitDecisions,
		fraudDecisions,
		refreshRedemptions,
		reconciliationRecords,
	)
}

var tracer = otel.Tracer("trustcore")
