package domain

import "time"

// Payment is an internal ledger record.
type Payment struct {
	ID                string
	MerchantID        string
	Provider          string
	ProviderPaymentID string
	AmountCents       int64
	Currency          string
	Status            string
	SettledAt         time.Time
}

// ProviderPayment is the normalised provider-side view of a payment.
type ProviderPayment struct {
	ProviderPaymentID string `json:"provider_payment_id"`
	Status            string `json:"status"`
	AmountCents       int64  `json:"amount_cents"`
}

type MismatchType string

const (
	MismatchStatus            MismatchType = "STATUS_MISMATCH"
	MismatchAmount            MismatchType = "AMOUNT_MISMATCH"
	MismatchMissingOnProvider MismatchType = "MISSING_ON_PROVIDER"
	MismatchMissingInternally MismatchType = "MISSING_INTERNALLY"
	MismatchLookupFailed      MismatchType = "LOOKUP_FAILED"
)

// ReconciliationMismatch records both sides of a divergence. Fields for a
// side that does not exist are left zero.
type ReconciliationMismatch struct {
	Type              MismatchType `json:"type"`
	PaymentID         string       `json:"payment_id,omitempty"`
	Provider          string       `json:"provider"`
	ProviderPaymentID string       `json:"provider_payment_id"`
	InternalStatus    string       `json:"internal_status,omitempty"`
	ProviderStatus    string       `json:"provider_status,omitempty"`
	InternalAmount    int64        `json:"internal_amount_cents,omitempty"`
	ProviderAmount    int64        `json:"provider_amount_cents,omitempty"`
	Cause             string       `json:"cause,omitempty"`
}

// ReconciliationReport summarises one day. Matched + Mismatched == Total.
type ReconciliationReport struct {
	ID          string                   `json:"id"`
	Date        string                   `json:"date"` // YYYY-MM-DD, UTC
	Total       int                      `json:"total_payments"`
	Matched     int                      `json:"matched_payments"`
	Mismatched  int                      `json:"mismatched_payments"`
	Mismatches  []ReconciliationMismatch `json:"mismatches"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// DateLayout is the format of ReconciliationReport.Date.
const DateLayout = time.DateOnly
