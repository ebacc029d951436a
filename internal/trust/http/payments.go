package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

// PaymentsHandler serves the signed merchant endpoints that feed the fraud
// engine.
type PaymentsHandler struct {
	FraudEngine *service.FraudEngine

	// ClientIP fills ip_address when the merchant leaves it empty. Defaults
	// to the direct peer.
	ClientIP httpx.KeyExtractor
}

func (h *PaymentsHandler) clientIP(r *http.Request) string {
	if h.ClientIP != nil {
		return h.ClientIP(r)
	}
	return httpx.IPKeyExtractor(r)
}

// HandleCheck godoc
//
//	@Summary		Fraud check
//	@Description	Runs the fraud rule chain against a payment attempt. The first rule that matches rejects it.
//	@Description	When ip_address is empty the caller's address is used.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Security		SignedRequest
//	@Param			body	body		domain.PaymentAttempt		true	"Payment attempt"
//	@Success		200		{object}	domain.AntifraudResult		"allowed"
//	@Failure		400		{object}	httpx.ErrorResponse			"malformed body"
//	@Failure		401		{object}	httpx.ErrorResponse			"signature rejected"
//	@Failure		403		{object}	domain.AntifraudResult		"rejected, with rule and reason"
//	@Failure		429		{object}	httpx.ErrorResponse			"rate limited"
//	@Failure		503		{object}	httpx.ErrorResponse			"fraud check unavailable"
//	@Router			/v1/payments/check [post].
func (h *PaymentsHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var attempt domain.PaymentAttempt
	if err := httpx.DecodeJSON(w, r, &attempt); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed payment attempt")
		return
	}
	if strings.TrimSpace(attempt.IPAddress) == "" {
		attempt.IPAddress = h.clientIP(r)
	}

	var rejected *service.FraudRejectedError
	switch err := h.FraudEngine.Screen(ctx, attempt); {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, domain.Allow())
	case errors.As(err, &rejected):
		httpx.WriteJSON(w, http.StatusForbidden, domain.Reject(rejected.Rule, rejected.Reason))
	default:
		httpx.WriteError(w, http.StatusServiceUnavailable, "fraud_check_unavailable", "payment denied: fraud check unavailable")
	}
}

// HandleFailure godoc
//
//	@Summary		Report a failed payment
//	@Description	Counts a failed payment from an IP. Enough failures inside the window block the IP temporarily.
//	@Tags			Payments
//	@Accept			json
//	@Security		SignedRequest
//	@Param			body	body	FailureReport		true	"Failure"
//	@Success		204		"recorded"
//	@Failure		400		{object}	httpx.ErrorResponse	"missing ip_address"
//	@Failure		401		{object}	httpx.ErrorResponse	"signature rejected"
//	@Failure		503		{object}	httpx.ErrorResponse	"storage unavailable"
//	@Router			/v1/fraud/failures [post].
func (h *PaymentsHandler) HandleFailure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in FailureReport
	if err := httpx.DecodeJSON(w, r, &in); err != nil || strings.TrimSpace(in.IPAddress) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "ip_address is required")
		return
	}

	if err := h.FraudEngine.RecordFailedAttempt(ctx, strings.TrimSpace(in.IPAddress)); err != nil {
		slogx.FromContext(ctx).Error("record failed attempt", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "failure not recorded")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
