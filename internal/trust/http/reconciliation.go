package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/pkg/httpx"
	"github.com/aussiebroadwan/trustcore/pkg/slogx"
)

type ReconciliationHandler struct {
	Reconciler *service.Reconciler
}

// HandleGet godoc
//
//	@Summary		Get reconciliation report
//	@Description	Returns the stored report for a day (UTC).
//	@Tags			Reconciliation
//	@Produce		json
//	@Security		BearerAuth
//	@Param			date	path		string							true	"Day, YYYY-MM-DD"
//	@Success		200		{object}	domain.ReconciliationReport
//	@Failure		400		{object}	httpx.ErrorResponse	"invalid date"
//	@Failure		401		{object}	httpx.ErrorResponse	"missing or invalid token"
//	@Failure		403		{object}	httpx.ErrorResponse	"admin required"
//	@Failure		404		{object}	httpx.ErrorResponse	"no report for date"
//	@Router			/v1/reconciliation/{date} [get].
func (h *ReconciliationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := service.ParseReportDate(date); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rep, err := h.Reconciler.Report(r.Context(), date)
	switch {
	case errors.Is(err, service.ErrReportNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no report for "+date)
	case err != nil:
		slogx.FromContext(r.Context()).Error("load reconciliation report", "date", date, "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "report store unavailable")
	default:
		httpx.WriteJSON(w, http.StatusOK, rep)
	}
}

// HandleRun godoc
//
//	@Summary		Run reconciliation
//	@Description	Reconciles the day against every registered provider and replaces its stored report.
//	@Tags			Reconciliation
//	@Produce		json
//	@Security		BearerAuth
//	@Param			date	path		string							true	"Day, YYYY-MM-DD"
//	@Success		200		{object}	domain.ReconciliationReport
//	@Failure		400		{object}	httpx.ErrorResponse	"invalid date"
//	@Failure		401		{object}	httpx.ErrorResponse	"missing or invalid token"
//	@Failure		403		{object}	httpx.ErrorResponse	"admin required"
//	@Failure		503		{object}	httpx.ErrorResponse	"ledger unavailable"
//	@Router			/v1/reconciliation/{date} [post].
func (h *ReconciliationHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := service.ParseReportDate(date); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rep, err := h.Reconciler.Reconcile(r.Context(), date)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "reconciliation failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}
