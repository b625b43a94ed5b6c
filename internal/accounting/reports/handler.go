package reports

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler serves ledger reports.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance", h.trialBalance)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := httpx.IntQuery(r, "fiscal_year", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := httpx.IntQuery(r, "period", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.GetTrialBalance(r.Context(), tenant, Query{FiscalYear: year, Period: period})
	if err != nil {
		if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
			h.logger.Error("trial balance", slog.Any("error", err), slog.String("tenant", tenant.String()))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}
