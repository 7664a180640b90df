package handlers

import (
	"net/http"

	"github.com/minipass/reconciler/internal/api/dto"
	"github.com/minipass/reconciler/internal/application/operator"
)

// StatsHandler handles dashboard statistics requests.
type StatsHandler struct {
	*Base
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(svc *operator.Service) *StatsHandler {
	return &StatsHandler{Base: NewBase(svc)}
}

// Get handles GET /api/stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.StatsResponse{
		TotalAttempts:   stats.TotalAttempts,
		ByResult:        stats.ByResult,
		ArchivedCount:   stats.ArchivedCount,
		UnpaidPassports: stats.UnpaidPassports,
		PaidPassports:   stats.PaidPassports,
	})
}
