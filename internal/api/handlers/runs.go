package handlers

import (
	"net/http"

	"github.com/minipass/reconciler/internal/api/dto"
	"github.com/minipass/reconciler/internal/application/operator"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// RunsHandler handles scan-run HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(svc *operator.Service) *RunsHandler {
	return &RunsHandler{Base: NewBase(svc)}
}

// List handles GET /api/runs - returns recent pipeline passes.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.svc.ListScanRuns(limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.ScanRunListResponse{
		Runs:  make([]dto.ScanRunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toScanRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// toScanRunResponse converts a storage ScanRun to an API response.
func toScanRunResponse(run storage.ScanRun) dto.ScanRunResponse {
	return dto.ScanRunResponse{
		ID:              run.ID,
		PassID:          run.PassID,
		Account:         run.Account,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		MessagesSeen:    run.MessagesSeen,
		MessagesMatched: run.MessagesMatched,
		MessagesSkipped: run.MessagesSkipped,
		MessagesErrored: run.MessagesErrored,
		Status:          run.Status,
	}
}
