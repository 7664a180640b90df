package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/minipass/reconciler/internal/api/dto"
	"github.com/minipass/reconciler/internal/application/operator"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// AttemptsHandler handles payment-attempt HTTP requests.
type AttemptsHandler struct {
	*Base
}

// NewAttemptsHandler creates a new attempts handler.
func NewAttemptsHandler(svc *operator.Service) *AttemptsHandler {
	return &AttemptsHandler{Base: NewBase(svc)}
}

// List handles GET /api/attempts.
// Query parameters: result, archived (true/false), days, limit, offset.
func (h *AttemptsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.AttemptFilters{
		Result:   r.URL.Query().Get("result"),
		DaysBack: ParseIntParam(r, "days", 0),
		Limit:    ParseIntParam(r, "limit", 50),
		Offset:   ParseIntParam(r, "offset", 0),
	}
	switch r.URL.Query().Get("archived") {
	case "true", "1":
		v := true
		filters.Archived = &v
	case "false", "0":
		v := false
		filters.Archived = &v
	}

	result, err := h.svc.ListAttempts(filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.AttemptListResponse{
		Attempts:   make([]dto.AttemptResponse, 0, len(result.Attempts)),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}
	for _, a := range result.Attempts {
		response.Attempts = append(response.Attempts, toAttemptResponse(a))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/attempts/{id}.
func (h *AttemptsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid attempt ID"))
		return
	}

	attempt, err := h.svc.GetAttempt(id)
	if err != nil {
		h.WriteStorageError(w, "attempt", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

// Archive handles POST /api/attempts/{id}/archive.
func (h *AttemptsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid attempt ID"))
		return
	}

	if err := h.svc.ArchiveAttempt(id); err != nil {
		h.WriteStorageError(w, "attempt", err)
		return
	}

	h.writeUpdated(w, id)
}

// Unarchive handles POST /api/attempts/{id}/unarchive.
func (h *AttemptsHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid attempt ID"))
		return
	}

	if err := h.svc.UnarchiveAttempt(id); err != nil {
		h.WriteStorageError(w, "attempt", err)
		return
	}

	h.writeUpdated(w, id)
}

// ManualMatch handles POST /api/attempts/{id}/match.
func (h *AttemptsHandler) ManualMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid attempt ID"))
		return
	}

	var req dto.ManualMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if msg := req.Validate(); msg != "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(msg))
		return
	}

	if err := h.svc.ManualMatch(id, req.PassportID, req.Note); err != nil {
		h.WriteStorageError(w, "attempt", err)
		return
	}

	h.writeUpdated(w, id)
}

// writeUpdated re-reads the attempt and returns its current state.
func (h *AttemptsHandler) writeUpdated(w http.ResponseWriter, id int64) {
	attempt, err := h.svc.GetAttempt(id)
	if err != nil {
		h.WriteStorageError(w, "attempt", err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

// toAttemptResponse converts a storage attempt to an API response.
func toAttemptResponse(a *storage.PaymentAttempt) dto.AttemptResponse {
	return dto.AttemptResponse{
		ID:                a.ID,
		ReceivedAt:        a.ReceivedAt,
		PayerName:         a.PayerNameRaw,
		Amount:            a.Amount().StringFixed(2),
		Currency:          a.Currency,
		Result:            string(a.Result),
		MatchedPassportID: a.MatchedPassportID,
		Score:             a.Score,
		RunnerUpScore:     a.RunnerUpScore,
		CandidateCount:    a.CandidateCount,
		Note:              a.Note,
		SourceMessageID:   a.SourceMessageID,
		Archived:          a.Archived,
		CreatedAt:         a.CreatedAt,
	}
}
