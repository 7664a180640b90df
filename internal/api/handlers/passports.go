package handlers

import (
	"net/http"

	"github.com/minipass/reconciler/internal/api/dto"
	"github.com/minipass/reconciler/internal/application/operator"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// PassportsHandler handles passport HTTP requests.
type PassportsHandler struct {
	*Base
}

// NewPassportsHandler creates a new passports handler.
func NewPassportsHandler(svc *operator.Service) *PassportsHandler {
	return &PassportsHandler{Base: NewBase(svc)}
}

// Get handles GET /api/passports/{id}.
func (h *PassportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid passport ID"))
		return
	}

	passport, err := h.svc.GetPassport(id)
	if err != nil {
		h.WriteStorageError(w, "passport", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toPassportResponse(passport))
}

// Reopen handles POST /api/passports/{id}/reopen.
func (h *PassportsHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid passport ID"))
		return
	}

	if err := h.svc.ReopenPassport(id); err != nil {
		h.WriteStorageError(w, "passport", err)
		return
	}

	passport, err := h.svc.GetPassport(id)
	if err != nil {
		h.WriteStorageError(w, "passport", err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toPassportResponse(passport))
}

// toPassportResponse converts a storage passport to an API response.
func toPassportResponse(p *storage.Passport) dto.PassportResponse {
	return dto.PassportResponse{
		ID:             p.ID,
		OwnerName:      p.OwnerName,
		LinkedUserName: p.LinkedUserName,
		AmountDue:      p.AmountDue().StringFixed(2),
		Paid:           p.Paid,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
	}
}
