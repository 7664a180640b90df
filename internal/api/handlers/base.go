package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/minipass/reconciler/internal/api/dto"
	"github.com/minipass/reconciler/internal/application/operator"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct {
	svc *operator.Service
}

// NewBase creates a new base handler with the given operator service.
func NewBase(svc *operator.Service) *Base {
	return &Base{svc: svc}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteStorageError maps repository sentinels to HTTP statuses.
func (b *Base) WriteStorageError(w http.ResponseWriter, resource string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError(resource))
	case errors.Is(err, storage.ErrDuplicateMessage),
		errors.Is(err, storage.ErrPassportAlreadyPaid),
		errors.Is(err, storage.ErrPassportNotPaid),
		errors.Is(err, storage.ErrAttemptAlreadyMatched):
		b.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
	default:
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// IDParam parses the {id} URL parameter.
func IDParam(r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
