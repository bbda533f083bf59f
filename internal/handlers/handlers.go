package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taskboard/internal/auth"
	"taskboard/internal/notify"
	"taskboard/internal/store"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store     store.Store
	publisher notify.Publisher
	log       *zap.Logger

	// heartbeat is the idle interval after which streams send a comment line.
	heartbeat time.Duration
}

// New creates a new Handlers instance. publisher wakes board streams and
// should be the same one the store notifies.
func New(s store.Store, publisher notify.Publisher, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		store:     s,
		publisher: publisher,
		log:       log,
		heartbeat: 15 * time.Second,
	}
}

// Register mounts the API routes on r. Callers put the auth middleware in
// front of them.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/boards", h.ListBoards)
	r.Post("/boards", h.CreateBoard)
	r.Put("/boards/{id}", h.RenameBoard)
	r.Delete("/boards/{id}", h.DeleteBoard)
	r.Get("/boards/{id}/snapshot", h.Snapshot)
	r.Get("/boards/{id}/stream", h.Stream)
	r.Get("/boards/{id}/upcoming", h.Upcoming)

	r.Post("/boards/{id}/lists", h.CreateList)
	r.Post("/boards/{id}/lists/reorder", h.ReorderLists)
	r.Put("/lists/{id}", h.RenameList)
	r.Delete("/lists/{id}", h.DeleteList)

	r.Post("/lists/{id}/tasks", h.CreateTask)
	r.Put("/tasks/{id}", h.UpdateTask)
	r.Delete("/tasks/{id}", h.DeleteTask)
	r.Post("/tasks/{id}/toggle", h.ToggleTask)
	r.Post("/tasks/{id}/move", h.MoveTask)
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseID extracts a non-empty ID from URL parameters.
func parseID(r *http.Request, param string) (string, error) {
	id := chi.URLParam(r, param)
	if id == "" {
		return "", fmt.Errorf("missing %s", param)
	}
	return id, nil
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// decodeJSON decodes the request body into v or writes a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func (h *Handlers) respondServerError(w http.ResponseWriter, err error) {
	h.log.Error("internal server error", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal server error")
}

// respondStoreError maps store sentinels to status codes.
func (h *Handlers) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAccessDenied):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.respondServerError(w, err)
	}
}
