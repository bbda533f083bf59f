package handlers

import (
	"net/http"
	"strings"
	"time"

	"taskboard/internal/models"
)

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Priority    string     `json:"priority"`
	Color       string     `json:"color"`
}

// CreateTask appends a new task to a list.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	listID, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid list id")
		return
	}

	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	task := &models.Task{
		ListID:      listID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Deadline:    req.Deadline,
		Priority:    req.Priority,
		Color:       req.Color,
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	if err := task.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateTask(r.Context(), userID, task); err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, task)
}

// UpdateTask applies a partial update to a task's payload fields.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var patch models.TaskPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	task, err := h.store.UpdateTask(r.Context(), userID, id, patch)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// DeleteTask deletes a task.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.store.DeleteTask(r.Context(), userID, id); err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleTask toggles the completion status of a task.
func (h *Handlers) ToggleTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := h.store.ToggleTaskComplete(r.Context(), userID, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// MoveRequest is the body of a move. A missing Index places the task last.
type MoveRequest struct {
	ListID string `json:"list_id"`
	Index  *int   `json:"index,omitempty"`
}

// MoveTask moves a task to a position within the same or another list.
func (h *Handlers) MoveTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ListID == "" {
		respondError(w, http.StatusBadRequest, "list_id is required")
		return
	}

	ctx := r.Context()
	if err := h.store.MoveTask(ctx, userID, id, req.ListID, req.Index); err != nil {
		h.respondStoreError(w, err)
		return
	}

	task, err := h.store.GetTask(ctx, userID, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}
