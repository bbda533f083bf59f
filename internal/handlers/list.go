package handlers

import (
	"net/http"

	"taskboard/internal/models"
)

// CreateList appends a list to a board.
func (h *Handlers) CreateList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	boardID, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	list := &models.List{BoardID: boardID, Name: req.Name}
	if err := list.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateList(r.Context(), userID, list); err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, list)
}

// RenameList changes a list's name.
func (h *Handlers) RenameList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid list id")
		return
	}

	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	list, err := h.store.RenameList(r.Context(), userID, id, req.Name)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// DeleteList deletes a list and its tasks.
func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid list id")
		return
	}

	if err := h.store.DeleteList(r.Context(), userID, id); err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReorderLists updates the order of lists within a board.
func (h *Handlers) ReorderLists(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	boardID, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	var payload struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.store.ReorderLists(r.Context(), userID, boardID, payload.IDs); err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
