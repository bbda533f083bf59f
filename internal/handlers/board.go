package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskboard/internal/models"
	"taskboard/internal/store"
)

type nameRequest struct {
	Name string `json:"name"`
}

// ListBoards returns the caller's boards, newest first.
func (h *Handlers) ListBoards(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	boards, err := h.store.ListBoards(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, boards)
}

// CreateBoard creates a board with the default lists.
func (h *Handlers) CreateBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	board := &models.Board{OwnerID: userID, Name: req.Name}
	if err := board.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateBoard(r.Context(), board); err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, board)
}

// RenameBoard changes a board's name.
func (h *Handlers) RenameBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	board, err := h.store.RenameBoard(r.Context(), userID, id, req.Name)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, board)
}

// DeleteBoard deletes a board with all of its lists and tasks.
func (h *Handlers) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	if err := h.store.DeleteBoard(r.Context(), userID, id); err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Snapshot returns the board with its lists and tasks in order.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	snap, err := h.store.Snapshot(r.Context(), userID, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// Stream sends the board snapshot as a server-sent event on connect and
// again after every change to the board, until the client goes away.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "stream unsupported")
		return
	}

	ctx := r.Context()
	// subscribe before the first read so no change between them is missed
	changes, unsubscribe := h.publisher.Subscribe(ctx, id)
	defer unsubscribe()

	snap, err := h.store.Snapshot(ctx, userID, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.log.With(zap.String("board_id", id), zap.String("user_id", userID))
	log.Debug("stream opened")
	defer log.Debug("stream closed")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		if err := writeEvent(w, "snapshot", snap); err != nil {
			log.Debug("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()

	wait:
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case _, ok := <-changes:
				if !ok {
					return
				}
				break wait
			}
		}

		snap, err = h.store.Snapshot(ctx, userID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAccessDenied) {
				writeEvent(w, "error", map[string]string{"error": err.Error()})
				flusher.Flush()
				return
			}
			if ctx.Err() == nil {
				log.Error("stream snapshot failed", zap.Error(err))
			}
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
