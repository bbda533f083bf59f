package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"taskboard/internal/models"
)

// UpcomingTask is an open task with a deadline, annotated for display.
type UpcomingTask struct {
	models.Task
	ListName string `json:"list_name"`
	Status   string `json:"deadline_status"` // "overdue", "due-soon" or "normal"
	Message  string `json:"deadline_message"`
}

// Upcoming lists a board's open tasks due within the next days (7, 14 or
// 30; default 30), overdue tasks first, then by deadline and priority.
func (h *Handlers) Upcoming(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid board id")
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		days, err = strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid days")
			return
		}
		if days != 7 && days != 14 && days != 30 {
			respondError(w, http.StatusBadRequest, "days must be 7, 14, or 30")
			return
		}
	}

	snap, err := h.store.Snapshot(r.Context(), userID, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	now := time.Now()
	end := now.AddDate(0, 0, days)

	upcoming := make([]UpcomingTask, 0)
	for _, l := range snap.Lists {
		for _, task := range l.Tasks {
			if task.Completed || task.Deadline == nil || task.Deadline.After(end) {
				continue
			}
			status, msg := task.DeadlineStatus(now)
			upcoming = append(upcoming, UpcomingTask{
				Task:     task,
				ListName: l.Name,
				Status:   status,
				Message:  msg,
			})
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		left, right := upcoming[i], upcoming[j]
		leftOverdue, rightOverdue := left.Status == "overdue", right.Status == "overdue"
		if leftOverdue != rightOverdue {
			return leftOverdue
		}
		if !left.Deadline.Equal(*right.Deadline) {
			return left.Deadline.Before(*right.Deadline)
		}
		return left.PriorityOrder() < right.PriorityOrder()
	})

	respondJSON(w, http.StatusOK, upcoming)
}
