package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"taskboard/internal/auth"
	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/store"
)

func setupTestHandlers(t *testing.T) (*Handlers, *store.SQLiteStore) {
	t.Helper()
	hub := notify.NewHub()
	s, err := store.NewSQLiteStore(":memory:", store.WithNotifier(hub))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, hub, zaptest.NewLogger(t))
	return h, s
}

// newRequest builds a request as the auth middleware and chi router would
// hand it to a handler.
func newRequest(method, target, userID string, body any, params map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func seedBoard(t *testing.T, s *store.SQLiteStore, owner string) models.Snapshot {
	t.Helper()
	ctx := context.Background()
	b := &models.Board{OwnerID: owner, Name: "Board"}
	if err := s.CreateBoard(ctx, b); err != nil {
		t.Fatalf("CreateBoard failed: %v", err)
	}
	snap, err := s.Snapshot(ctx, owner, b.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return snap
}

func seedTask(t *testing.T, s *store.SQLiteStore, owner, listID, title string) *models.Task {
	t.Helper()
	task := &models.Task{ListID: listID, Title: title, Priority: "medium"}
	if err := s.CreateTask(context.Background(), owner, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not json: %q", rec.Body.String())
	}
	return body["error"]
}

func TestHealthz(t *testing.T) {
	h, _ := setupTestHandlers(t)
	rec := httptest.NewRecorder()

	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestHandlers_RequireUser(t *testing.T) {
	h, _ := setupTestHandlers(t)
	rec := httptest.NewRecorder()

	h.ListBoards(rec, newRequest("GET", "/api/boards", "", nil, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestCreateBoardHandler_Success(t *testing.T) {
	h, s := setupTestHandlers(t)
	rec := httptest.NewRecorder()

	h.CreateBoard(rec, newRequest("POST", "/api/boards", "u1", map[string]string{"name": "Work"}, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var board models.Board
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if board.OwnerID != "u1" || board.Name != "Work" {
		t.Errorf("unexpected board %+v", board)
	}

	snap, err := s.Snapshot(context.Background(), "u1", board.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Lists) != 3 {
		t.Errorf("expected default lists, got %d", len(snap.Lists))
	}
}

func TestCreateBoardHandler_ValidationError(t *testing.T) {
	h, _ := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.CreateBoard(rec, newRequest("POST", "/api/boards", "u1", map[string]string{"name": ""}, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = httptest.NewRecorder()
	req := newRequest("POST", "/api/boards", "u1", nil, nil)
	req.Body = http.NoBody
	h.CreateBoard(rec, req)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "invalid json" {
		t.Errorf("expected invalid json 400, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestListBoardsHandler(t *testing.T) {
	h, s := setupTestHandlers(t)
	seedBoard(t, s, "u1")
	seedBoard(t, s, "u2")

	rec := httptest.NewRecorder()
	h.ListBoards(rec, newRequest("GET", "/api/boards", "u1", nil, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var boards []models.Board
	json.Unmarshal(rec.Body.Bytes(), &boards)
	if len(boards) != 1 || boards[0].OwnerID != "u1" {
		t.Errorf("expected only the caller's board, got %+v", boards)
	}
}

func TestBoardHandlers_StatusMapping(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")

	tests := []struct {
		name   string
		user   string
		id     string
		body   any
		call   func(http.ResponseWriter, *http.Request)
		status int
	}{
		{name: "snapshot ok", user: "u1", id: snap.Board.ID, call: h.Snapshot, status: http.StatusOK},
		{name: "snapshot foreign", user: "u2", id: snap.Board.ID, call: h.Snapshot, status: http.StatusForbidden},
		{name: "snapshot missing", user: "u1", id: "missing", call: h.Snapshot, status: http.StatusNotFound},
		{name: "rename blank", user: "u1", id: snap.Board.ID, body: map[string]string{"name": " "}, call: h.RenameBoard, status: http.StatusBadRequest},
		{name: "rename ok", user: "u1", id: snap.Board.ID, body: map[string]string{"name": "Renamed"}, call: h.RenameBoard, status: http.StatusOK},
		{name: "delete foreign", user: "u2", id: snap.Board.ID, call: h.DeleteBoard, status: http.StatusForbidden},
		{name: "delete ok", user: "u1", id: snap.Board.ID, call: h.DeleteBoard, status: http.StatusNoContent},
		{name: "snapshot after delete", user: "u1", id: snap.Board.ID, call: h.Snapshot, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.call(rec, newRequest("GET", "/api/boards/x", tt.user, tt.body, map[string]string{"id": tt.id}))
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSnapshotHandler_Body(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")
	seedTask(t, s, "u1", snap.Lists[0].ID, "first")

	rec := httptest.NewRecorder()
	h.Snapshot(rec, newRequest("GET", "/api/boards/x/snapshot", "u1", nil, map[string]string{"id": snap.Board.ID}))

	var got models.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid snapshot: %v", err)
	}
	if len(got.Lists) != 3 || len(got.Lists[0].Tasks) != 1 || got.Lists[0].Tasks[0].Title != "first" {
		t.Errorf("unexpected snapshot %+v", got)
	}
	if got.Lists[1].Tasks == nil {
		t.Error("expected empty lists to encode as []")
	}
}

func TestListHandlers(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")

	rec := httptest.NewRecorder()
	h.CreateList(rec, newRequest("POST", "/api/boards/x/lists", "u1", map[string]string{"name": "Blocked"}, map[string]string{"id": snap.Board.ID}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateList: expected %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var list models.List
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Order != 3 {
		t.Errorf("expected new list at order 3, got %d", list.Order)
	}

	rec = httptest.NewRecorder()
	h.RenameList(rec, newRequest("PUT", "/api/lists/x", "u1", map[string]string{"name": "Waiting"}, map[string]string{"id": list.ID}))
	if rec.Code != http.StatusOK {
		t.Errorf("RenameList: expected %d, got %d", http.StatusOK, rec.Code)
	}

	ids := []string{list.ID, snap.Lists[0].ID, snap.Lists[1].ID, snap.Lists[2].ID}
	rec = httptest.NewRecorder()
	h.ReorderLists(rec, newRequest("POST", "/api/boards/x/lists/reorder", "u1", map[string][]string{"ids": ids}, map[string]string{"id": snap.Board.ID}))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ReorderLists: expected %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
	after, _ := s.Snapshot(context.Background(), "u1", snap.Board.ID)
	if after.Lists[0].Name != "Waiting" {
		t.Errorf("expected Waiting first, got %s", after.Lists[0].Name)
	}

	rec = httptest.NewRecorder()
	h.ReorderLists(rec, newRequest("POST", "/api/boards/x/lists/reorder", "u1", map[string][]string{"ids": ids[:2]}, map[string]string{"id": snap.Board.ID}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ReorderLists partial: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = httptest.NewRecorder()
	h.DeleteList(rec, newRequest("DELETE", "/api/lists/x", "u2", nil, map[string]string{"id": list.ID}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("DeleteList foreign: expected %d, got %d", http.StatusForbidden, rec.Code)
	}

	rec = httptest.NewRecorder()
	h.DeleteList(rec, newRequest("DELETE", "/api/lists/x", "u1", nil, map[string]string{"id": list.ID}))
	if rec.Code != http.StatusNoContent {
		t.Errorf("DeleteList: expected %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestCreateTaskHandler_Success(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")

	body := map[string]any{"title": "  New Task ", "deadline": "2026-11-01T09:00:00Z", "color": "#00ff00"}
	rec := httptest.NewRecorder()
	h.CreateTask(rec, newRequest("POST", "/api/lists/x/tasks", "u1", body, map[string]string{"id": snap.Lists[0].ID}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var task models.Task
	json.Unmarshal(rec.Body.Bytes(), &task)
	if task.Title != "New Task" || task.Priority != "medium" || task.Deadline == nil || task.Order != 0 {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestCreateTaskHandler_ValidationError(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{name: "blank title", body: map[string]any{"title": " "}, want: "title is required"},
		{name: "bad priority", body: map[string]any{"title": "x", "priority": "urgent"}, want: "priority must be 'high', 'medium', or 'low'"},
		{name: "bad color", body: map[string]any{"title": "x", "color": "red"}, want: "color must be a hex code like #a1b2c3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.CreateTask(rec, newRequest("POST", "/api/lists/x/tasks", "u1", tt.body, map[string]string{"id": snap.Lists[0].ID}))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if got := decodeError(t, rec); got != tt.want {
				t.Errorf("expected error %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUpdateTaskHandler_Partial(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")
	task := seedTask(t, s, "u1", snap.Lists[0].ID, "Original")

	rec := httptest.NewRecorder()
	h.UpdateTask(rec, newRequest("PUT", "/api/tasks/x", "u1", map[string]string{"priority": "high"}, map[string]string{"id": task.ID}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	updated, err := s.GetTask(context.Background(), "u1", task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if updated.Title != "Original" || updated.Priority != "high" {
		t.Errorf("unexpected task after patch %+v", updated)
	}

	rec = httptest.NewRecorder()
	h.UpdateTask(rec, newRequest("PUT", "/api/tasks/x", "u1", map[string]string{"title": ""}, map[string]string{"id": task.ID}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestToggleAndDeleteTaskHandlers(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")
	task := seedTask(t, s, "u1", snap.Lists[0].ID, "Toggle")

	rec := httptest.NewRecorder()
	h.ToggleTask(rec, newRequest("POST", "/api/tasks/x/toggle", "u1", nil, map[string]string{"id": task.ID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var toggled models.Task
	json.Unmarshal(rec.Body.Bytes(), &toggled)
	if !toggled.Completed {
		t.Error("expected task to be completed")
	}

	rec = httptest.NewRecorder()
	h.DeleteTask(rec, newRequest("DELETE", "/api/tasks/x", "u1", nil, map[string]string{"id": task.ID}))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ToggleTask(rec, newRequest("POST", "/api/tasks/x/toggle", "u1", nil, map[string]string{"id": task.ID}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestMoveTaskHandler(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")
	t1 := seedTask(t, s, "u1", snap.Lists[0].ID, "T1")
	seedTask(t, s, "u1", snap.Lists[0].ID, "T2")

	zero := 0
	rec := httptest.NewRecorder()
	h.MoveTask(rec, newRequest("POST", "/api/tasks/x/move", "u1", MoveRequest{ListID: snap.Lists[1].ID, Index: &zero}, map[string]string{"id": t1.ID}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var moved models.Task
	json.Unmarshal(rec.Body.Bytes(), &moved)
	if moved.ListID != snap.Lists[1].ID || moved.Order != 0 {
		t.Errorf("unexpected task after move %+v", moved)
	}

	after, _ := s.Snapshot(context.Background(), "u1", snap.Board.ID)
	if len(after.Lists[0].Tasks) != 1 || after.Lists[0].Tasks[0].Order != 0 {
		t.Errorf("source list not renumbered: %+v", after.Lists[0].Tasks)
	}

	tests := []struct {
		name   string
		user   string
		body   MoveRequest
		status int
	}{
		{name: "missing list id", user: "u1", body: MoveRequest{}, status: http.StatusBadRequest},
		{name: "unknown list", user: "u1", body: MoveRequest{ListID: "nope"}, status: http.StatusNotFound},
		{name: "foreign user", user: "u2", body: MoveRequest{ListID: snap.Lists[0].ID}, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.MoveTask(rec, newRequest("POST", "/api/tasks/x/move", tt.user, tt.body, map[string]string{"id": t1.ID}))
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpcomingHandler(t *testing.T) {
	h, s := setupTestHandlers(t)
	ctx := context.Background()
	snap := seedBoard(t, s, "u1")
	now := time.Now()

	add := func(title string, deadline time.Time, priority string) {
		d := deadline
		task := &models.Task{ListID: snap.Lists[0].ID, Title: title, Priority: priority, Deadline: &d}
		if err := s.CreateTask(ctx, "u1", task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}
	add("later", now.Add(10*24*time.Hour), "low")
	add("soon", now.Add(24*time.Hour), "low")
	add("late", now.Add(-24*time.Hour), "low")
	add("far", now.Add(60*24*time.Hour), "high")
	seedTask(t, s, "u1", snap.Lists[1].ID, "no deadline")

	rec := httptest.NewRecorder()
	req := newRequest("GET", "/api/boards/x/upcoming?days=14", "u1", nil, map[string]string{"id": snap.Board.ID})
	h.Upcoming(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var got []UpcomingTask
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	var titles, statuses []string
	for _, u := range got {
		titles = append(titles, u.Title)
		statuses = append(statuses, u.Status)
	}
	if strings.Join(titles, ",") != "late,soon,later" {
		t.Errorf("unexpected order %v", titles)
	}
	if strings.Join(statuses, ",") != "overdue,due-soon,normal" {
		t.Errorf("unexpected statuses %v", statuses)
	}

	rec = httptest.NewRecorder()
	h.Upcoming(rec, newRequest("GET", "/api/boards/x/upcoming?days=5", "u1", nil, map[string]string{"id": snap.Board.ID}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for unsupported days, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestStreamHandler_SendsSnapshotOnChange(t *testing.T) {
	h, s := setupTestHandlers(t)
	h.heartbeat = 20 * time.Millisecond
	snap := seedBoard(t, s, "u1")
	task := seedTask(t, s, "u1", snap.Lists[0].ID, "T1")

	a := auth.New([]byte("secret"), "taskboard", time.Hour)
	token, _ := a.Issue("u1")
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(a.Middleware)
		h.Register(r)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/boards/"+snap.Board.ID+"/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	events := make(chan models.Snapshot, 4)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev models.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err == nil {
				events <- ev
			}
		}
	}()

	next := func() models.Snapshot {
		t.Helper()
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
		return models.Snapshot{}
	}

	first := next()
	if len(first.Lists[0].Tasks) != 1 {
		t.Fatalf("expected initial snapshot with one task, got %+v", first.Lists[0].Tasks)
	}

	if err := s.MoveTask(context.Background(), "u1", task.ID, snap.Lists[2].ID, nil); err != nil {
		t.Fatalf("MoveTask failed: %v", err)
	}

	second := next()
	if len(second.Lists[0].Tasks) != 0 || len(second.Lists[2].Tasks) != 1 {
		t.Errorf("expected moved task in pushed snapshot, got %+v", second.Lists)
	}
}

func TestStreamHandler_RejectsForeignBoard(t *testing.T) {
	h, s := setupTestHandlers(t)
	snap := seedBoard(t, s, "u1")

	rec := httptest.NewRecorder()
	h.Stream(rec, newRequest("GET", "/api/boards/x/stream", "u2", nil, map[string]string{"id": snap.Board.ID}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}
