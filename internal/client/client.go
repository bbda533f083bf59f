// Package client talks to a taskboard server. It sends moves and streams
// board snapshots for the reconciler, and wraps the CRUD endpoints the CLI
// uses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"taskboard/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is an HTTP client for the taskboard API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	log     *zap.Logger

	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for API calls. Streams share its
// transport but never time out.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithBackOff sets the reconnect policy for snapshot streams.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// New returns a client for the server at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = &http.Client{Transport: c.http.Transport}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func escape(id string) string {
	return url.PathEscape(id)
}

// ListBoards returns the caller's boards.
func (c *Client) ListBoards(ctx context.Context) ([]models.Board, error) {
	var boards []models.Board
	err := c.do(ctx, http.MethodGet, "/api/boards", nil, &boards)
	return boards, err
}

// CreateBoard creates a board with the default lists.
func (c *Client) CreateBoard(ctx context.Context, name string) (*models.Board, error) {
	var board models.Board
	if err := c.do(ctx, http.MethodPost, "/api/boards", map[string]string{"name": name}, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// Snapshot fetches the current state of a board.
func (c *Client) Snapshot(ctx context.Context, boardID string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/boards/"+escape(boardID)+"/snapshot", nil, &snap)
	return snap, err
}

// CreateList appends a list to a board.
func (c *Client) CreateList(ctx context.Context, boardID, name string) (*models.List, error) {
	var list models.List
	if err := c.do(ctx, http.MethodPost, "/api/boards/"+escape(boardID)+"/lists", map[string]string{"name": name}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateTask appends a task to a list.
func (c *Client) CreateTask(ctx context.Context, task models.Task) (*models.Task, error) {
	in := map[string]any{
		"title":       task.Title,
		"description": task.Description,
		"priority":    task.Priority,
		"color":       task.Color,
	}
	if task.Deadline != nil {
		in["deadline"] = task.Deadline
	}
	var created models.Task
	if err := c.do(ctx, http.MethodPost, "/api/lists/"+escape(task.ListID)+"/tasks", in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ToggleTask flips a task's completion.
func (c *Client) ToggleTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+escape(taskID)+"/toggle", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// MoveTask asks the server to place taskID at index within listID.
func (c *Client) MoveTask(ctx context.Context, taskID, listID string, index int) error {
	in := map[string]any{"list_id": listID, "index": index}
	return c.do(ctx, http.MethodPost, "/api/tasks/"+escape(taskID)+"/move", in, nil)
}
