package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"taskboard/internal/models"
	"taskboard/internal/reorder"
)

// SQLiteStore implements the Store interface using SQLite.
//
// The pool is limited to a single connection, so write transactions are
// serialized and every move sees the orders committed by the previous one.
type SQLiteStore struct {
	db       *sql.DB
	notifier Notifier
	log      *zap.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithNotifier publishes the ID of every board a committed write touched.
func WithNotifier(n Notifier) Option {
	return func(s *SQLiteStore) { s.notifier = n }
}

// WithLogger sets the logger used for notification failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteStore) { s.log = l }
}

// NewSQLiteStore creates a new SQLite store with the given database path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(store)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppliedMigrations returns the recorded migration versions in order.
func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn in a transaction and publishes the touched boards after commit.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) ([]string, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	boards, err := fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publish(ctx, boards...)
	return nil
}

func (s *SQLiteStore) publish(ctx context.Context, boardIDs ...string) {
	if s.notifier == nil {
		return
	}
	seen := make(map[string]bool, len(boardIDs))
	for _, id := range boardIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.notifier.Publish(ctx, id); err != nil {
			s.log.Warn("failed to publish board change", zap.String("board_id", id), zap.Error(err))
		}
	}
}

// ownedBoard checks that boardID exists and belongs to userID.
func ownedBoard(ctx context.Context, q querier, userID, boardID string) error {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT owner_id FROM boards WHERE id = ?`, boardID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("board %s: %w", boardID, ErrNotFound)
		}
		return fmt.Errorf("failed to get board: %w", err)
	}
	if owner != userID {
		return fmt.Errorf("board %s: %w", boardID, ErrAccessDenied)
	}
	return nil
}

// ownedList returns the board of listID after checking it belongs to userID.
func ownedList(ctx context.Context, q querier, userID, listID string) (string, error) {
	var boardID, owner string
	err := q.QueryRowContext(ctx, `
		SELECT b.id, b.owner_id FROM lists l JOIN boards b ON b.id = l.board_id
		WHERE l.id = ?
	`, listID).Scan(&boardID, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("list %s: %w", listID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get list: %w", err)
	}
	if owner != userID {
		return "", fmt.Errorf("list %s: %w", listID, ErrAccessDenied)
	}
	return boardID, nil
}

// ownedTask returns the list and board of taskID after checking it belongs to userID.
func ownedTask(ctx context.Context, q querier, userID, taskID string) (listID, boardID string, err error) {
	var owner string
	err = q.QueryRowContext(ctx, `
		SELECT l.id, b.id, b.owner_id FROM tasks t
		JOIN lists l ON l.id = t.list_id
		JOIN boards b ON b.id = l.board_id
		WHERE t.id = ?
	`, taskID).Scan(&listID, &boardID, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return "", "", fmt.Errorf("failed to get task: %w", err)
	}
	if owner != userID {
		return "", "", fmt.Errorf("task %s: %w", taskID, ErrAccessDenied)
	}
	return listID, boardID, nil
}

// CreateBoard creates a board together with its default lists.
func (s *SQLiteStore) CreateBoard(ctx context.Context, board *models.Board) error {
	now := time.Now()
	board.ID = uuid.NewString()
	board.CreatedAt = now
	board.UpdatedAt = now

	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO boards (id, owner_id, name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, board.ID, board.OwnerID, board.Name, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create board: %w", err)
		}

		for i, name := range models.DefaultListNames {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO lists (id, board_id, name, sort_order, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), board.ID, name, i, now, now)
			if err != nil {
				return nil, fmt.Errorf("failed to create default list: %w", err)
			}
		}
		return []string{board.ID}, nil
	})
}

// GetBoard retrieves a board by ID.
func (s *SQLiteStore) GetBoard(ctx context.Context, userID, id string) (*models.Board, error) {
	board := &models.Board{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at, updated_at FROM boards WHERE id = ?
	`, id).Scan(&board.ID, &board.OwnerID, &board.Name, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	if board.OwnerID != userID {
		return nil, fmt.Errorf("board %s: %w", id, ErrAccessDenied)
	}
	return board, nil
}

// ListBoards retrieves the user's boards, newest first.
func (s *SQLiteStore) ListBoards(ctx context.Context, userID string) ([]models.Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at, updated_at
		FROM boards WHERE owner_id = ? ORDER BY created_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	boards := []models.Board{}
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, b)
	}

	return boards, rows.Err()
}

// RenameBoard changes a board's name.
func (s *SQLiteStore) RenameBoard(ctx context.Context, userID, id, name string) (*models.Board, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidArgument)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		if err := ownedBoard(ctx, tx, userID, id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE boards SET name = ?, updated_at = ? WHERE id = ?`,
			strings.TrimSpace(name), time.Now(), id); err != nil {
			return nil, fmt.Errorf("failed to update board: %w", err)
		}
		return []string{id}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBoard(ctx, userID, id)
}

// DeleteBoard deletes a board, its lists and their tasks.
func (s *SQLiteStore) DeleteBoard(ctx context.Context, userID, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		if err := ownedBoard(ctx, tx, userID, id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete board: %w", err)
		}
		return []string{id}, nil
	})
}

// Snapshot returns the board with all of its lists and tasks in order.
func (s *SQLiteStore) Snapshot(ctx context.Context, userID, boardID string) (models.Snapshot, error) {
	board, err := s.GetBoard(ctx, userID, boardID)
	if err != nil {
		return models.Snapshot{}, err
	}

	lists, err := loadLists(ctx, s.db, boardID)
	if err != nil {
		return models.Snapshot{}, err
	}

	tasks, err := loadTasks(ctx, s.db, `
		SELECT t.id, t.list_id, t.title, t.description, t.deadline, t.priority, t.color,
			t.completed, t.sort_order, t.created_at, t.updated_at
		FROM tasks t JOIN lists l ON l.id = t.list_id
		WHERE l.board_id = ?
		ORDER BY l.sort_order ASC, t.sort_order ASC
	`, boardID)
	if err != nil {
		return models.Snapshot{}, err
	}

	byList := make(map[string]int, len(lists))
	for i := range lists {
		byList[lists[i].ID] = i
	}
	for _, t := range tasks {
		i := byList[t.ListID]
		lists[i].Tasks = append(lists[i].Tasks, t)
	}

	return models.Snapshot{Board: *board, Lists: lists}, nil
}

func loadLists(ctx context.Context, q querier, boardID string) ([]models.List, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, board_id, name, sort_order, created_at, updated_at
		FROM lists WHERE board_id = ? ORDER BY sort_order ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lists: %w", err)
	}
	defer rows.Close()

	lists := []models.List{}
	for rows.Next() {
		l := models.List{Tasks: []models.Task{}}
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Name, &l.Order, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func scanTask(scan func(dest ...any) error) (models.Task, error) {
	var t models.Task
	var deadline sql.NullTime
	err := scan(
		&t.ID,
		&t.ListID,
		&t.Title,
		&t.Description,
		&deadline,
		&t.Priority,
		&t.Color,
		&t.Completed,
		&t.Order,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	if deadline.Valid {
		d := deadline.Time
		t.Deadline = &d
	}
	return t, nil
}

func loadTasks(ctx context.Context, q querier, query string, args ...any) ([]models.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

const taskColumns = `id, list_id, title, description, deadline, priority, color, completed, sort_order, created_at, updated_at`

func listTasks(ctx context.Context, q querier, listID string) ([]models.Task, error) {
	return loadTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks WHERE list_id = ? ORDER BY sort_order ASC`, listID)
}

// CreateList appends a list to its board.
func (s *SQLiteStore) CreateList(ctx context.Context, userID string, list *models.List) error {
	now := time.Now()

	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		if err := ownedBoard(ctx, tx, userID, list.BoardID); err != nil {
			return nil, err
		}

		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sort_order), -1) + 1 FROM lists WHERE board_id = ?
		`, list.BoardID).Scan(&next); err != nil {
			return nil, fmt.Errorf("failed to get next list order: %w", err)
		}

		list.ID = uuid.NewString()
		list.Order = next
		list.CreatedAt = now
		list.UpdatedAt = now
		list.Tasks = []models.Task{}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO lists (id, board_id, name, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, list.ID, list.BoardID, list.Name, list.Order, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create list: %w", err)
		}
		return []string{list.BoardID}, nil
	})
}

// GetList retrieves a list and its tasks.
func (s *SQLiteStore) GetList(ctx context.Context, userID, id string) (*models.List, error) {
	if _, err := ownedList(ctx, s.db, userID, id); err != nil {
		return nil, err
	}

	l := &models.List{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, name, sort_order, created_at, updated_at FROM lists WHERE id = ?
	`, id).Scan(&l.ID, &l.BoardID, &l.Name, &l.Order, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get list: %w", err)
	}

	tasks, err := listTasks(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	l.Tasks = tasks
	return l, nil
}

// RenameList changes a list's name.
func (s *SQLiteStore) RenameList(ctx context.Context, userID, id, name string) (*models.List, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidArgument)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		boardID, err := ownedList(ctx, tx, userID, id)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE lists SET name = ?, updated_at = ? WHERE id = ?`,
			strings.TrimSpace(name), time.Now(), id); err != nil {
			return nil, fmt.Errorf("failed to update list: %w", err)
		}
		return []string{boardID}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetList(ctx, userID, id)
}

// DeleteList deletes a list with its tasks and closes the gap in the board's list order.
func (s *SQLiteStore) DeleteList(ctx context.Context, userID, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		boardID, err := ownedList(ctx, tx, userID, id)
		if err != nil {
			return nil, err
		}

		var order int
		if err := tx.QueryRowContext(ctx, `SELECT sort_order FROM lists WHERE id = ?`, id).Scan(&order); err != nil {
			return nil, fmt.Errorf("failed to get list order: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete list: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE lists SET sort_order = sort_order - 1 WHERE board_id = ? AND sort_order > ?
		`, boardID, order); err != nil {
			return nil, fmt.Errorf("failed to renumber lists: %w", err)
		}
		return []string{boardID}, nil
	})
}

// ReorderLists sets the order of a board's lists to the order of ids, which
// must name every list of the board exactly once.
func (s *SQLiteStore) ReorderLists(ctx context.Context, userID, boardID string, ids []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		if err := ownedBoard(ctx, tx, userID, boardID); err != nil {
			return nil, err
		}

		lists, err := loadLists(ctx, tx, boardID)
		if err != nil {
			return nil, err
		}
		if len(lists) != len(ids) {
			return nil, fmt.Errorf("expected %d list ids, got %d: %w", len(lists), len(ids), ErrInvalidArgument)
		}
		known := make(map[string]bool, len(lists))
		for _, l := range lists {
			known[l.ID] = true
		}
		for _, id := range ids {
			if !known[id] {
				return nil, fmt.Errorf("list %s is not on board %s or repeated: %w", id, boardID, ErrInvalidArgument)
			}
			delete(known, id)
		}

		stmt, err := tx.PrepareContext(ctx, `UPDATE lists SET sort_order = ?, updated_at = ? WHERE id = ?`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, i, now, id); err != nil {
				return nil, fmt.Errorf("failed to update sort order: %w", err)
			}
		}
		return []string{boardID}, nil
	})
}

// CreateTask appends a task to its list.
func (s *SQLiteStore) CreateTask(ctx context.Context, userID string, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidArgument)
	}
	now := time.Now()

	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		boardID, err := ownedList(ctx, tx, userID, task.ListID)
		if err != nil {
			return nil, err
		}

		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sort_order), -1) + 1 FROM tasks WHERE list_id = ?
		`, task.ListID).Scan(&next); err != nil {
			return nil, fmt.Errorf("failed to get next task order: %w", err)
		}

		task.ID = uuid.NewString()
		task.Order = next
		task.Completed = false
		task.CreatedAt = now
		task.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, task.ListID, task.Title, task.Description, nullableTime(task.Deadline),
			task.Priority, task.Color, task.Completed, task.Order, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		return []string{boardID}, nil
	})
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	if _, _, err := ownedTask(ctx, s.db, userID, id); err != nil {
		return nil, err
	}
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q querier, id string) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

// UpdateTask applies patch to a task's payload fields.
func (s *SQLiteStore) UpdateTask(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error) {
	var updated *models.Task
	err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		_, boardID, err := ownedTask(ctx, tx, userID, id)
		if err != nil {
			return nil, err
		}
		task, err := getTask(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		patch.Apply(task)
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", err.Error(), ErrInvalidArgument)
		}
		task.UpdatedAt = time.Now()

		_, err = tx.ExecContext(ctx, `
			UPDATE tasks
			SET title = ?, description = ?, deadline = ?, priority = ?, color = ?, updated_at = ?
			WHERE id = ?
		`, task.Title, task.Description, nullableTime(task.Deadline), task.Priority, task.Color, task.UpdatedAt, id)
		if err != nil {
			return nil, fmt.Errorf("failed to update task: %w", err)
		}
		updated = task
		return []string{boardID}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask deletes a task and closes the gap in its list's order.
func (s *SQLiteStore) DeleteTask(ctx context.Context, userID, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		listID, boardID, err := ownedTask(ctx, tx, userID, id)
		if err != nil {
			return nil, err
		}

		var order int
		if err := tx.QueryRowContext(ctx, `SELECT sort_order FROM tasks WHERE id = ?`, id).Scan(&order); err != nil {
			return nil, fmt.Errorf("failed to get task order: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete task: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET sort_order = sort_order - 1 WHERE list_id = ? AND sort_order > ?
		`, listID, order); err != nil {
			return nil, fmt.Errorf("failed to renumber tasks: %w", err)
		}
		return []string{boardID}, nil
	})
}

// ToggleTaskComplete toggles the completed status of a task.
func (s *SQLiteStore) ToggleTaskComplete(ctx context.Context, userID, id string) (*models.Task, error) {
	var toggled *models.Task
	err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		_, boardID, err := ownedTask(ctx, tx, userID, id)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET completed = NOT completed, updated_at = ? WHERE id = ?
		`, time.Now(), id); err != nil {
			return nil, fmt.Errorf("failed to toggle task complete: %w", err)
		}
		toggled, err = getTask(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return []string{boardID}, nil
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}

// MoveTask moves a task within its list or into another list the user owns.
// The new orders are computed the same way clients compute their optimistic
// view and only rows whose list or order changed are written.
func (s *SQLiteStore) MoveTask(ctx context.Context, userID, taskID, listID string, index *int) error {
	return s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		srcListID, srcBoardID, err := ownedTask(ctx, tx, userID, taskID)
		if err != nil {
			return nil, err
		}
		dstBoardID, err := ownedList(ctx, tx, userID, listID)
		if err != nil {
			return nil, err
		}

		before := models.Snapshot{}
		src, err := listTasks(ctx, tx, srcListID)
		if err != nil {
			return nil, err
		}
		before.Lists = append(before.Lists, models.List{ID: srcListID, BoardID: srcBoardID, Tasks: src})

		target := len(src) - 1
		if listID != srcListID {
			dst, err := listTasks(ctx, tx, listID)
			if err != nil {
				return nil, err
			}
			before.Lists = append(before.Lists, models.List{ID: listID, BoardID: dstBoardID, Tasks: dst})
			target = len(dst)
		}
		if index != nil {
			target = *index
		}

		after := reorder.ComputeMove(before, taskID, listID, target)
		changed := reorder.Changed(before, after)
		if len(changed) == 0 {
			return nil, nil
		}

		stmt, err := tx.PrepareContext(ctx, `UPDATE tasks SET list_id = ?, sort_order = ?, updated_at = ? WHERE id = ?`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, t := range changed {
			if _, err := stmt.ExecContext(ctx, t.ListID, t.Order, now, t.ID); err != nil {
				return nil, fmt.Errorf("failed to update task order: %w", err)
			}
		}
		return []string{srcBoardID, dstBoardID}, nil
	})
}
