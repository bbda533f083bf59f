package store

import (
	"context"

	"taskboard/internal/models"
)

// Store defines the interface for data persistence operations. Every
// operation acts on behalf of userID and fails with ErrAccessDenied when
// the board involved belongs to someone else.
type Store interface {
	// Board operations
	CreateBoard(ctx context.Context, board *models.Board) error
	GetBoard(ctx context.Context, userID, id string) (*models.Board, error)
	ListBoards(ctx context.Context, userID string) ([]models.Board, error)
	RenameBoard(ctx context.Context, userID, id, name string) (*models.Board, error)
	DeleteBoard(ctx context.Context, userID, id string) error
	Snapshot(ctx context.Context, userID, boardID string) (models.Snapshot, error)

	// List operations
	CreateList(ctx context.Context, userID string, list *models.List) error
	GetList(ctx context.Context, userID, id string) (*models.List, error)
	RenameList(ctx context.Context, userID, id, name string) (*models.List, error)
	DeleteList(ctx context.Context, userID, id string) error
	ReorderLists(ctx context.Context, userID, boardID string, ids []string) error

	// Task operations
	CreateTask(ctx context.Context, userID string, task *models.Task) error
	GetTask(ctx context.Context, userID, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	ToggleTaskComplete(ctx context.Context, userID, id string) (*models.Task, error)
	// MoveTask places a task at index within listID, renumbering every
	// affected list. A nil index means the end of the list.
	MoveTask(ctx context.Context, userID, taskID, listID string, index *int) error

	// Lifecycle
	Close() error
}

// Notifier is told which board changed after every committed write.
type Notifier interface {
	Publish(ctx context.Context, boardID string) error
}
