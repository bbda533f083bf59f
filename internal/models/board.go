package models

import (
	"errors"
	"strings"
	"time"
)

// DefaultListNames are the lists every new board starts with.
var DefaultListNames = []string{"To Do", "In Progress", "Done"}

// Board groups ordered lists of tasks and belongs to a single user.
type Board struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the board has valid field values.
func (b *Board) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("name is required")
	}
	if b.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	return nil
}

// List is an ordered column of tasks on a board.
type List struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Tasks holds the tasks for this list (populated by snapshot queries)
	Tasks []Task `json:"tasks"`
}

// Validate checks that the list has valid field values.
func (l *List) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return errors.New("name is required")
	}
	if l.BoardID == "" {
		return errors.New("board_id is required")
	}
	return nil
}

// Snapshot is the full state of one board: its lists in order, each with
// its tasks in order. A snapshot is treated as an immutable value; code that
// derives a new snapshot copies the lists it changes.
type Snapshot struct {
	Board Board  `json:"board"`
	Lists []List `json:"lists"`
}

// FindList returns the index of the list with the given ID, or -1.
func (s Snapshot) FindList(listID string) int {
	for i := range s.Lists {
		if s.Lists[i].ID == listID {
			return i
		}
	}
	return -1
}

// TaskCount returns the number of tasks across all lists.
func (s Snapshot) TaskCount() int {
	n := 0
	for _, l := range s.Lists {
		n += len(l.Tasks)
	}
	return n
}
