package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Priority values accepted for a task.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// DueSoonWindow is how far ahead a deadline counts as "due soon".
const DueSoonWindow = 3 * 24 * time.Hour

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Task represents a single card within a list.
type Task struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Priority    string     `json:"priority"` // "high", "medium", "low"
	Color       string     `json:"color,omitempty"`
	Completed   bool       `json:"completed"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks that the task has valid field values.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("title is required")
	}

	if t.ListID == "" {
		return errors.New("list_id is required")
	}

	if t.Priority != PriorityHigh && t.Priority != PriorityMedium && t.Priority != PriorityLow {
		return errors.New("priority must be 'high', 'medium', or 'low'")
	}

	if t.Color != "" && !colorPattern.MatchString(t.Color) {
		return errors.New("color must be a hex code like #a1b2c3")
	}

	return nil
}

// IsOverdue reports whether the deadline has passed. Completed tasks are never overdue.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.Completed || t.Deadline == nil {
		return false
	}
	return t.Deadline.Before(now)
}

// IsDueSoon reports whether the deadline falls within DueSoonWindow of now.
func (t *Task) IsDueSoon(now time.Time) bool {
	if t.Completed || t.Deadline == nil {
		return false
	}
	return t.Deadline.After(now) && !t.Deadline.After(now.Add(DueSoonWindow))
}

// DeadlineStatus returns "overdue", "due-soon" or "normal" plus a short
// human readable message. Tasks without a deadline report "normal" and "".
func (t *Task) DeadlineStatus(now time.Time) (string, string) {
	switch {
	case t.Deadline == nil:
		return "normal", ""
	case t.IsOverdue(now):
		return "overdue", "Overdue"
	case t.IsDueSoon(now):
		return "due-soon", "Due soon"
	default:
		return "normal", humanize.RelTime(*t.Deadline, now, "ago", "from now")
	}
}

// PriorityOrder returns a numeric value for sorting by priority.
// Lower numbers indicate higher priority.
func (t *Task) PriorityOrder() int {
	switch t.Priority {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 99
	}
}

// TaskPatch carries the task fields an update changes. Nil fields are left
// as they are.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Color       *string    `json:"color,omitempty"`
}

// Apply copies the set fields of p onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Deadline != nil {
		d := *p.Deadline
		t.Deadline = &d
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
}
