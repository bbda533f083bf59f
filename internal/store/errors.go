package store

import "errors"

var (
	// ErrNotFound is returned when a board, list or task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when the row exists but belongs to another user.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidArgument is returned for requests that cannot be applied as given.
	ErrInvalidArgument = errors.New("invalid argument")
)
