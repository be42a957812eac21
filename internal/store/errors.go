package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("duplicate record")

// ErrConflict is returned when a conditional update finds the row
// no longer in the expected state.
var ErrConflict = errors.New("state conflict")
