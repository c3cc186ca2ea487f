package store

import "errors"

var (
	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-key violations (incident code, email).
	ErrConflict = errors.New("conflict")
	// ErrCapacityExceeded is returned when a year's incident sequence would
	// pass 9999. The code format is fixed-width; the sequence never widens.
	ErrCapacityExceeded = errors.New("incident code capacity exceeded")
)
