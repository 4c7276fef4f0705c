package repository

import "errors"

var (
	// ErrNotFound is returned when the addressed document or object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyApplied is returned when an idempotent write was already committed
	// for the same event key.
	ErrAlreadyApplied = errors.New("already applied")
	// ErrConflict is returned when a unique value is already held by another document.
	ErrConflict = errors.New("conflict")
)
