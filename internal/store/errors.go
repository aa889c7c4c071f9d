package store

import (
	"context"
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist or was soft-deleted.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write would violate a uniqueness rule,
	// such as a second live task for one job.
	ErrDuplicate = errors.New("record already exists")

	// ErrConflict is returned when a compare-and-set update finds a different status.
	ErrConflict = errors.New("record changed concurrently")

	// ErrImmutable is returned when updating a derived resume.
	ErrImmutable = errors.New("record is immutable")

	// ErrInvalidRecord is returned when a record fails store-level constraints.
	ErrInvalidRecord = errors.New("invalid record")
)

// Error carries the entity and operation of a failed store call.
type Error struct {
	Entity    string // "job", "resume", "task"
	Operation string // "create", "get", "update", ...
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Operation, e.Entity, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with entity and operation. It returns nil for nil errors.
func Wrap(entity, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Entity: entity, Operation: operation, Err: err}
}

// IsRetryable reports whether err may succeed when retried. Outcome errors
// such as not-found, duplicate or conflict are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrImmutable),
		errors.Is(err, ErrInvalidRecord),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
