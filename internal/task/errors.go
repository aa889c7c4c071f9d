package task

import (
	"errors"
	"fmt"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

var (
	// ErrInvalidTransition is returned for a status move the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCancelled is the cancellation cause for a task aborted by a caller.
	ErrCancelled = errors.New("task cancelled")

	// ErrShutdown is the cancellation cause for tasks aborted by engine shutdown.
	ErrShutdown = errors.New("engine shutting down")

	// ErrQueueFull is returned when the worker pool queue has no free slot.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is returned when submitting to a stopped worker pool.
	ErrQueueClosed = errors.New("task queue is closed")
)

// ValidationError reports a malformed submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports an unknown or deleted job, resume or task.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}

// TransitionError describes a rejected status move.
type TransitionError struct {
	TaskID string
	From   types.TaskStatus
	To     types.TaskStatus
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("task %s: cannot move from %s to %s", e.TaskID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// notFound converts a store not-found error into a NotFoundError and passes
// other errors through.
func notFound(entity, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}
