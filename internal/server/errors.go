package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/resume-tailor/internal/schemas"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/task"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		reqErr    *ErrValidation
		taskErr   *task.ValidationError
		schemaErr *schemas.ValidationError
		fieldErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &taskErr), errors.As(err, &schemaErr), errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrImmutable):
		return http.StatusConflict
	case errors.Is(err, task.ErrQueueFull), errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the machine-readable error field for status.
func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// errorDetails exposes structured validation failures to clients.
func errorDetails(err error) any {
	var (
		schemaErr *schemas.ValidationError
		fieldErrs validator.ValidationErrors
		taskErr   *task.ValidationError
		reqErr    *ErrValidation
	)
	switch {
	case errors.As(err, &schemaErr):
		return schemaErr.Errors
	case errors.As(err, &fieldErrs):
		out := make([]map[string]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
		}
		return out
	case errors.As(err, &taskErr):
		return map[string]string{"field": taskErr.Field}
	case errors.As(err, &reqErr):
		return map[string]string{"field": reqErr.Field}
	}
	return nil
}
