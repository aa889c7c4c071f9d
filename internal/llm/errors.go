package llm

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsTransient reports whether a model call failed in a way that may succeed
// on a later attempt: rate limiting, server-side errors and timeouts.
// Invalid arguments, permission problems and blocked content are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable,
			codes.ResourceExhausted,
			codes.DeadlineExceeded,
			codes.Internal,
			codes.Aborted:
			return true
		}
	}
	return false
}
