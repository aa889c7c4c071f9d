package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"json code block", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"generic code block", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"code block with language", "```javascript\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"plain JSON", `{"key": "value"}`, `{"key": "value"}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
		{"array on fence line", "```[1, 2]```", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"rate limited rest", &googleapi.Error{Code: 429}, true},
		{"server error rest", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 503}), true},
		{"bad request rest", &googleapi.Error{Code: 400}, false},
		{"unavailable grpc", status.Error(codes.Unavailable, "try again"), true},
		{"quota grpc", status.Error(codes.ResourceExhausted, "quota"), true},
		{"invalid grpc", status.Error(codes.InvalidArgument, "bad prompt"), false},
		{"permission grpc", status.Error(codes.PermissionDenied, "bad key"), false},
		{"plain", errors.New("blocked by safety filter"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
