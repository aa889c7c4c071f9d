package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jonathan/resume-tailor/internal/server"
	"github.com/jonathan/resume-tailor/internal/task"
	"github.com/jonathan/resume-tailor/internal/types"
)

// apiClient talks to a running resume_agent server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
	backoff time.Duration
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		backoff: 500 * time.Millisecond,
	}
}

// apiError is a non-2xx response decoded from the server's error body.
type apiError struct {
	Status   int
	Response server.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Response.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Response.Error, e.Status, e.Response.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func (c *apiClient) Submit(ctx context.Context, req server.SubmitRequest) (string, error) {
	var resp server.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

func (c *apiClient) Status(ctx context.Context, ids []string) ([]*task.TaskView, error) {
	var views []*task.TaskView
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/status", server.TaskIDsRequest{TaskIDs: ids}, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *apiClient) Job(ctx context.Context, id string) (*types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Wait polls until every task reaches DONE or FAILED.
func (c *apiClient) Wait(ctx context.Context, ids []string, interval time.Duration) ([]*task.TaskView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		views, err := c.Status(ctx, ids)
		if err != nil {
			return nil, err
		}
		if allTerminal(views) {
			return views, nil
		}
		select {
		case <-ctx.Done():
			return views, ctx.Err()
		case <-ticker.C:
		}
	}
}

func allTerminal(views []*task.TaskView) bool {
	for _, v := range views {
		if v != nil && v.Task != nil && !v.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// do sends a JSON request. Rate limiting and 5xx responses are retried.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(c.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 300 {
			apiErr := &apiError{Status: resp.StatusCode}
			_ = json.Unmarshal(data, &apiErr.Response)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, out)
	})
}
