package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/resume-tailor/internal/task"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// handleTaskEvents streams a task's status until it is DONE or FAILED. A
// "status" event is sent on every change and a final "complete" event
// carries the terminal view.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.engine.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Streams outlive the server write timeout; the loop ends on its own.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("failed to clear stream write deadline", "task_id", id, "error", err)
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.eventInterval)
	defer ticker.Stop()

	var last *task.TaskView
	for {
		views, err := s.engine.Status(r.Context(), []string{id})
		if err != nil {
			sse.WriteError(err.Error())
			return
		}
		view := views[0]
		if view == nil {
			sse.WriteError("task deleted")
			return
		}
		if last == nil || view.Status != last.Status || !view.UpdatedAt.Equal(last.UpdatedAt) {
			if view.Status.IsTerminal() {
				sse.WriteEvent("complete", view) //nolint:errcheck
				return
			}
			if err := sse.WriteEvent("status", view); err != nil {
				return
			}
			last = view
		}

		select {
		case <-r.Context().Done():
			return
		case <-s.streams.Done():
			sse.WriteError("server shutting down")
			return
		case <-ticker.C:
		}
	}
}
