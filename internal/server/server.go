// Package server provides the HTTP API of the tailoring service: task
// submission and polling plus résumé and job records.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/resume-tailor/internal/config"
	"github.com/jonathan/resume-tailor/internal/server/middleware"
	"github.com/jonathan/resume-tailor/internal/server/ratelimit"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/task"
	"github.com/jonathan/resume-tailor/internal/types"
)

// maxBodyBytes caps request bodies; résumés are small JSON documents.
const maxBodyBytes = 2 << 20

// Orchestrator is the task engine surface the API drives.
type Orchestrator interface {
	Submit(ctx context.Context, job task.JobRef, resume task.ResumeRef, mode types.ContentMode) (string, error)
	SubmitBatch(ctx context.Context, resume task.ResumeRef, jobs []task.JobRef, mode types.ContentMode) ([]string, error)
	SubmitTaskBatch(ctx context.Context, resume task.ResumeRef, taskIDs []string) ([]string, error)
	Status(ctx context.Context, taskIDs []string) ([]*task.TaskView, error)
	StatusByJob(ctx context.Context, jobIDs []string) ([]*task.JobView, error)
	Get(ctx context.Context, taskID string) (*types.Task, error)
	List(ctx context.Context, filter store.TaskFilter) ([]*types.Task, error)
	Cancel(ctx context.Context, taskID string) (*types.Task, error)
	Retry(ctx context.Context, taskID string) (*types.Task, error)
	UpdateTask(ctx context.Context, taskID string, u task.FieldUpdate) (*types.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
}

var _ Orchestrator = (*task.Engine)(nil)

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	handler       http.Handler
	engine        Orchestrator
	store         store.Store
	jwt           *JWTService
	rateLimiter   *ratelimit.Limiter
	validate      *validator.Validate
	corsOrigins   []string
	eventInterval time.Duration
	logger        *slog.Logger

	// streams is cancelled by Shutdown so open event streams end instead of
	// holding their connections until the shutdown deadline.
	streams     context.Context
	stopStreams context.CancelFunc
}

// New creates a server. Bearer authentication is enabled on mutating
// routes when cfg.JWTSecret is set.
func New(cfg config.ServerConfig, engine Orchestrator, s store.Store, logger *slog.Logger) *Server {
	srv := &Server{
		engine:        engine,
		store:         s,
		validate:      validator.New(),
		corsOrigins:   cfg.CORSOrigins,
		eventInterval: time.Second,
		logger:        logger.With("component", "http"),
	}
	srv.streams, srv.stopStreams = context.WithCancel(context.Background())
	if cfg.JWTSecret != "" {
		srv.jwt = NewJWTService(cfg.JWTSecret, DefaultTokenTTL)
	}
	rl := cfg.RateLimit
	limits := ratelimit.DefaultConfig(rl.SubmitPerMinute, rl.SubmitBurst, rl.DefaultPerMinute, rl.DefaultBurst)
	limits.Enabled = rl.Enabled
	srv.rateLimiter = ratelimit.NewLimiter(limits)

	srv.handler = srv.withRecover(srv.withLogging(srv.withCORS(srv.withRateLimit(srv.routes()))))
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return srv
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	protect := s.protect

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /v1/tasks", protect(s.handleSubmit))
	mux.Handle("POST /v1/tasks/batch", protect(s.handleSubmitBatch))
	mux.Handle("POST /v1/tasks/attach", protect(s.handleAttach))
	mux.HandleFunc("POST /v1/tasks/status", s.handleTaskStatus)
	mux.HandleFunc("POST /v1/jobs/status", s.handleJobStatus)
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.Handle("PATCH /v1/tasks/{id}", protect(s.handleUpdateTask))
	mux.Handle("DELETE /v1/tasks/{id}", protect(s.handleDeleteTask))
	mux.Handle("POST /v1/tasks/{id}/cancel", protect(s.handleCancelTask))
	mux.Handle("POST /v1/tasks/{id}/retry", protect(s.handleRetryTask))
	mux.HandleFunc("GET /v1/tasks/{id}/events", s.handleTaskEvents)

	mux.Handle("POST /v1/resumes", protect(s.handleCreateResume))
	mux.HandleFunc("GET /v1/resumes", s.handleListResumes)
	mux.HandleFunc("GET /v1/resumes/{id}", s.handleGetResume)
	mux.Handle("PUT /v1/resumes/{id}", protect(s.handleUpdateResume))
	mux.Handle("DELETE /v1/resumes/{id}", protect(s.handleDeleteResume))

	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	mux.Handle("DELETE /v1/jobs/{id}", protect(s.handleDeleteJob))

	return mux
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server starting", "addr", s.httpServer.Addr, "auth", s.jwt != nil)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, ends open event streams and waits for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopStreams()
	s.rateLimiter.Stop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.jwt == nil {
		return h
	}
	return middleware.RequireBearer(s.jwt, func(w http.ResponseWriter, _ *http.Request) {
		s.errorResponse(w, http.StatusUnauthorized, "a valid bearer token is required")
	})(h)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.corsOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		}
		if !allowed {
			retry := int(info.RetryAfter.Round(time.Second).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			s.logger.Warn("rate limit exceeded", "client", clientID(r), "path", r.URL.Path, "limit", info.Limit)
			s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panic", "panic", p, "path", r.URL.Path, "stack", string(debug.Stack()))
				s.errorResponse(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code; it stays a Flusher for SSE.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return s.validate.Struct(v)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, ErrorResponse{Error: errorCode(status), Message: message})
}

// writeError maps err to a status code and writes it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	s.jsonResponse(w, status, ErrorResponse{
		Error:   errorCode(status),
		Message: message,
		Details: errorDetails(err),
	})
}

// clientID extracts the client identifier from the request.
// It uses the IP address from RemoteAddr.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
