// Package store defines the persistence contract for jobs, resumes and tasks.
// Every read excludes soft-deleted records.
package store

import (
	"context"
	"time"

	"github.com/jonathan/resume-tailor/internal/types"
)

// JobStore persists job postings.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.Job) (*types.Job, error)
	GetJob(ctx context.Context, id string) (*types.Job, error)
	GetJobsByIDs(ctx context.Context, ids []string) ([]*types.Job, error)
	ListJobs(ctx context.Context) ([]*types.Job, error)
	UpdateJob(ctx context.Context, id string, patch JobPatch) (*types.Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// ResumeStore persists raw and derived resumes. Derived resumes are append-only.
type ResumeStore interface {
	CreateResume(ctx context.Context, resume *types.Resume) (*types.Resume, error)
	GetResume(ctx context.Context, id string) (*types.Resume, error)
	GetResumesByIDs(ctx context.Context, ids []string) ([]*types.Resume, error)
	ListResumes(ctx context.Context, filter ResumeFilter) ([]*types.Resume, error)
	UpdateRawResume(ctx context.Context, id string, content types.Document) (*types.Resume, error)
	DeleteResume(ctx context.Context, id string) error
}

// TaskStore persists tasks. At most one live task exists per job id;
// CreateTask returns ErrDuplicate otherwise.
type TaskStore interface {
	CreateTask(ctx context.Context, task *types.Task) (*types.Task, error)
	GetTask(ctx context.Context, id string) (*types.Task, error)
	GetTasksByIDs(ctx context.Context, ids []string) ([]*types.Task, error)
	GetTasksByJobIDs(ctx context.Context, jobIDs []string) ([]*types.Task, error)
	FindTaskByJob(ctx context.Context, jobID string) (*types.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*types.Task, error)
	// UpdateTask applies patch to a live task. When expect is non-nil the
	// write only happens if the stored status equals *expect; otherwise
	// ErrConflict is returned.
	UpdateTask(ctx context.Context, id string, expect *types.TaskStatus, patch TaskPatch) (*types.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Store is the full persistence surface used by the engine and the API.
type Store interface {
	JobStore
	ResumeStore
	TaskStore
}

// JobPatch lists job fields to overwrite. Nil fields are left unchanged.
type JobPatch struct {
	RawText *string
	Title   *string
	Company *string
	Link    *string
	Status  *types.JobStatus
	Parsed  *types.ParsedJob
}

// TaskPatch lists task fields to overwrite. Nil fields are left unchanged.
type TaskPatch struct {
	Status      *types.TaskStatus
	RawResumeID *string
	NewResumeID *string
	ContentMode *types.ContentMode
	TimeUsed    *float64
	Error       *string
	ErrorKind   *types.ErrorKind
	Attempts    *int
	StartedAt   *time.Time
	FinishedAt  *time.Time
	// ClearResult resets new_resume_id, time_used, error, error_kind and
	// finished_at before the other fields are applied.
	ClearResult bool
}

// ResumeFilter narrows ListResumes.
type ResumeFilter struct {
	RawOnly bool
	JobID   string
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Statuses      []types.TaskStatus
	UpdatedBefore time.Time
	Limit         int
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}
