package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// Fields are the result fields written together with a status change.
type Fields struct {
	RawResumeID string
	NewResumeID string
	TimeUsed    time.Duration
	Err         error
	ErrorKind   types.ErrorKind
}

// FieldUpdate is a manual correction of a task that has not started.
type FieldUpdate struct {
	ContentMode *types.ContentMode
	RawResumeID *string
}

// Registry owns task records and every status change made to them.
type Registry struct {
	store        store.TaskStore
	logger       *slog.Logger
	group        singleflight.Group
	retries      uint64
	retryBackoff time.Duration
	now          func() time.Time
}

// NewRegistry creates a registry over a task store. Store writes that fail
// with a retryable error are retried up to retries times with exponential
// backoff starting at backoff.
func NewRegistry(s store.TaskStore, logger *slog.Logger, retries int, backoff time.Duration) *Registry {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Registry{
		store:        s,
		logger:       logger.With("component", "registry"),
		retries:      uint64(retries),
		retryBackoff: backoff,
		now:          time.Now,
	}
}

type findResult struct {
	task    *types.Task
	existed bool
}

// FindOrCreate returns the live task for jobID, creating it when none exists.
// The new task is WAITING when a resume is given and DEFAULT otherwise.
// Concurrent calls for one job collapse into a single lookup in this process,
// and the store's uniqueness rule covers other processes.
func (r *Registry) FindOrCreate(ctx context.Context, jobID, rawResumeID string, mode types.ContentMode) (*types.Task, bool, error) {
	ran := false
	v, err, _ := r.group.Do(jobID, func() (interface{}, error) {
		ran = true
		existing, err := r.store.FindTaskByJob(ctx, jobID)
		if err == nil {
			return findResult{task: existing, existed: true}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		created, err := r.create(ctx, jobID, rawResumeID, initialStatus(rawResumeID), mode)
		if errors.Is(err, store.ErrDuplicate) {
			existing, err := r.store.FindTaskByJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			return findResult{task: existing, existed: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return findResult{task: created}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(findResult)
	task := *res.task
	// Callers that joined another caller's lookup did not create the task.
	return &task, res.existed || !ran, nil
}

// Create inserts a fresh WAITING task for jobID. If the job already has a
// live task, that task is returned with existed set.
func (r *Registry) Create(ctx context.Context, jobID, rawResumeID string, mode types.ContentMode) (*types.Task, bool, error) {
	created, err := r.create(ctx, jobID, rawResumeID, initialStatus(rawResumeID), mode)
	if err == nil {
		return created, false, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, false, err
	}
	existing, err := r.store.FindTaskByJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	r.logger.Info("job already has a task, reusing it", "job_id", jobID, "task_id", existing.ID)
	return existing, true, nil
}

func (r *Registry) create(ctx context.Context, jobID, rawResumeID string, status types.TaskStatus, mode types.ContentMode) (*types.Task, error) {
	var created *types.Task
	err := r.withRetry(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = r.store.CreateTask(ctx, &types.Task{
			JobID:       jobID,
			RawResumeID: rawResumeID,
			Status:      status,
			ContentMode: mode,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("task created", "task_id", created.ID, "job_id", jobID, "status", status.String())
	return created, nil
}

func initialStatus(rawResumeID string) types.TaskStatus {
	if rawResumeID == "" {
		return types.TaskStatusDefault
	}
	return types.TaskStatusWaiting
}

// Get returns a live task.
func (r *Registry) Get(ctx context.Context, taskID string) (*types.Task, error) {
	t, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, notFound("task", taskID, err)
	}
	return t, nil
}

// maxConflicts bounds how often a transition re-reads after losing a race.
const maxConflicts = 3

// Transition moves a task to status to, writing fields in the same update.
// The write is a compare-and-set on the status that was validated, so two
// concurrent transitions cannot both succeed from the same state.
func (r *Registry) Transition(ctx context.Context, taskID string, to types.TaskStatus, f Fields) (*types.Task, error) {
	for attempt := 0; ; attempt++ {
		current, err := r.readForUpdate(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if err := validateTransition(current, to, f); err != nil {
			return nil, err
		}

		updated, err := r.write(ctx, current, to, f)
		if errors.Is(err, store.ErrConflict) && attempt < maxConflicts {
			r.logger.Debug("status changed during transition, re-reading", "task_id", taskID)
			continue
		}
		if err != nil {
			return nil, notFound("task", taskID, err)
		}

		r.logger.Info("task status changed",
			"task_id", taskID,
			"job_id", updated.JobID,
			"from", current.Status.String(),
			"to", to.String(),
		)
		return updated, nil
	}
}

func (r *Registry) readForUpdate(ctx context.Context, taskID string) (*types.Task, error) {
	var current *types.Task
	err := r.withRetry(ctx, "get", func(ctx context.Context) error {
		var err error
		current, err = r.store.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, notFound("task", taskID, err)
	}
	return current, nil
}

func (r *Registry) write(ctx context.Context, current *types.Task, to types.TaskStatus, f Fields) (*types.Task, error) {
	now := r.now().UTC()
	patch := store.TaskPatch{Status: &to}

	switch to {
	case types.TaskStatusWaiting:
		if current.Status == types.TaskStatusFailed {
			patch.ClearResult = true
		}
		if f.RawResumeID != "" {
			patch.RawResumeID = &f.RawResumeID
		}
	case types.TaskStatusPending:
		attempts := current.Attempts + 1
		patch.Attempts = &attempts
		patch.StartedAt = &now
	case types.TaskStatusDone:
		seconds := f.TimeUsed.Seconds()
		patch.NewResumeID = &f.NewResumeID
		patch.TimeUsed = &seconds
		patch.FinishedAt = &now
	case types.TaskStatusFailed:
		msg := f.Err.Error()
		kind := f.ErrorKind
		patch.Error = &msg
		patch.ErrorKind = &kind
		patch.FinishedAt = &now
		if f.TimeUsed > 0 {
			seconds := f.TimeUsed.Seconds()
			patch.TimeUsed = &seconds
		}
	}

	var updated *types.Task
	expect := current.Status
	err := r.withRetry(ctx, "update", func(ctx context.Context) error {
		var err error
		updated, err = r.store.UpdateTask(ctx, current.ID, &expect, patch)
		return err
	})
	return updated, err
}

// UpdateFields applies a manual correction to a task that has not started.
func (r *Registry) UpdateFields(ctx context.Context, taskID string, u FieldUpdate) (*types.Task, error) {
	current, err := r.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.Status != types.TaskStatusDefault && current.Status != types.TaskStatusWaiting {
		return nil, &TransitionError{TaskID: taskID, From: current.Status, To: current.Status, Reason: "only tasks that have not started can be edited"}
	}
	if u.ContentMode != nil && !u.ContentMode.Valid() {
		return nil, &ValidationError{Field: "content_mode", Message: "must be one of resume, experiences, summary"}
	}
	if u.RawResumeID != nil && *u.RawResumeID == "" && current.Status == types.TaskStatusWaiting {
		return nil, &ValidationError{Field: "raw_resume_id", Message: "a waiting task needs a resume"}
	}

	patch := store.TaskPatch{ContentMode: u.ContentMode, RawResumeID: u.RawResumeID}
	var updated *types.Task
	expect := current.Status
	err = r.withRetry(ctx, "update", func(ctx context.Context) error {
		var uerr error
		updated, uerr = r.store.UpdateTask(ctx, taskID, &expect, patch)
		return uerr
	})
	if err != nil {
		return nil, notFound("task", taskID, err)
	}
	return updated, nil
}

// Delete soft-deletes a task.
func (r *Registry) Delete(ctx context.Context, taskID string) error {
	return notFound("task", taskID, r.store.DeleteTask(ctx, taskID))
}

// List returns tasks matching filter.
func (r *Registry) List(ctx context.Context, filter store.TaskFilter) ([]*types.Task, error) {
	return r.store.ListTasks(ctx, filter)
}

// withRetry runs fn, retrying store failures that may be transient.
func (r *Registry) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(r.retries, retry.WithJitterPercent(10, retry.NewExponential(r.retryBackoff)))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && store.IsRetryable(err) {
			r.logger.Warn("store operation failed, retrying", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
