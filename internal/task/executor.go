package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/resume-tailor/internal/enrich"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// finalizeTimeout bounds the FAILED write made after a task's own context is gone.
const finalizeTimeout = 10 * time.Second

// Request identifies one task execution.
type Request struct {
	TaskID   string
	JobID    string
	ResumeID string
	Mode     types.ContentMode
}

// Executor runs a single task from WAITING to DONE or FAILED.
type Executor struct {
	store    store.Store
	registry *Registry
	pipeline enrich.Pipeline
	timeout  time.Duration
	logger   *slog.Logger
}

// NewExecutor creates an executor. A positive timeout bounds each
// enrichment call.
func NewExecutor(s store.Store, registry *Registry, pipeline enrich.Pipeline, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:    s,
		registry: registry,
		pipeline: pipeline,
		timeout:  timeout,
		logger:   logger.With("component", "executor"),
	}
}

// Execute claims the task, tailors the resume and records the outcome. Once
// the task is PENDING every failure path ends in FAILED; the returned error
// is informational.
func (e *Executor) Execute(ctx context.Context, req Request) error {
	logger := e.logger.With("task_id", req.TaskID, "job_id", req.JobID, "mode", string(req.Mode))

	// Step 1: claim. Losing the claim means another worker owns the task or
	// it was cancelled; either way this run does nothing.
	if _, err := e.registry.Transition(ctx, req.TaskID, types.TaskStatusPending, Fields{}); err != nil {
		logger.Info("task not claimed", "error", err)
		return err
	}

	start := time.Now()
	newResumeID, kind, err := e.run(ctx, req, logger)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			kind = types.ErrorKindCancelled
			err = fmt.Errorf("%w: %v", context.Cause(ctx), err)
		}
		e.fail(ctx, req.TaskID, kind, err, elapsed, logger)
		return err
	}

	// Step 6: done.
	if _, err := e.registry.Transition(ctx, req.TaskID, types.TaskStatusDone, Fields{
		NewResumeID: newResumeID,
		TimeUsed:    elapsed,
	}); err != nil {
		e.fail(ctx, req.TaskID, types.ErrorKindStore, fmt.Errorf("record completion: %w", err), elapsed, logger)
		return err
	}

	logger.Info("task completed", "new_resume_id", newResumeID, "duration_ms", elapsed.Milliseconds())
	return nil
}

func (e *Executor) run(ctx context.Context, req Request, logger *slog.Logger) (string, types.ErrorKind, error) {
	// Step 2: snapshots.
	resume, err := e.store.GetResume(ctx, req.ResumeID)
	if err != nil {
		return "", types.ErrorKindStore, fmt.Errorf("read resume: %w", notFound("resume", req.ResumeID, err))
	}
	job, err := e.store.GetJob(ctx, req.JobID)
	if err != nil {
		return "", types.ErrorKindStore, fmt.Errorf("read job: %w", notFound("job", req.JobID, err))
	}

	// Step 3: enrichment.
	enrichCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		enrichCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	logger.Debug("calling enrichment pipeline")
	result, err := e.pipeline.Enrich(enrichCtx, job, resume, req.Mode)
	if err != nil {
		return "", pipelineKind(ctx, err), err
	}
	if result == nil || result.Update == nil {
		return "", types.ErrorKindPipelinePermanent, enrich.Permanent("result", errors.New("pipeline returned no update"))
	}
	if result.Update.Mode() != req.Mode {
		return "", types.ErrorKindPipelinePermanent, enrich.Permanent("result",
			fmt.Errorf("pipeline returned a %s update for a %s task", result.Update.Mode(), req.Mode))
	}
	content, err := result.Update.Apply(resume.Content)
	if err != nil {
		return "", types.ErrorKindPipelinePermanent, enrich.Permanent("merge", err)
	}

	// Step 4: job metadata.
	if err := e.saveJob(ctx, job, result); err != nil {
		return "", types.ErrorKindStore, fmt.Errorf("save job metadata: %w", err)
	}

	// Step 5: derived resume, never overwriting the input.
	rawID := resume.ID
	if !resume.IsRaw && resume.RawID != "" {
		rawID = resume.RawID
	}
	derived, err := e.store.CreateResume(ctx, &types.Resume{
		Content: content,
		IsRaw:   false,
		RawID:   rawID,
		JobID:   job.ID,
	})
	if err != nil {
		return "", types.ErrorKindStore, fmt.Errorf("save tailored resume: %w", err)
	}
	return derived.ID, "", nil
}

// saveJob attaches parsed metadata the first time a job is parsed. Later
// runs only refresh the status.
func (e *Executor) saveJob(ctx context.Context, job *types.Job, result *enrich.Result) error {
	patch := store.JobPatch{Status: store.Ptr(types.JobStatusParsed)}
	if job.Status != types.JobStatusParsed {
		parsed := result.Job
		patch.Parsed = &parsed
		if t := strings.TrimSpace(parsed.JobTitle); t != "" && job.Title == "" {
			patch.Title = &t
		}
		if c := strings.TrimSpace(parsed.Company); c != "" && job.Company == "" {
			patch.Company = &c
		}
		if result.JobText != "" && job.RawText == "" {
			patch.RawText = &result.JobText
		}
	}
	_, err := e.store.UpdateJob(ctx, job.ID, patch)
	return err
}

// fail moves the task to FAILED. It uses a context detached from ctx so a
// cancelled task still records why it stopped.
func (e *Executor) fail(ctx context.Context, taskID string, kind types.ErrorKind, cause error, elapsed time.Duration, logger *slog.Logger) {
	if kind == "" {
		kind = types.ErrorKindPipelinePermanent
	}
	logger.Error("task failed", "error_kind", string(kind), "error", cause)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if _, err := e.registry.Transition(fctx, taskID, types.TaskStatusFailed, Fields{
		Err:       cause,
		ErrorKind: kind,
		TimeUsed:  elapsed,
	}); err != nil {
		// The stuck-task monitor fails it later.
		logger.Error("could not record task failure", "error", err)
	}
}

// pipelineKind classifies an enrichment error, treating a cancelled task
// context as a cancellation rather than a pipeline fault.
func pipelineKind(ctx context.Context, err error) types.ErrorKind {
	if ctx.Err() != nil {
		return types.ErrorKindCancelled
	}
	if enrich.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorKindPipelineTransient
	}
	return types.ErrorKindPipelinePermanent
}
