package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// JobRef names an existing job by ID or carries a new posting to create.
// A new posting needs Text or Link; the link is fetched during enrichment
// when no text is given.
type JobRef struct {
	ID      string
	Text    string
	Title   string
	Company string
	Link    string
}

func (r JobRef) empty() bool {
	return r.ID == "" && strings.TrimSpace(r.Text) == "" && strings.TrimSpace(r.Link) == ""
}

// ResumeRef names an existing resume by ID or carries a raw document to
// store. The zero value means no resume.
type ResumeRef struct {
	ID      string
	Content types.Document
}

func (r ResumeRef) empty() bool {
	return r.ID == "" && len(r.Content) == 0
}

// Dispatcher turns submissions into task records and hands runnable tasks to
// the scheduler. It never waits for a pipeline call.
type Dispatcher struct {
	store     store.Store
	registry  *Registry
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(s store.Store, registry *Registry, scheduler *Scheduler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     s,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Submit creates or finds the task for one job. When the job already has a
// task its id is returned and nothing is rescheduled. A submission without a
// resume yields a DEFAULT task that waits for SubmitTaskBatch.
func (d *Dispatcher) Submit(ctx context.Context, job JobRef, resume ResumeRef, mode types.ContentMode) (string, error) {
	mode, err := normalizeMode(mode)
	if err != nil {
		return "", err
	}
	if job.empty() {
		return "", &ValidationError{Field: "job", Message: "a job id, text or link is required"}
	}

	jobID, err := d.resolveJob(ctx, job)
	if err != nil {
		return "", err
	}
	resumeID, err := d.resolveResume(ctx, resume)
	if err != nil {
		return "", err
	}

	task, existed, err := d.registry.FindOrCreate(ctx, jobID, resumeID, mode)
	if err != nil {
		return "", fmt.Errorf("find or create task: %w", err)
	}
	if existed {
		d.logger.Info("job already has a task", "job_id", jobID, "task_id", task.ID, "status", task.Status.String())
		return task.ID, nil
	}

	if task.Status == types.TaskStatusWaiting {
		d.scheduler.Run([]Pair{{JobID: jobID, TaskID: task.ID}}, resumeID, mode, 1)
	}
	d.logger.Info("task submitted", "task_id", task.ID, "job_id", jobID, "resume_id", resumeID, "status", task.Status.String())
	return task.ID, nil
}

// SubmitBatch tailors one resume to every job in jobs. The returned ids are
// in input order. A job that already has a task keeps it: its id is returned
// in place and it is not rescheduled.
func (d *Dispatcher) SubmitBatch(ctx context.Context, resume ResumeRef, jobs []JobRef, mode types.ContentMode) ([]string, error) {
	mode, err := normalizeMode(mode)
	if err != nil {
		return nil, err
	}
	if resume.empty() {
		return nil, &ValidationError{Field: "resume", Message: "a resume id or document is required"}
	}
	if len(jobs) == 0 {
		return nil, &ValidationError{Field: "jobs", Message: "at least one job is required"}
	}
	for i, j := range jobs {
		if j.empty() {
			return nil, &ValidationError{Field: fmt.Sprintf("jobs[%d]", i), Message: "a job id, text or link is required"}
		}
	}

	resumeID, err := d.resolveResume(ctx, resume)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jobs))
	pairs := make([]Pair, 0, len(jobs))
	for _, ref := range jobs {
		jobID, err := d.resolveJob(ctx, ref)
		if err != nil {
			return nil, err
		}
		task, existed, err := d.registry.Create(ctx, jobID, resumeID, mode)
		if err != nil {
			return nil, fmt.Errorf("create task for job %s: %w", jobID, err)
		}
		ids = append(ids, task.ID)
		if !existed {
			pairs = append(pairs, Pair{JobID: jobID, TaskID: task.ID})
		}
	}

	groups := d.scheduler.Run(pairs, resumeID, mode, 0)
	d.logger.Info("batch submitted",
		"resume_id", resumeID,
		"jobs", len(jobs),
		"new_tasks", len(pairs),
		"groups", groups,
	)
	return ids, nil
}

// SubmitTaskBatch attaches a resume to DEFAULT tasks created earlier,
// moves them to WAITING and schedules them. Each task keeps its content
// mode. Every task is checked before any is changed.
func (d *Dispatcher) SubmitTaskBatch(ctx context.Context, resume ResumeRef, taskIDs []string) ([]string, error) {
	if resume.empty() {
		return nil, &ValidationError{Field: "resume", Message: "a resume id or document is required"}
	}
	if len(taskIDs) == 0 {
		return nil, &ValidationError{Field: "task_ids", Message: "at least one task id is required"}
	}

	tasks := make([]*types.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := d.registry.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Status != types.TaskStatusDefault {
			return nil, &TransitionError{TaskID: id, From: t.Status, To: types.TaskStatusWaiting, Reason: "only placeholder tasks can be attached"}
		}
		tasks = append(tasks, t)
	}

	resumeID, err := d.resolveResume(ctx, resume)
	if err != nil {
		return nil, err
	}

	byMode := make(map[types.ContentMode][]Pair)
	var order []types.ContentMode
	for _, t := range tasks {
		updated, err := d.registry.Transition(ctx, t.ID, types.TaskStatusWaiting, Fields{RawResumeID: resumeID})
		if err != nil {
			return nil, err
		}
		mode := updated.ContentMode
		if !mode.Valid() {
			mode = types.ModeResume
		}
		if _, ok := byMode[mode]; !ok {
			order = append(order, mode)
		}
		byMode[mode] = append(byMode[mode], Pair{JobID: updated.JobID, TaskID: updated.ID})
	}

	for _, mode := range order {
		d.scheduler.Run(byMode[mode], resumeID, mode, 0)
	}
	d.logger.Info("placeholder tasks attached", "resume_id", resumeID, "tasks", len(tasks))
	return taskIDs, nil
}

func (d *Dispatcher) resolveJob(ctx context.Context, ref JobRef) (string, error) {
	if ref.ID != "" {
		job, err := d.store.GetJob(ctx, ref.ID)
		if err != nil {
			return "", notFound("job", ref.ID, err)
		}
		return job.ID, nil
	}
	job, err := d.store.CreateJob(ctx, &types.Job{
		RawText: strings.TrimSpace(ref.Text),
		Title:   strings.TrimSpace(ref.Title),
		Company: strings.TrimSpace(ref.Company),
		Link:    strings.TrimSpace(ref.Link),
		Status:  types.JobStatusRaw,
	})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return job.ID, nil
}

func (d *Dispatcher) resolveResume(ctx context.Context, ref ResumeRef) (string, error) {
	switch {
	case ref.ID != "":
		r, err := d.store.GetResume(ctx, ref.ID)
		if err != nil {
			return "", notFound("resume", ref.ID, err)
		}
		return r.ID, nil
	case len(ref.Content) > 0:
		r, err := d.store.CreateResume(ctx, &types.Resume{Content: ref.Content, IsRaw: true})
		if err != nil {
			return "", fmt.Errorf("create resume: %w", err)
		}
		return r.ID, nil
	default:
		return "", nil
	}
}

func normalizeMode(mode types.ContentMode) (types.ContentMode, error) {
	if mode == "" {
		return types.ModeResume, nil
	}
	if !mode.Valid() {
		return "", &ValidationError{Field: "content_mode", Message: "must be one of resume, experiences, summary"}
	}
	return mode, nil
}
