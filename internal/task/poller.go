package task

import (
	"context"
	"fmt"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// TaskView is a task with its tailored resume joined once it is DONE.
type TaskView struct {
	*types.Task
	Resume *types.Resume `json:"resume,omitempty"`
}

// JobView joins a job with its live task and, for a DONE task, the result.
// Job is nil when the job was deleted but its task was not.
type JobView struct {
	Job    *types.Job    `json:"job,omitempty"`
	Task   *types.Task   `json:"task,omitempty"`
	Resume *types.Resume `json:"resume,omitempty"`
}

// Poller is the read side of the engine. It never writes.
type Poller struct {
	store store.Store
}

// NewPoller creates a poller.
func NewPoller(s store.Store) *Poller {
	return &Poller{store: s}
}

// Status returns one entry per id, in order. Unknown or deleted ids yield a
// nil entry rather than an error. Each entry reflects its own latest write;
// entries are not a consistent snapshot of each other.
func (p *Poller) Status(ctx context.Context, taskIDs []string) ([]*TaskView, error) {
	out := make([]*TaskView, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}

	tasks, err := p.store.GetTasksByIDs(ctx, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	byID := make(map[string]*types.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	resumes, err := p.results(ctx, tasks)
	if err != nil {
		return nil, err
	}

	for i, id := range taskIDs {
		t, ok := byID[id]
		if !ok {
			continue
		}
		out[i] = &TaskView{Task: t, Resume: resumes[t.NewResumeID]}
	}
	return out, nil
}

// StatusByJob joins jobs, their tasks and finished resumes in three bulk
// reads. Ids with neither a job nor a task yield a nil entry.
func (p *Poller) StatusByJob(ctx context.Context, jobIDs []string) ([]*JobView, error) {
	out := make([]*JobView, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}

	jobs, err := p.store.GetJobsByIDs(ctx, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	tasks, err := p.store.GetTasksByJobIDs(ctx, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	resumes, err := p.results(ctx, tasks)
	if err != nil {
		return nil, err
	}

	jobByID := make(map[string]*types.Job, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID] = j
	}
	taskByJob := make(map[string]*types.Task, len(tasks))
	for _, t := range tasks {
		taskByJob[t.JobID] = t
	}

	for i, id := range jobIDs {
		job, t := jobByID[id], taskByJob[id]
		if job == nil && t == nil {
			continue
		}
		view := &JobView{Job: job, Task: t}
		if t != nil {
			view.Resume = resumes[t.NewResumeID]
		}
		out[i] = view
	}
	return out, nil
}

// results loads the tailored resumes of DONE tasks, keyed by resume id.
func (p *Poller) results(ctx context.Context, tasks []*types.Task) (map[string]*types.Resume, error) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == types.TaskStatusDone && t.NewResumeID != "" {
			ids = append(ids, t.NewResumeID)
		}
	}
	byID := make(map[string]*types.Resume, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	resumes, err := p.store.GetResumesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read resumes: %w", err)
	}
	for _, r := range resumes {
		byID[r.ID] = r
	}
	return byID, nil
}
