package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/types"
)

// Memory is an in-process Store. It enforces the same uniqueness and
// compare-and-set rules as the Postgres store and is used for local runs
// and tests.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[string]*memRecord[types.Job]
	resumes map[string]*memRecord[types.Resume]
	tasks   map[string]*memRecord[types.Task]
	now     func() time.Time
}

type memRecord[T any] struct {
	value   T
	deleted bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]*memRecord[types.Job]),
		resumes: make(map[string]*memRecord[types.Resume]),
		tasks:   make(map[string]*memRecord[types.Task]),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*Memory)(nil)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// live returns the record for id if it exists and is not deleted.
func live[T any](m map[string]*memRecord[T], id string) (*memRecord[T], bool) {
	rec, ok := m[id]
	if !ok || rec.deleted {
		return nil, false
	}
	return rec, true
}

// CreateJob stores a new job.
func (s *Memory) CreateJob(_ context.Context, job *types.Job) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := *job
	j.ID = newID(j.ID)
	if _, exists := s.jobs[j.ID]; exists {
		return nil, Wrap("job", "create", ErrDuplicate)
	}
	if j.Status == "" {
		j.Status = types.JobStatusRaw
	}
	j.CreatedAt = s.now()
	j.UpdatedAt = j.CreatedAt
	s.jobs[j.ID] = &memRecord[types.Job]{value: j}
	return &j, nil
}

// GetJob returns a job by id.
func (s *Memory) GetJob(_ context.Context, id string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := live(s.jobs, id)
	if !ok {
		return nil, Wrap("job", "get", ErrNotFound)
	}
	j := rec.value
	return &j, nil
}

// GetJobsByIDs returns the live jobs among ids, in no particular order.
func (s *Memory) GetJobsByIDs(_ context.Context, ids []string) ([]*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Job, 0, len(ids))
	for _, id := range uniq(ids) {
		if rec, ok := live(s.jobs, id); ok {
			j := rec.value
			out = append(out, &j)
		}
	}
	return out, nil
}

// ListJobs returns all live jobs, newest first.
func (s *Memory) ListJobs(_ context.Context) ([]*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Job, 0, len(s.jobs))
	for _, rec := range s.jobs {
		if !rec.deleted {
			j := rec.value
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

// UpdateJob applies patch to a live job.
func (s *Memory) UpdateJob(_ context.Context, id string, patch JobPatch) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := live(s.jobs, id)
	if !ok {
		return nil, Wrap("job", "update", ErrNotFound)
	}
	j := &rec.value
	if patch.RawText != nil {
		j.RawText = *patch.RawText
	}
	if patch.Title != nil {
		j.Title = *patch.Title
	}
	if patch.Company != nil {
		j.Company = *patch.Company
	}
	if patch.Link != nil {
		j.Link = *patch.Link
	}
	if patch.Status != nil {
		j.Status = *patch.Status
	}
	if patch.Parsed != nil {
		parsed := *patch.Parsed
		j.Parsed = &parsed
	}
	j.UpdatedAt = s.now()
	out := *j
	return &out, nil
}

// DeleteJob soft-deletes a job.
func (s *Memory) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := live(s.jobs, id)
	if !ok {
		return Wrap("job", "delete", ErrNotFound)
	}
	rec.deleted = true
	return nil
}

// CreateResume stores a new resume.
func (s *Memory) CreateResume(_ context.Context, resume *types.Resume) (*types.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *resume
	r.ID = newID(r.ID)
	if _, exists := s.resumes[r.ID]; exists {
		return nil, Wrap("resume", "create", ErrDuplicate)
	}
	r.Content = r.Content.Clone()
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.resumes[r.ID] = &memRecord[types.Resume]{value: r}
	return cloneResume(r), nil
}

// GetResume returns a resume by id.
func (s *Memory) GetResume(_ context.Context, id string) (*types.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := live(s.resumes, id)
	if !ok {
		return nil, Wrap("resume", "get", ErrNotFound)
	}
	return cloneResume(rec.value), nil
}

// GetResumesByIDs returns the live resumes among ids.
func (s *Memory) GetResumesByIDs(_ context.Context, ids []string) ([]*types.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Resume, 0, len(ids))
	for _, id := range uniq(ids) {
		if rec, ok := live(s.resumes, id); ok {
			out = append(out, cloneResume(rec.value))
		}
	}
	return out, nil
}

// ListResumes returns live resumes matching filter, newest first.
func (s *Memory) ListResumes(_ context.Context, filter ResumeFilter) ([]*types.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Resume, 0, len(s.resumes))
	for _, rec := range s.resumes {
		r := rec.value
		if rec.deleted || (filter.RawOnly && !r.IsRaw) || (filter.JobID != "" && r.JobID != filter.JobID) {
			continue
		}
		out = append(out, cloneResume(r))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

// UpdateRawResume replaces the content of a raw resume.
func (s *Memory) UpdateRawResume(_ context.Context, id string, content types.Document) (*types.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := live(s.resumes, id)
	if !ok {
		return nil, Wrap("resume", "update", ErrNotFound)
	}
	if !rec.value.IsRaw {
		return nil, Wrap("resume", "update", ErrImmutable)
	}
	rec.value.Content = content.Clone()
	rec.value.UpdatedAt = s.now()
	return cloneResume(rec.value), nil
}

// DeleteResume soft-deletes a resume.
func (s *Memory) DeleteResume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := live(s.resumes, id)
	if !ok {
		return Wrap("resume", "delete", ErrNotFound)
	}
	rec.deleted = true
	return nil
}

// CreateTask stores a new task, rejecting a second live task for the same job.
func (s *Memory) CreateTask(_ context.Context, task *types.Task) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !task.Status.Valid() {
		return nil, Wrap("task", "create", ErrInvalidRecord)
	}
	for _, rec := range s.tasks {
		if !rec.deleted && rec.value.JobID == task.JobID {
			return nil, Wrap("task", "create", ErrDuplicate)
		}
	}
	t := *task
	t.ID = newID(t.ID)
	if _, exists := s.tasks[t.ID]; exists {
		return nil, Wrap("task", "create", ErrDuplicate)
	}
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.tasks[t.ID] = &memRecord[types.Task]{value: t}
	out := t
	return &out, nil
}

// GetTask returns a task by id.
func (s *Memory) GetTask(_ context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := live(s.tasks, id)
	if !ok {
		return nil, Wrap("task", "get", ErrNotFound)
	}
	t := rec.value
	return &t, nil
}

// GetTasksByIDs returns the live tasks among ids.
func (s *Memory) GetTasksByIDs(_ context.Context, ids []string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Task, 0, len(ids))
	for _, id := range uniq(ids) {
		if rec, ok := live(s.tasks, id); ok {
			t := rec.value
			out = append(out, &t)
		}
	}
	return out, nil
}

// GetTasksByJobIDs returns the live task of each job that has one.
func (s *Memory) GetTasksByJobIDs(_ context.Context, jobIDs []string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		want[id] = true
	}
	out := make([]*types.Task, 0, len(jobIDs))
	for _, rec := range s.tasks {
		if !rec.deleted && want[rec.value.JobID] {
			t := rec.value
			out = append(out, &t)
		}
	}
	return out, nil
}

// FindTaskByJob returns the live task for a job.
func (s *Memory) FindTaskByJob(_ context.Context, jobID string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.tasks {
		if !rec.deleted && rec.value.JobID == jobID {
			t := rec.value
			return &t, nil
		}
	}
	return nil, Wrap("task", "find", ErrNotFound)
}

// ListTasks returns live tasks matching filter, oldest first.
func (s *Memory) ListTasks(_ context.Context, filter TaskFilter) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[types.TaskStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	out := make([]*types.Task, 0)
	for _, rec := range s.tasks {
		t := rec.value
		if rec.deleted {
			continue
		}
		if len(statuses) > 0 && !statuses[t.Status] {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !t.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateTask applies patch to a live task, optionally guarded by its current status.
func (s *Memory) UpdateTask(_ context.Context, id string, expect *types.TaskStatus, patch TaskPatch) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := live(s.tasks, id)
	if !ok {
		return nil, Wrap("task", "update", ErrNotFound)
	}
	if expect != nil && rec.value.Status != *expect {
		return nil, Wrap("task", "update", ErrConflict)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, Wrap("task", "update", ErrInvalidRecord)
	}
	applyTaskPatch(&rec.value, patch)
	rec.value.UpdatedAt = s.now()
	t := rec.value
	return &t, nil
}

// DeleteTask soft-deletes a task, releasing its job for a new task.
func (s *Memory) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := live(s.tasks, id)
	if !ok {
		return Wrap("task", "delete", ErrNotFound)
	}
	rec.deleted = true
	return nil
}

func applyTaskPatch(t *types.Task, patch TaskPatch) {
	if patch.ClearResult {
		t.NewResumeID = ""
		t.TimeUsed = 0
		t.Error = ""
		t.ErrorKind = ""
		t.FinishedAt = nil
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.RawResumeID != nil {
		t.RawResumeID = *patch.RawResumeID
	}
	if patch.NewResumeID != nil {
		t.NewResumeID = *patch.NewResumeID
	}
	if patch.ContentMode != nil {
		t.ContentMode = *patch.ContentMode
	}
	if patch.TimeUsed != nil {
		t.TimeUsed = *patch.TimeUsed
	}
	if patch.Error != nil {
		t.Error = *patch.Error
	}
	if patch.ErrorKind != nil {
		t.ErrorKind = *patch.ErrorKind
	}
	if patch.Attempts != nil {
		t.Attempts = *patch.Attempts
	}
	if patch.StartedAt != nil {
		started := *patch.StartedAt
		t.StartedAt = &started
	}
	if patch.FinishedAt != nil {
		finished := *patch.FinishedAt
		t.FinishedAt = &finished
	}
}

func cloneResume(r types.Resume) *types.Resume {
	r.Content = r.Content.Clone()
	return &r
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
