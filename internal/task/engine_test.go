package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-tailor/internal/enrich"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StoreBackoff = time.Millisecond
	cfg.CheckInterval = 0
	cfg.TaskTimeout = 5 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, p enrich.Pipeline, cfg Config) (*Engine, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	return startEngine(t, s, p, cfg), s
}

func startEngine(t *testing.T, s store.Store, p enrich.Pipeline, cfg Config) *Engine {
	t.Helper()
	e := New(s, p, discardLogger(), cfg)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

// tailoringPipeline returns a well-formed update for each mode.
func tailoringPipeline(summary string) enrich.PipelineFunc {
	return func(_ context.Context, job *types.Job, _ *types.Resume, mode types.ContentMode) (*enrich.Result, error) {
		res := &enrich.Result{Job: types.ParsedJob{JobTitle: job.Title, Company: "Acme"}}
		switch mode {
		case types.ModeExperiences:
			res.Update = types.ExperiencesUpdate{Work: []types.Experience{{Name: "Acme", Position: "Engineer"}}}
		case types.ModeSummary:
			res.Update = types.SummaryUpdate{Summary: summary}
		default:
			res.Update = types.FullResumeUpdate{Summary: summary}
		}
		return res, nil
	}
}

func janeResume() types.Document {
	return types.Document{"basics": json.RawMessage(`{"name":"Jane"}`)}
}

func waitForStatus(t *testing.T, e *Engine, taskID string, want types.TaskStatus) *TaskView {
	t.Helper()
	var view *TaskView
	require.Eventually(t, func() bool {
		views, err := e.Status(context.Background(), []string{taskID})
		if err != nil || views[0] == nil {
			return false
		}
		view = views[0]
		return view.Status == want
	}, 5*time.Second, 5*time.Millisecond, "task %s never reached %s", taskID, want)
	return view
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, tailoringPipeline("Go backend engineer."), testConfig())

	taskID, err := e.Submit(ctx,
		JobRef{Title: "Backend Engineer", Text: "We need a Go engineer."},
		ResumeRef{Content: janeResume()},
		types.ModeResume,
	)
	require.NoError(t, err)

	view := waitForStatus(t, e, taskID, types.TaskStatusDone)
	require.NotNil(t, view.Resume)
	assert.Equal(t, view.NewResumeID, view.Resume.ID)
	assert.Equal(t, view.RawResumeID, view.Resume.RawID)
	assert.Equal(t, view.JobID, view.Resume.JobID)
	assert.False(t, view.Resume.IsRaw)
	assert.Equal(t, "Jane", view.Resume.Content.Name())
	assert.Equal(t, "Go backend engineer.", view.Resume.Content.Summary())
	assert.Equal(t, 1, view.Attempts)
	assert.NotNil(t, view.FinishedAt)

	job, err := s.GetJob(ctx, view.JobID)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", job.Title)
	assert.Equal(t, "Acme", job.Company)
	assert.Equal(t, types.JobStatusParsed, job.Status)

	// The raw resume is left untouched.
	raw, err := s.GetResume(ctx, view.RawResumeID)
	require.NoError(t, err)
	assert.True(t, raw.IsRaw)
	assert.Empty(t, raw.Content.Summary())
}

func TestEngine_PartialModes(t *testing.T) {
	tests := []struct {
		name  string
		mode  types.ContentMode
		check func(t *testing.T, doc types.Document)
	}{
		{
			name: "summary only",
			mode: types.ModeSummary,
			check: func(t *testing.T, doc types.Document) {
				assert.Equal(t, "short", doc.Summary())
				_, ok := doc[types.SectionWork]
				assert.False(t, ok)
			},
		},
		{
			name: "experiences only",
			mode: types.ModeExperiences,
			check: func(t *testing.T, doc types.Document) {
				work, err := doc.Work()
				require.NoError(t, err)
				require.Len(t, work, 1)
				assert.Equal(t, "Acme", work[0].Name)
				assert.Empty(t, doc.Summary())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, tailoringPipeline("short"), testConfig())
			id, err := e.Submit(context.Background(), JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, tt.mode)
			require.NoError(t, err)

			view := waitForStatus(t, e, id, types.TaskStatusDone)
			require.NotNil(t, view.Resume)
			assert.Equal(t, "Jane", view.Resume.Content.Name())
			tt.check(t, view.Resume.Content)
		})
	}
}

func TestEngine_SubmitDeduplicatesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	base := tailoringPipeline("x")
	pipeline := enrich.PipelineFunc(func(ctx context.Context, job *types.Job, r *types.Resume, mode types.ContentMode) (*enrich.Result, error) {
		calls.Add(1)
		return base(ctx, job, r, mode)
	})
	e, s := newTestEngine(t, pipeline, testConfig())

	job, err := s.CreateJob(ctx, &types.Job{RawText: "posting", Status: types.JobStatusRaw})
	require.NoError(t, err)
	resume, err := s.CreateResume(ctx, &types.Resume{Content: janeResume(), IsRaw: true})
	require.NoError(t, err)

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := e.Submit(ctx, JobRef{ID: job.ID}, ResumeRef{ID: resume.ID}, types.ModeResume)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	tasks, err := s.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	waitForStatus(t, e, ids[0], types.TaskStatusDone)
	assert.EqualValues(t, 1, calls.Load())

	// A later submission for the same job is idempotent too.
	again, err := e.Submit(ctx, JobRef{ID: job.ID}, ResumeRef{ID: resume.ID}, types.ModeResume)
	require.NoError(t, err)
	assert.Equal(t, ids[0], again)
	assert.EqualValues(t, 1, calls.Load())
}

func TestEngine_SubmitBatchOrdering(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	base := tailoringPipeline("x")
	pipeline := enrich.PipelineFunc(func(ctx context.Context, job *types.Job, r *types.Resume, mode types.ContentMode) (*enrich.Result, error) {
		mu.Lock()
		order = append(order, job.Title)
		mu.Unlock()
		return base(ctx, job, r, mode)
	})

	cfg := testConfig()
	cfg.Workers = 2
	e, _ := newTestEngine(t, pipeline, cfg)

	titles := []string{"A", "B", "C", "D", "E", "F", "G"}
	jobs := make([]JobRef, len(titles))
	for i, title := range titles {
		jobs[i] = JobRef{Title: title, Text: "posting " + title}
	}

	ids, err := e.SubmitBatch(ctx, ResumeRef{Content: janeResume()}, jobs, types.ModeResume)
	require.NoError(t, err)
	require.Len(t, ids, len(titles))

	for _, id := range ids {
		waitForStatus(t, e, id, types.TaskStatusDone)
	}

	// Ids come back in input order.
	views, err := e.StatusByJob(ctx, jobIDs(t, e, ids))
	require.NoError(t, err)
	for i, v := range views {
		require.NotNil(t, v)
		assert.Equal(t, titles[i], v.Job.Title)
		assert.Equal(t, ids[i], v.Task.ID)
	}

	// Within each group of five, jobs ran in input order.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, len(titles))
	pos := make(map[string]int, len(order))
	for i, title := range order {
		pos[title] = i
	}
	for _, group := range [][]string{{"A", "B", "C", "D", "E"}, {"F", "G"}} {
		for i := 1; i < len(group); i++ {
			assert.Less(t, pos[group[i-1]], pos[group[i]], "%s ran after %s", group[i-1], group[i])
		}
	}
}

func jobIDs(t *testing.T, e *Engine, taskIDs []string) []string {
	t.Helper()
	views, err := e.Status(context.Background(), taskIDs)
	require.NoError(t, err)
	out := make([]string, len(views))
	for i, v := range views {
		require.NotNil(t, v)
		out[i] = v.JobID
	}
	return out
}

func TestEngine_CompletionInvariant(t *testing.T) {
	ctx := context.Background()
	var n atomic.Int32
	base := tailoringPipeline("x")
	pipeline := enrich.PipelineFunc(func(ctx context.Context, job *types.Job, r *types.Resume, mode types.ContentMode) (*enrich.Result, error) {
		if n.Add(1)%2 == 0 {
			return nil, enrich.Permanent("rewrite", errors.New("bad output"))
		}
		return base(ctx, job, r, mode)
	})
	e, s := newTestEngine(t, pipeline, testConfig())

	jobs := make([]JobRef, 8)
	for i := range jobs {
		jobs[i] = JobRef{Text: fmt.Sprintf("posting %d", i)}
	}
	ids, err := e.SubmitBatch(ctx, ResumeRef{Content: janeResume()}, jobs, types.ModeSummary)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		views, err := e.Status(ctx, ids)
		if err != nil {
			return false
		}
		for _, v := range views {
			if v == nil || !v.Status.IsTerminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	tasks, err := s.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, task.Status == types.TaskStatusDone, task.NewResumeID != "", "task %s", task.ID)
	}
}

func TestEngine_PipelineFailureReachesFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind types.ErrorKind
	}{
		{"permanent", enrich.Permanent("parse job", errors.New("model refused")), types.ErrorKindPipelinePermanent},
		{"transient", enrich.Transient("rewrite", errors.New("model refused: overloaded")), types.ErrorKindPipelineTransient},
		{"plain error", errors.New("model refused"), types.ErrorKindPipelinePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := enrich.PipelineFunc(func(context.Context, *types.Job, *types.Resume, types.ContentMode) (*enrich.Result, error) {
				return nil, tt.err
			})
			e, s := newTestEngine(t, pipeline, testConfig())

			id, err := e.Submit(context.Background(), JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeResume)
			require.NoError(t, err)

			view := waitForStatus(t, e, id, types.TaskStatusFailed)
			assert.Contains(t, view.Error, "model refused")
			assert.Equal(t, tt.wantKind, view.ErrorKind)
			assert.Empty(t, view.NewResumeID)
			assert.Nil(t, view.Resume)

			// No derived resume was written.
			derived, err := s.ListResumes(context.Background(), store.ResumeFilter{JobID: view.JobID})
			require.NoError(t, err)
			assert.Empty(t, derived)
		})
	}
}

func TestEngine_WrongUpdateKindFails(t *testing.T) {
	pipeline := enrich.PipelineFunc(func(context.Context, *types.Job, *types.Resume, types.ContentMode) (*enrich.Result, error) {
		return &enrich.Result{Update: types.SummaryUpdate{Summary: "x"}}, nil
	})
	e, _ := newTestEngine(t, pipeline, testConfig())

	id, err := e.Submit(context.Background(), JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeExperiences)
	require.NoError(t, err)

	view := waitForStatus(t, e, id, types.TaskStatusFailed)
	assert.Equal(t, types.ErrorKindPipelinePermanent, view.ErrorKind)
}

func TestEngine_StatusUnknownIDs(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, tailoringPipeline("x"), testConfig())

	views, err := e.Status(ctx, []string{})
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = e.Status(ctx, []string{"nonexistent"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0])

	byJob, err := e.StatusByJob(ctx, []string{"nonexistent"})
	require.NoError(t, err)
	require.Len(t, byJob, 1)
	assert.Nil(t, byJob[0])
}

func TestEngine_StatusByJobJoinsResult(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, tailoringPipeline("joined"), testConfig())

	id, err := e.Submit(ctx, JobRef{Title: "SRE", Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeResume)
	require.NoError(t, err)
	view := waitForStatus(t, e, id, types.TaskStatusDone)

	byJob, err := e.StatusByJob(ctx, []string{view.JobID, "missing"})
	require.NoError(t, err)
	require.Len(t, byJob, 2)
	require.NotNil(t, byJob[0])
	assert.Equal(t, "SRE", byJob[0].Job.Title)
	assert.Equal(t, id, byJob[0].Task.ID)
	require.NotNil(t, byJob[0].Resume)
	assert.Equal(t, "joined", byJob[0].Resume.Content.Summary())
	assert.Nil(t, byJob[1])
}

func TestEngine_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, tailoringPipeline("x"), testConfig())

	var verr *ValidationError

	_, err := e.Submit(ctx, JobRef{}, ResumeRef{Content: janeResume()}, types.ModeResume)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "job", verr.Field)

	_, err = e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{}, "cover-letter")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content_mode", verr.Field)

	_, err = e.SubmitBatch(ctx, ResumeRef{}, []JobRef{{Text: "posting"}}, types.ModeResume)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "resume", verr.Field)

	_, err = e.SubmitBatch(ctx, ResumeRef{Content: janeResume()}, []JobRef{{Text: "ok"}, {}}, types.ModeResume)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "jobs[1]", verr.Field)

	var nf *NotFoundError
	_, err = e.Submit(ctx, JobRef{ID: "missing"}, ResumeRef{}, types.ModeResume)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "job", nf.Entity)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_PlaceholderThenAttach(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, tailoringPipeline("attached"), testConfig())

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{}, types.ModeSummary)
	require.NoError(t, err)

	task, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusDefault, task.Status)

	ids, err := e.SubmitTaskBatch(ctx, ResumeRef{Content: janeResume()}, []string{id})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	view := waitForStatus(t, e, id, types.TaskStatusDone)
	assert.Equal(t, types.ModeSummary, view.ContentMode)
	assert.Equal(t, "attached", view.Resume.Content.Summary())

	// A task that is no longer a placeholder cannot be attached again.
	_, err = e.SubmitTaskBatch(ctx, ResumeRef{Content: janeResume()}, []string{id})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngine_Cancel(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	pipeline := enrich.PipelineFunc(func(ctx context.Context, _ *types.Job, _ *types.Resume, _ types.ContentMode) (*enrich.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e, _ := newTestEngine(t, pipeline, testConfig())

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeResume)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline never started")
	}

	_, err = e.Cancel(ctx, id)
	require.NoError(t, err)

	view := waitForStatus(t, e, id, types.TaskStatusFailed)
	assert.Equal(t, types.ErrorKindCancelled, view.ErrorKind)
	assert.Contains(t, view.Error, ErrCancelled.Error())

	_, err = e.Cancel(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngine_CancelPlaceholder(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, tailoringPipeline("x"), testConfig())

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{}, types.ModeResume)
	require.NoError(t, err)

	task, err := e.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, types.ErrorKindCancelled, task.ErrorKind)
}

func TestEngine_Retry(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	base := tailoringPipeline("second time")
	pipeline := enrich.PipelineFunc(func(ctx context.Context, job *types.Job, r *types.Resume, mode types.ContentMode) (*enrich.Result, error) {
		if calls.Add(1) == 1 {
			return nil, enrich.Transient("rewrite", errors.New("rate limited"))
		}
		return base(ctx, job, r, mode)
	})
	e, _ := newTestEngine(t, pipeline, testConfig())

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeResume)
	require.NoError(t, err)
	waitForStatus(t, e, id, types.TaskStatusFailed)

	retried, err := e.Retry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusWaiting, retried.Status)
	assert.Empty(t, retried.Error)

	view := waitForStatus(t, e, id, types.TaskStatusDone)
	assert.Equal(t, 2, view.Attempts)
	assert.Empty(t, view.ErrorKind)

	_, err = e.Retry(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngine_RetryWhileFailedRunStillTracked(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	base := tailoringPipeline("second time")
	pipeline := enrich.PipelineFunc(func(ctx context.Context, job *types.Job, r *types.Resume, mode types.ContentMode) (*enrich.Result, error) {
		if calls.Add(1) == 1 {
			return nil, enrich.Permanent("rewrite", errors.New("bad output"))
		}
		return base(ctx, job, r, mode)
	})
	e, _ := newTestEngine(t, pipeline, testConfig())

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeResume)
	require.NoError(t, err)
	waitForStatus(t, e, id, types.TaskStatusFailed)
	require.Eventually(t, func() bool { return !e.tracker.has(id) }, 5*time.Second, 5*time.Millisecond)

	// The failed run has written FAILED but not yet released its entry.
	_, staleGen, ok := e.tracker.add(context.Background(), id)
	require.True(t, ok)

	_, err = e.Retry(ctx, id)
	require.NoError(t, err)

	// No monitor runs here, so the retry must have been queued directly.
	view := waitForStatus(t, e, id, types.TaskStatusDone)
	assert.Equal(t, 2, view.Attempts)

	e.tracker.done(id, staleGen)
	assert.Eventually(t, func() bool { return e.tracker.len() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestEngine_UpdateAndDeleteTask(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, tailoringPipeline("x"), testConfig())

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{}, types.ModeResume)
	require.NoError(t, err)

	mode := types.ModeExperiences
	updated, err := e.UpdateTask(ctx, id, FieldUpdate{ContentMode: &mode})
	require.NoError(t, err)
	assert.Equal(t, types.ModeExperiences, updated.ContentMode)

	bad := types.ContentMode("poem")
	_, err = e.UpdateTask(ctx, id, FieldUpdate{ContentMode: &bad})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, e.DeleteTask(ctx, id))
	_, err = e.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, e.DeleteTask(ctx, id), store.ErrNotFound)

	// The job is free for a new task.
	tasks, err := s.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestEngine_RecoverOnStart(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	resume, err := s.CreateResume(ctx, &types.Resume{Content: janeResume(), IsRaw: true})
	require.NoError(t, err)
	waitingJob, err := s.CreateJob(ctx, &types.Job{RawText: "a", Status: types.JobStatusRaw})
	require.NoError(t, err)
	stuckJob, err := s.CreateJob(ctx, &types.Job{RawText: "b", Status: types.JobStatusRaw})
	require.NoError(t, err)

	waiting, err := s.CreateTask(ctx, &types.Task{
		JobID: waitingJob.ID, RawResumeID: resume.ID, Status: types.TaskStatusWaiting, ContentMode: types.ModeSummary,
	})
	require.NoError(t, err)
	stuck, err := s.CreateTask(ctx, &types.Task{
		JobID: stuckJob.ID, RawResumeID: resume.ID, Status: types.TaskStatusPending, ContentMode: types.ModeSummary,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	cfg := testConfig()
	cfg.StuckAfter = time.Millisecond
	e := startEngine(t, s, tailoringPipeline("recovered"), cfg)

	waitForStatus(t, e, waiting.ID, types.TaskStatusDone)
	view := waitForStatus(t, e, stuck.ID, types.TaskStatusFailed)
	assert.Equal(t, types.ErrorKindStuck, view.ErrorKind)
}

func TestEngine_StopCancelsRunningTasks(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	pipeline := enrich.PipelineFunc(func(ctx context.Context, _ *types.Job, _ *types.Resume, _ types.ContentMode) (*enrich.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := store.NewMemory()
	e := New(s, pipeline, discardLogger(), testConfig())
	require.NoError(t, e.Start(ctx))

	id, err := e.Submit(ctx, JobRef{Text: "posting"}, ResumeRef{Content: janeResume()}, types.ModeResume)
	require.NoError(t, err)
	<-started

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Stop(stopCtx), context.DeadlineExceeded)

	task, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, types.ErrorKindCancelled, task.ErrorKind)
	assert.Contains(t, task.Error, ErrShutdown.Error())
}
