package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

func newTestRegistry(s store.TaskStore) *Registry {
	return NewRegistry(s, discardLogger(), 3, time.Millisecond)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to types.TaskStatus
		want     bool
	}{
		{types.TaskStatusDefault, types.TaskStatusWaiting, true},
		{types.TaskStatusDefault, types.TaskStatusPending, false},
		{types.TaskStatusWaiting, types.TaskStatusPending, true},
		{types.TaskStatusWaiting, types.TaskStatusDefault, false},
		{types.TaskStatusPending, types.TaskStatusDone, true},
		{types.TaskStatusPending, types.TaskStatusWaiting, false},
		{types.TaskStatusPending, types.TaskStatusFailed, true},
		{types.TaskStatusDone, types.TaskStatusFailed, false},
		{types.TaskStatusDone, types.TaskStatusPending, false},
		{types.TaskStatusFailed, types.TaskStatusWaiting, true},
		{types.TaskStatusFailed, types.TaskStatusDone, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRegistry_FindOrCreate(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())

	placeholder, existed, err := r.FindOrCreate(ctx, "job-1", "", types.ModeResume)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, types.TaskStatusDefault, placeholder.Status)

	ready, existed, err := r.FindOrCreate(ctx, "job-2", "resume-1", types.ModeSummary)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, types.TaskStatusWaiting, ready.Status)
	assert.Equal(t, types.ModeSummary, ready.ContentMode)

	again, existed, err := r.FindOrCreate(ctx, "job-2", "resume-9", types.ModeResume)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, ready.ID, again.ID)
	assert.Equal(t, "resume-1", again.RawResumeID, "existing task is returned unchanged")
}

func TestRegistry_FindOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestRegistry(s)

	const callers = 32
	ids := make([]string, callers)
	created := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, existed, err := r.FindOrCreate(ctx, "job-1", "resume-1", types.ModeResume)
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = task.ID
			created[i] = !existed
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)
}

func TestRegistry_CreateReusesLiveTask(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())

	first, existed, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)
	assert.False(t, existed)

	second, existed, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, second.ID)
}

func TestRegistry_Transition(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())

	task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)

	_, err = r.Transition(ctx, task.ID, types.TaskStatusDone, Fields{NewResumeID: "out"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "WAITING cannot skip PENDING")

	pending, err := r.Transition(ctx, task.ID, types.TaskStatusPending, Fields{})
	require.NoError(t, err)
	assert.Equal(t, 1, pending.Attempts)
	assert.NotNil(t, pending.StartedAt)

	_, err = r.Transition(ctx, task.ID, types.TaskStatusWaiting, Fields{})
	assert.ErrorIs(t, err, ErrInvalidTransition, "status never moves backward")

	_, err = r.Transition(ctx, task.ID, types.TaskStatusDone, Fields{})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Reason, "new resume id")

	done, err := r.Transition(ctx, task.ID, types.TaskStatusDone, Fields{NewResumeID: "out", TimeUsed: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "out", done.NewResumeID)
	assert.InDelta(t, 1.5, done.TimeUsed, 0.001)
	assert.NotNil(t, done.FinishedAt)

	_, err = r.Transition(ctx, task.ID, types.TaskStatusFailed, Fields{Err: errors.New("late")})
	assert.ErrorIs(t, err, ErrInvalidTransition, "DONE is terminal")

	_, err = r.Transition(ctx, "missing", types.TaskStatusPending, Fields{})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegistry_TransitionRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())
	task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)

	_, err = r.Transition(ctx, task.ID, types.TaskStatus(7), Fields{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRegistry_FailedRequiresErrorAndRetryClears(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())
	task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)
	_, err = r.Transition(ctx, task.ID, types.TaskStatusPending, Fields{})
	require.NoError(t, err)

	_, err = r.Transition(ctx, task.ID, types.TaskStatusFailed, Fields{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := r.Transition(ctx, task.ID, types.TaskStatusFailed, Fields{Err: errors.New("boom"), ErrorKind: types.ErrorKindPipelineTransient})
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.Error)
	assert.Equal(t, types.ErrorKindPipelineTransient, failed.ErrorKind)

	waiting, err := r.Transition(ctx, task.ID, types.TaskStatusWaiting, Fields{})
	require.NoError(t, err)
	assert.Empty(t, waiting.Error)
	assert.Empty(t, waiting.ErrorKind)
	assert.Nil(t, waiting.FinishedAt)
	assert.Equal(t, 1, waiting.Attempts)
}

func TestRegistry_ConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())
	task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Transition(ctx, task.ID, types.TaskStatusPending, Fields{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := r.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

// flakyStore fails the first n task updates with a connection error.
type flakyStore struct {
	store.TaskStore
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyStore) UpdateTask(ctx context.Context, id string, expect *types.TaskStatus, patch store.TaskPatch) (*types.Task, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.TaskStore.UpdateTask(ctx, id, expect, patch)
}

func TestRegistry_RetriesStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers within budget", func(t *testing.T) {
		s := &flakyStore{TaskStore: store.NewMemory(), fails: 2}
		r := newTestRegistry(s)
		task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
		require.NoError(t, err)

		updated, err := r.Transition(ctx, task.ID, types.TaskStatusPending, Fields{})
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusPending, updated.Status)
		assert.Equal(t, 3, s.calls)
	})

	t.Run("gives up after budget", func(t *testing.T) {
		s := &flakyStore{TaskStore: store.NewMemory(), fails: 100}
		r := newTestRegistry(s)
		task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
		require.NoError(t, err)

		_, err = r.Transition(ctx, task.ID, types.TaskStatusPending, Fields{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, 4, s.calls)
	})
}

func TestRegistry_UpdateFields(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(store.NewMemory())

	task, _, err := r.Create(ctx, "job-1", "resume-1", types.ModeResume)
	require.NoError(t, err)

	empty := ""
	_, err = r.UpdateFields(ctx, task.ID, FieldUpdate{RawResumeID: &empty})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	other := "resume-2"
	updated, err := r.UpdateFields(ctx, task.ID, FieldUpdate{RawResumeID: &other})
	require.NoError(t, err)
	assert.Equal(t, "resume-2", updated.RawResumeID)

	_, err = r.Transition(ctx, task.ID, types.TaskStatusPending, Fields{})
	require.NoError(t, err)
	_, err = r.UpdateFields(ctx, task.ID, FieldUpdate{RawResumeID: &other})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
