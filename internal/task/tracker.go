package task

import (
	"context"
	"sync"
)

// tracker holds the cancel function of every task queued or running in this
// process. A task is tracked at most once, which keeps sweeps from queueing
// work that is already in flight.
type tracker struct {
	mu    sync.Mutex
	next  uint64
	tasks map[string]trackedTask
}

type trackedTask struct {
	gen    uint64
	cancel context.CancelCauseFunc
}

func newTracker() *tracker {
	return &tracker{tasks: make(map[string]trackedTask)}
}

// add registers taskID and returns its context and a generation to pass to
// done. It reports false when the task is already tracked.
func (t *tracker) add(parent context.Context, taskID string) (context.Context, uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[taskID]; ok {
		return nil, 0, false
	}
	ctx, cancel := context.WithCancelCause(parent)
	t.next++
	t.tasks[taskID] = trackedTask{gen: t.next, cancel: cancel}
	return ctx, t.next, true
}

// cancel aborts a tracked task with ErrCancelled.
func (t *tracker) cancel(taskID string) bool {
	t.mu.Lock()
	entry, ok := t.tasks[taskID]
	t.mu.Unlock()
	if ok {
		entry.cancel(ErrCancelled)
	}
	return ok
}

// done releases the entry added with gen. An entry that has since been
// replaced by release and add is left alone.
func (t *tracker) done(taskID string, gen uint64) {
	t.mu.Lock()
	entry, ok := t.tasks[taskID]
	if ok && entry.gen == gen {
		delete(t.tasks, taskID)
	} else {
		ok = false
	}
	t.mu.Unlock()
	if ok {
		entry.cancel(context.Canceled)
	}
}

// release drops taskID whatever its generation. It is only safe once the
// task's run has recorded a terminal status.
func (t *tracker) release(taskID string) {
	t.mu.Lock()
	entry, ok := t.tasks[taskID]
	delete(t.tasks, taskID)
	t.mu.Unlock()
	if ok {
		entry.cancel(context.Canceled)
	}
}

func (t *tracker) has(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tasks[taskID]
	return ok
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}
