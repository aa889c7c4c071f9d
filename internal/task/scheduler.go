package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/resume-tailor/internal/types"
)

// DefaultBatchSize is the group size used when none is configured.
const DefaultBatchSize = 5

// Pair is a task and the job it tailors for.
type Pair struct {
	JobID  string
	TaskID string
}

// Partition splits pairs into consecutive groups of at most batchSize,
// preserving order within and across groups.
func Partition(pairs []Pair, batchSize int) [][]Pair {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	groups := make([][]Pair, 0, (len(pairs)+batchSize-1)/batchSize)
	for start := 0; start < len(pairs); start += batchSize {
		end := min(start+batchSize, len(pairs))
		groups = append(groups, pairs[start:end:end])
	}
	return groups
}

// Scheduler turns batches into pool units. Each group is one unit whose
// tasks run strictly in order; groups run concurrently up to the pool's
// worker count.
type Scheduler struct {
	pool      *Pool
	executor  *Executor
	registry  *Registry
	tracker   *tracker
	batchSize int
	logger    *slog.Logger
}

// NewScheduler creates a scheduler feeding pool.
func NewScheduler(pool *Pool, executor *Executor, registry *Registry, tr *tracker, batchSize int, logger *slog.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scheduler{
		pool:      pool,
		executor:  executor,
		registry:  registry,
		tracker:   tr,
		batchSize: batchSize,
		logger:    logger.With("component", "scheduler"),
	}
}

// Run queues pairs for execution against one resume and returns at once.
// A non-positive batchSize uses the scheduler default. Completion is only
// observable through task status. Groups the queue cannot take stay WAITING
// and are picked up by the monitor's next sweep.
func (s *Scheduler) Run(pairs []Pair, resumeID string, mode types.ContentMode, batchSize int) int {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	queued := 0
	for i, group := range Partition(pairs, batchSize) {
		items := make([]scheduled, 0, len(group))
		for _, p := range group {
			ctx, gen, ok := s.tracker.add(s.pool.Context(), p.TaskID)
			if !ok {
				s.logger.Debug("task already in flight, not queueing again", "task_id", p.TaskID)
				continue
			}
			items = append(items, scheduled{pair: p, ctx: ctx, gen: gen})
		}
		if len(items) == 0 {
			continue
		}

		unit := Unit{
			Name: fmt.Sprintf("group-%d/%s", i+1, items[0].pair.TaskID),
			Run: func(poolCtx context.Context, workerID int) {
				s.runGroup(poolCtx, workerID, items, resumeID, mode)
			},
		}
		if err := s.pool.Submit(unit); err != nil {
			for _, it := range items {
				s.tracker.done(it.pair.TaskID, it.gen)
			}
			s.logger.Warn("could not queue group, tasks stay waiting",
				"group", i+1, "size", len(items), "error", err)
			continue
		}
		queued++
		s.logger.Debug("group queued", "group", i+1, "size", len(items), "resume_id", resumeID)
	}
	return queued
}

type scheduled struct {
	pair Pair
	ctx  context.Context
	gen  uint64
}

func (s *Scheduler) runGroup(poolCtx context.Context, workerID int, items []scheduled, resumeID string, mode types.ContentMode) {
	for idx, it := range items {
		if poolCtx.Err() != nil {
			// Shutting down: leave the rest WAITING for the next start.
			for _, rest := range items[idx:] {
				s.tracker.done(rest.pair.TaskID, rest.gen)
			}
			return
		}
		s.runOne(it, workerID, resumeID, mode)
	}
}

func (s *Scheduler) runOne(it scheduled, workerID int, resumeID string, mode types.ContentMode) {
	defer s.tracker.done(it.pair.TaskID, it.gen)
	logger := s.logger.With("task_id", it.pair.TaskID, "worker_id", workerID)

	if it.ctx.Err() != nil {
		cause := context.Cause(it.ctx)
		if !errors.Is(cause, ErrCancelled) {
			return
		}
		logger.Info("task cancelled before it started")
		if _, err := s.registry.Transition(context.Background(), it.pair.TaskID, types.TaskStatusFailed, Fields{
			Err:       ErrCancelled,
			ErrorKind: types.ErrorKindCancelled,
		}); err != nil && !errors.Is(err, ErrInvalidTransition) {
			logger.Error("could not record cancellation", "error", err)
		}
		return
	}

	_ = s.executor.Execute(it.ctx, Request{
		TaskID:   it.pair.TaskID,
		JobID:    it.pair.JobID,
		ResumeID: resumeID,
		Mode:     mode,
	})
}
