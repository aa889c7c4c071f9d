// Package task is the task orchestration engine. It creates and deduplicates
// tailoring tasks, schedules them on a bounded worker pool, runs each through
// the enrichment pipeline and exposes their status for polling.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/resume-tailor/internal/enrich"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// Config tunes the engine.
type Config struct {
	BatchSize     int           `mapstructure:"batch_size" validate:"min=1,max=100"`
	Workers       int           `mapstructure:"workers" validate:"min=1,max=256"`
	QueueSize     int           `mapstructure:"queue_size" validate:"min=1"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout" validate:"min=0"`
	StoreRetries  int           `mapstructure:"store_retries" validate:"min=0,max=10"`
	StoreBackoff  time.Duration `mapstructure:"store_backoff" validate:"min=0"`
	StuckAfter    time.Duration `mapstructure:"stuck_after" validate:"min=0"`
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"min=0"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		Workers:       4,
		QueueSize:     256,
		TaskTimeout:   10 * time.Minute,
		StoreRetries:  3,
		StoreBackoff:  100 * time.Millisecond,
		StuckAfter:    30 * time.Minute,
		CheckInterval: time.Minute,
	}
}

// Engine wires the registry, dispatcher, scheduler, executor, poller and
// monitor around one store and one pipeline.
type Engine struct {
	*Dispatcher
	*Poller

	registry  *Registry
	scheduler *Scheduler
	pool      *Pool
	monitor   *Monitor
	tracker   *tracker
	logger    *slog.Logger
}

// New builds an engine. Call Start before submitting work.
func New(s store.Store, pipeline enrich.Pipeline, logger *slog.Logger, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	tr := newTracker()
	registry := NewRegistry(s, logger, cfg.StoreRetries, cfg.StoreBackoff)
	executor := NewExecutor(s, registry, pipeline, cfg.TaskTimeout, logger)
	pool := NewPool(logger, WithWorkers(cfg.Workers), WithQueueSize(cfg.QueueSize))
	scheduler := NewScheduler(pool, executor, registry, tr, cfg.BatchSize, logger)

	return &Engine{
		Dispatcher: NewDispatcher(s, registry, scheduler, logger),
		Poller:     NewPoller(s),
		registry:   registry,
		scheduler:  scheduler,
		pool:       pool,
		monitor:    NewMonitor(registry, scheduler, tr, cfg.StuckAfter, cfg.CheckInterval, logger),
		tracker:    tr,
		logger:     logger.With("component", "engine"),
	}
}

// Start launches the workers, recovers tasks left over from a previous run
// and starts the monitor.
func (e *Engine) Start(ctx context.Context) error {
	e.pool.Start()
	if err := e.monitor.Recover(ctx); err != nil {
		return err
	}
	e.monitor.Start()
	e.logger.Info("engine started")
	return nil
}

// Stop stops the monitor and drains the pool. Tasks still running when ctx
// ends are cancelled and recorded as FAILED; queued tasks that never started
// stay WAITING for the next start.
func (e *Engine) Stop(ctx context.Context) error {
	e.monitor.Stop()
	err := e.pool.Shutdown(ctx)
	e.logger.Info("engine stopped", "in_flight", e.tracker.len(), "queued", e.pool.Pending())
	return err
}

// Get returns a task.
func (e *Engine) Get(ctx context.Context, taskID string) (*types.Task, error) {
	return e.registry.Get(ctx, taskID)
}

// List returns tasks matching filter.
func (e *Engine) List(ctx context.Context, filter store.TaskFilter) ([]*types.Task, error) {
	return e.registry.List(ctx, filter)
}

// Cancel aborts a task. A running task has its pipeline call cancelled and
// reaches FAILED once the executor unwinds; the returned task may still show
// PENDING. Any other unfinished task is failed at once.
func (e *Engine) Cancel(ctx context.Context, taskID string) (*types.Task, error) {
	t, err := e.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, &TransitionError{TaskID: taskID, From: t.Status, To: types.TaskStatusFailed, Reason: "task already finished"}
	}

	if e.tracker.cancel(taskID) {
		e.logger.Info("task cancellation requested", "task_id", taskID)
		return t, nil
	}

	failed, err := e.registry.Transition(ctx, taskID, types.TaskStatusFailed, Fields{
		Err:       ErrCancelled,
		ErrorKind: types.ErrorKindCancelled,
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// Retry moves a FAILED task back to WAITING and schedules it again.
func (e *Engine) Retry(ctx context.Context, taskID string) (*types.Task, error) {
	current, err := e.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.Status != types.TaskStatusFailed {
		return nil, &TransitionError{TaskID: taskID, From: current.Status, To: types.TaskStatusWaiting, Reason: "only failed tasks can be retried"}
	}

	t, err := e.registry.Transition(ctx, taskID, types.TaskStatusWaiting, Fields{})
	if err != nil {
		return nil, err
	}
	// The failed run may not have released its entry yet; its terminal
	// write is done, so the retry takes the slot over.
	e.tracker.release(t.ID)
	mode := t.ContentMode
	if !mode.Valid() {
		mode = types.ModeResume
	}
	e.scheduler.Run([]Pair{{JobID: t.JobID, TaskID: t.ID}}, t.RawResumeID, mode, 1)
	e.logger.Info("task retried", "task_id", t.ID, "attempts", t.Attempts)
	return t, nil
}

// UpdateTask applies a manual correction to a task that has not started.
func (e *Engine) UpdateTask(ctx context.Context, taskID string, u FieldUpdate) (*types.Task, error) {
	return e.registry.UpdateFields(ctx, taskID, u)
}

// DeleteTask cancels a task if it is in flight and soft-deletes it, which
// frees its job for a new task.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	e.tracker.cancel(taskID)
	if err := e.registry.Delete(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
