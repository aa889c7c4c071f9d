package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// Monitor keeps tasks from being abandoned. It fails PENDING tasks that made
// no progress for too long and queues WAITING tasks this process is not
// running, such as ones left behind by a restart or a full queue.
type Monitor struct {
	registry   *Registry
	scheduler  *Scheduler
	tracker    *tracker
	stuckAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewMonitor creates a monitor. stuckAfter must exceed the task timeout.
func NewMonitor(registry *Registry, scheduler *Scheduler, tr *tracker, stuckAfter, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		registry:   registry,
		scheduler:  scheduler,
		tracker:    tr,
		stuckAfter: stuckAfter,
		interval:   interval,
		logger:     logger.With("component", "monitor"),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

// Recover runs a full sweep at startup: every WAITING task is queued
// regardless of age.
func (m *Monitor) Recover(ctx context.Context) error {
	failed, queued, err := m.sweep(ctx, 0)
	if err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}
	m.logger.Info("task recovery complete", "stuck_failed", failed, "requeued", queued)
	return nil
}

// Start runs periodic sweeps until Stop.
func (m *Monitor) Start() {
	if m.interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), m.interval)
				failed, queued, err := m.sweep(ctx, m.interval)
				cancel()
				if err != nil {
					m.logger.Error("task sweep failed", "error", err)
					continue
				}
				if failed > 0 || queued > 0 {
					m.logger.Info("task sweep", "stuck_failed", failed, "requeued", queued)
				}
			}
		}
	}()
}

// Stop ends periodic sweeps and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// sweep fails stuck PENDING tasks and queues untracked WAITING tasks last
// updated more than waitingAge ago.
func (m *Monitor) sweep(ctx context.Context, waitingAge time.Duration) (int, int, error) {
	now := m.now()

	var failed int
	if m.stuckAfter > 0 {
		stuck, err := m.registry.List(ctx, store.TaskFilter{
			Statuses:      []types.TaskStatus{types.TaskStatusPending},
			UpdatedBefore: now.Add(-m.stuckAfter),
		})
		if err != nil {
			return 0, 0, err
		}
		for _, t := range stuck {
			if m.tracker.has(t.ID) {
				continue
			}
			_, err := m.registry.Transition(ctx, t.ID, types.TaskStatusFailed, Fields{
				Err:       fmt.Errorf("no progress for %s", m.stuckAfter),
				ErrorKind: types.ErrorKindStuck,
			})
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				m.logger.Error("could not fail stuck task", "task_id", t.ID, "error", err)
				continue
			}
			if err == nil {
				m.logger.Warn("stuck task failed", "task_id", t.ID, "job_id", t.JobID)
				failed++
			}
		}
	}

	waiting, err := m.registry.List(ctx, store.TaskFilter{
		Statuses:      []types.TaskStatus{types.TaskStatusWaiting},
		UpdatedBefore: now.Add(-waitingAge),
	})
	if err != nil {
		return failed, 0, err
	}

	type key struct {
		resumeID string
		mode     types.ContentMode
	}
	groups := make(map[key][]Pair)
	var order []key
	for _, t := range waiting {
		if m.tracker.has(t.ID) || t.RawResumeID == "" {
			continue
		}
		mode := t.ContentMode
		if !mode.Valid() {
			mode = types.ModeResume
		}
		k := key{resumeID: t.RawResumeID, mode: mode}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], Pair{JobID: t.JobID, TaskID: t.ID})
	}

	queued := 0
	for _, k := range order {
		m.scheduler.Run(groups[k], k.resumeID, k.mode, 0)
		queued += len(groups[k])
	}
	return failed, queued, nil
}
