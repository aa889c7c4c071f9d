package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Unit is one piece of queued work: a group of tasks run in order.
type Unit struct {
	Name string
	Run  func(ctx context.Context, workerID int)
}

// Pool is a fixed set of workers draining a bounded queue. Its size is
// independent of batch size, so a large batch queues rather than fanning out.
type Pool struct {
	logger  *slog.Logger
	workers int
	queue   chan Unit

	ctx    context.Context
	cancel context.CancelCauseFunc

	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets how many units may wait for a worker.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.queue = make(chan Unit, n)
		}
	}
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		logger:  logger.With("component", "pool"),
		workers: 4,
		queue:   make(chan Unit, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.ctx, p.cancel = context.WithCancelCause(context.Background())
	return p
}

// Context is cancelled with ErrShutdown when a shutdown deadline expires.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Start launches the workers. It is safe to call more than once.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i + 1)
		}
		p.logger.Info("worker pool started", "workers", p.workers, "queue_size", cap(p.queue))
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for unit := range p.queue {
		p.runUnit(unit, id, logger)
	}

	logger.Debug("worker stopped")
}

func (p *Pool) runUnit(unit Unit, workerID int, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("unit panicked", "unit", unit.Name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	unit.Run(p.ctx, workerID)
}

// Submit enqueues a unit without blocking. It returns ErrQueueFull when no
// slot is free and ErrQueueClosed after Shutdown.
func (p *Pool) Submit(unit Unit) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.queue <- unit:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of queued units not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Shutdown stops intake and waits for queued units to drain. When ctx ends
// first, running units are cancelled with ErrShutdown and Shutdown waits for
// the workers to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
		p.cancel(ErrShutdown)
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown deadline reached, cancelling running tasks")
		p.cancel(ErrShutdown)
		<-done
		return ctx.Err()
	}
}
