// Package worker provides a fixed-size pool for heavy blocking work
// (model inference, media decode) so it never starves the light
// request-handling paths.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// ErrPoolStopped is returned when submitting to a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Task is a unit of heavy work.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of workers. The worker count is the
// hard cap on concurrently executing tasks regardless of how many are
// submitted.
type Pool struct {
	workers int
	tasks   chan submission
	logger  *slog.Logger

	active atomic.Int64
	peak   atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type submission struct {
	ctx  context.Context
	task Task
	done chan struct{}
}

// Config holds worker pool configuration.
type Config struct {
	Workers    int
	QueueDepth int
}

// NewPool creates a pool; call Start before submitting.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Workers * 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan submission, cfg.QueueDepth),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Run submits a task and blocks until it has finished executing or ctx
// is cancelled while still queued.
func (p *Pool) Run(ctx context.Context, task Task) error {
	sub := submission{ctx: ctx, task: task, done: make(chan struct{})}

	select {
	case <-p.ctx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- sub:
	}

	select {
	case <-sub.done:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Peak returns the maximum number of tasks observed executing at once.
func (p *Pool) Peak() int64 {
	return p.peak.Load()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case sub := <-p.tasks:
			p.execute(sub)
		}
	}
}

func (p *Pool) execute(sub submission) {
	defer close(sub.done)

	// Skip tasks whose caller already gave up.
	if sub.ctx.Err() != nil {
		return
	}

	n := p.active.Add(1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	defer p.active.Add(-1)

	sub.task(sub.ctx)
}
