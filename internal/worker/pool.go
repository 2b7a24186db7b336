package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"framecast/internal/telemetry"
)

var (
	ErrQueueFull   = errors.New("worker queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Task is a unit of background work. Run receives the pool's context, which
// outlives the request that submitted the task.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Pool runs submitted tasks on a fixed number of goroutines. It owns every
// task it accepts: failures and panics are logged, never propagated.
type Pool struct {
	workers int
	tasks   chan Task
	logger  *slog.Logger

	mu      sync.RWMutex
	stopped bool
	started bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool with a bounded backlog of queueSize tasks.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. Tasks run with a context derived from ctx that
// is cancelled only if Stop gives up waiting.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(runCtx, i)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queue_size", cap(p.tasks))
}

// Submit queues a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new tasks and waits for queued and running ones to finish. If
// ctx ends first, running tasks are cancelled and ctx's error is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("stop worker pool: %w", ctx.Err())
	}
}

func (p *Pool) work(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.execute(ctx, workerID, task)
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.TaskPanics.Inc()
			p.logger.Error("task panicked",
				"task_id", task.ID,
				"worker", workerID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	if err := task.Run(ctx); err != nil {
		p.logger.Error("task failed", "task_id", task.ID, "worker", workerID, "error", err)
	}
}
