// Package worker runs independent tasks on a fixed pool of goroutines fed by a queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/boxoffice/internal/adapters/mq/queue"
	"github.com/okian/boxoffice/pkg/logger"
	"github.com/okian/boxoffice/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// ErrStopped is returned for work submitted to a pool that is shutting down.
var ErrStopped = errors.New("worker pool stopped")

// Task is one unit of work travelling through the queue.
type Task struct {
	ctx  context.Context //nolint:containedctx // the caller's context travels with its task
	run  func(context.Context) error
	done func(error)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// Worker processes tasks until its queue closes or it is shut down.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue Queue
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(t)
		}
	}
}

// Shutdown signals the worker and waits for it to stop.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(t Task) {
	start := time.Now()
	var err error
	if err = t.ctx.Err(); err == nil {
		err = w.safeRun(t)
	}
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	if err != nil && !errors.Is(err, context.Canceled) {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "task_error")
		w.logger.Debug(t.ctx, "task failed", logger.Error(err))
	}
	t.done(err)
}

func (w *InMemoryWorker) safeRun(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.run(t.ctx)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   *queue.InMemoryQueue[Task]

	stopped  chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers over a queue of queueSize tasks.
func NewPool(workerCount, queueSize int) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue.NewInMemoryQueue[Task](queue.WithCapacity(queueSize)),
		stopped: make(chan struct{}),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(p.queue, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// RunAll runs every task on the pool and waits for all of them. The first
// failure by task order is returned and cancels the tasks not yet started.
// Results are the caller's to collect; tasks write into their own slots.
func (p *Pool) RunAll(ctx context.Context, tasks []func(context.Context) error) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	submitted := 0
	var submitErr error
	for i, fn := range tasks {
		wg.Add(1)
		t := Task{ctx: ctx, run: fn, done: func(err error) {
			if err != nil {
				errs[i] = err
				cancel()
			}
			wg.Done()
		}}
		if err := p.queue.Submit(ctx, t); err != nil {
			wg.Done()
			submitErr = err
			break
		}
		submitted++
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-p.stopped:
		return ErrStopped
	}

	for _, err := range errs[:submitted] {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	if submitErr != nil {
		if errors.Is(submitErr, queue.ErrClosed) {
			return ErrStopped
		}
		return submitErr
	}
	for _, err := range errs[:submitted] {
		if err != nil {
			return err
		}
	}
	return nil
}

// Shutdown closes the queue and waits for the workers to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	p.stopOnce.Do(func() { close(p.stopped) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return errors.Join(errs...)
}
