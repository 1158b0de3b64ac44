// Package accel is the accelerator side of the writer: an ordered execution
// queue, a capacity-bounded device memory model addressed by offsets, and the
// kernels that compute fragment statistics, build dictionaries, encode and
// compress pages, and gather the final column chunk bytes.
//
// Work is submitted to a Queue and executes asynchronously in submission
// order. Host code must Join the queue before reading anything a kernel
// produced.
package accel

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.uber.org/zap"
)

// Task is one unit of queued work.
type Task func(ctx context.Context) error

type queuedTask struct {
	ctx  context.Context
	name string
	fn   Task
}

// Queue executes tasks on a single worker goroutine in submission order.
// The first failing task poisons the queue: every task after it is skipped
// until Join reports the error.
type Queue struct {
	logger *zap.Logger
	tasks  chan queuedTask

	mu      sync.Mutex
	pending sync.WaitGroup
	err     error
	closed  bool
	done    chan struct{}
}

// NewQueue creates a queue and starts its worker.
func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		logger: logger,
		tasks:  make(chan queuedTask, 64),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for t := range q.tasks {
		q.execute(t)
		q.pending.Done()
	}
}

func (q *Queue) execute(t queuedTask) {
	q.mu.Lock()
	failed := q.err != nil
	q.mu.Unlock()
	if failed {
		q.logger.Debug("skipping task after earlier failure", zap.String("task", t.name))
		return
	}

	start := time.Now()
	err := t.fn(t.ctx)
	q.logger.Debug("task finished",
		zap.String("task", t.name),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))

	if err != nil {
		q.mu.Lock()
		if q.err == nil {
			q.err = err
		}
		q.mu.Unlock()
	}
}

// Submit enqueues fn. It returns immediately unless the queue's buffer is
// full. Submitting to a closed queue fails with a usage error.
func (q *Queue) Submit(ctx context.Context, name string, fn Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return pqerrors.New(pqerrors.ErrorTypeUsage, "submit on closed queue").WithDetail("task", name)
	}
	q.pending.Add(1)
	q.mu.Unlock()

	q.tasks <- queuedTask{ctx: ctx, name: name, fn: fn}
	return nil
}

// Join blocks until every task submitted so far has finished and returns the
// first task error, if any, clearing it so the queue can be reused. When ctx
// is done after the tasks drained, its error is returned instead of nil.
func (q *Queue) Join(ctx context.Context) error {
	q.pending.Wait()

	q.mu.Lock()
	err := q.err
	q.err = nil
	q.mu.Unlock()

	if err != nil {
		return err
	}
	return ctx.Err()
}

// Close waits for outstanding tasks and stops the worker. It is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.pending.Wait()
	close(q.tasks)
	<-q.done
}
