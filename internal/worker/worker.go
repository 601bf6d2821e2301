// Package worker runs deferred tasks off the timer-service context.
// Timer expiry handlers enqueue work with Schedule, which never blocks; a
// single goroutine runs queued tasks in order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned by Schedule when no slot is free.
	ErrQueueFull = errors.New("worker: queue full")

	// ErrStopped is returned by Schedule after the queue stopped running.
	ErrStopped = errors.New("worker: stopped")
)

// DefaultQueueSize is the queue capacity used when none is given.
const DefaultQueueSize = 16

// Scheduler defers a named task to another execution context.
type Scheduler interface {
	Schedule(name string, fn func()) error
}

type task struct {
	name string
	fn   func()
}

// Queue is a bounded single-consumer task queue.
type Queue struct {
	tasks  chan task
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

// NewQueue creates a queue with the given capacity. A size <= 0 uses
// DefaultQueueSize. A nil logger uses slog.Default().
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		tasks:  make(chan task, size),
		logger: logger,
	}
}

// Schedule enqueues fn without blocking.
func (q *Queue) Schedule(name string, fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		return fmt.Errorf("%w: dropping %q", ErrQueueFull, name)
	}
}

// Run executes queued tasks until ctx is cancelled. Tasks still queued at
// that point are discarded. A panicking task is logged and does not stop the
// queue.
func (q *Queue) Run(ctx context.Context) error {
	defer func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-q.tasks:
			q.run(t)
		}
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("deferred task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn()
}

// Inline runs every task immediately on the caller's goroutine. Tests pair it
// with timer.Manual to make timer-driven transitions synchronous. It must not
// be paired with timer.Runtime, whose expiry handlers run with the timer
// locked.
type Inline struct{}

// Schedule runs fn before returning.
func (Inline) Schedule(name string, fn func()) error {
	fn()
	return nil
}
