package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the task queue capacity used when New is given zero.
const DefaultQueueSize = 1024

// ErrClosed is returned when a task is handed to a closed loop.
var ErrClosed = errors.New("reactor closed")

// Loop executes posted tasks sequentially on one goroutine.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	// executed counts completed tasks; used by tests and diagnostics.
	executed atomic.Uint64
}

// New creates a loop with the given task queue capacity.
func New(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post queues fn for execution on the loop goroutine. It blocks while the
// queue is full and returns false once the loop is closed.
// Post must not be called from a task running on the loop itself.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to complete.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The task may still be queued but will never run.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Run executes tasks until ctx is cancelled or Close is called.
// It returns nil after Close and ctx.Err() on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if l.running.Swap(true) {
		return errors.New("reactor already running")
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			fn()
			l.executed.Add(1)
		}
	}
}

// Close stops the loop. Queued tasks that have not started are discarded.
// It is safe to call Close multiple times.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// Executed returns the number of tasks run so far.
func (l *Loop) Executed() uint64 {
	return l.executed.Load()
}
