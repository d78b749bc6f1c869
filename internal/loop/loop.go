// Package loop runs callbacks one at a time on a single goroutine.
//
// Frame loads, window messages, port messages and deferred reconnects are
// all posted here, so bridge state is only ever touched from one place.
package loop

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Dispatcher schedules a task to run after the current one finishes.
type Dispatcher interface {
	Post(task func())
}

// Loop is a FIFO task queue drained by Run (or by Drain in tests).
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	logger *slog.Logger
}

// New creates an idle Loop. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Post appends task to the queue. It never blocks and may be called from
// any goroutine, including from inside a running task.
func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes tasks as they are posted until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop: started")
	for {
		l.Drain()
		select {
		case <-l.wake:
		case <-ctx.Done():
			l.logger.Debug("loop: stopped", "pending", l.Pending())
			return ctx.Err()
		}
	}
}

// Drain runs queued tasks on the calling goroutine until the queue is
// empty, including tasks posted while draining. It returns how many ran.
// Drain must not be called concurrently with Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		task, ok := l.next()
		if !ok {
			return n
		}
		l.run(task)
		n++
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
