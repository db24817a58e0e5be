// Package mainloop runs the cooperative event loop of the bridge: one
// goroutine that executes RPC handlers and engine callbacks in order.
//
// Work from other goroutines (engine event readers, HTTP handlers) is queued
// with Post or Invoke. Code running on the loop never needs a lock to touch
// loop-owned state.
package mainloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Invoke when the loop is not running anymore.
var ErrStopped = errors.New("mainloop: stopped")

// Loop is a single-goroutine task queue.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stop    sync.Once
	running sync.Mutex
	logger  *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets a custom logger for the loop.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithQueueSize sets the task queue capacity. Default: 256.
func WithQueueSize(n int) Option {
	return func(lp *Loop) {
		if n > 0 {
			lp.tasks = make(chan func(), n)
		}
	}
}

// New creates a Loop. Call Run to start draining tasks.
func New(opts ...Option) *Loop {
	lp := &Loop{
		tasks:  make(chan func(), 256),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(lp)
	}
	return lp
}

// Run drains tasks until ctx is cancelled or Stop is called. Tasks still
// queued at that point are dropped. Run must be called at most once.
func (lp *Loop) Run(ctx context.Context) {
	lp.running.Lock()
	defer lp.running.Unlock()
	for {
		select {
		case <-ctx.Done():
			lp.Stop()
			return
		case <-lp.done:
			return
		case fn := <-lp.tasks:
			lp.exec(fn)
		}
	}
}

func (lp *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			lp.logger.Error("mainloop: task panic recovered", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It blocks while the queue is full and reports false if the
// loop has stopped.
func (lp *Loop) Post(fn func()) bool {
	select {
	case <-lp.done:
		return false
	default:
	}
	select {
	case lp.tasks <- fn:
		return true
	case <-lp.done:
		return false
	}
}

// Invoke runs fn on the loop and waits for it to return.
func (lp *Loop) Invoke(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !lp.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-lp.done:
		// fn may still be mid-flight if Stop raced it; report the stop.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (lp *Loop) Stop() {
	lp.stop.Do(func() { close(lp.done) })
}

// Done is closed once the loop has been stopped.
func (lp *Loop) Done() <-chan struct{} {
	return lp.done
}
