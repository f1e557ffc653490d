// Package eventloop runs every state mutation on one goroutine so store
// writes, rule evaluation and timer callbacks never interleave mid-way.
package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// ErrStopped is returned when a task is submitted after the loop exited.
var ErrStopped = errors.New("eventloop: stopped")

// Executor runs functions with mutual exclusion against all other tasks.
// Do blocks until fn has run; Post queues fn and returns immediately.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
	Post(fn func())
}

// Loop is a single-consumer task queue.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	logger  *logrus.Logger
	running atomic.Bool
	stopped atomic.Bool
	dropped atomic.Int64
}

// New creates a loop with the given queue capacity.
func New(capacity int, logger *logrus.Logger) *Loop {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Loop{
		tasks:  make(chan func(), capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes tasks until ctx is cancelled. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	defer func() {
		l.stopped.Store(true)
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			_ = apperrors.Recover(l.logger, "eventloop task", task)
		}
	}
}

// Done is closed after Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Do runs fn on the loop and waits for its result. Calling Do from inside a
// loop task deadlocks; internal code calls its collaborators directly.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	if l.stopped.Load() {
		return ErrStopped
	}

	result := make(chan error, 1)
	task := func() {
		var err error
		if rerr := apperrors.Recover(l.logger, "eventloop call", func() { err = fn() }); rerr != nil {
			err = rerr
		}
		result <- err
	}

	select {
	case l.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Post enqueues fn without waiting. When the queue is full the task is
// dropped and logged; periodic jobs simply run again on the next tick.
func (l *Loop) Post(fn func()) {
	if l.stopped.Load() {
		return
	}

	select {
	case l.tasks <- fn:
	default:
		l.dropped.Add(1)
		l.logger.Warn("Event loop queue full, dropping task")
	}
}

// After posts fn onto the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Dropped returns how many posted tasks were discarded.
func (l *Loop) Dropped() int64 {
	return l.dropped.Load()
}

// Inline executes tasks on the caller's goroutine. Tests and single-threaded
// tools use it in place of a running Loop.
type Inline struct{}

func (Inline) Do(_ context.Context, fn func() error) error {
	return fn()
}

func (Inline) Post(fn func()) {
	fn()
}
