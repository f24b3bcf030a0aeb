// Package watchdog provides a one-shot timer bounding a named activity
// whose start and end are observed out-of-band, e.g. from lines of
// remote process output, where an inline timeout cannot be applied.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/droidbutler/internal/infrastructure/logging"
)

// StopWatch marks the start and end of a named activity.
type StopWatch interface {
	MarkStart(name string)
	MarkEnd(name string)
}

// TimeoutError is the cancellation cause delivered when an activity
// outlives its timer.
type TimeoutError struct {
	Activity string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("activity %q timed out after %s", e.Activity, e.Duration)
}

// Timeout marks this error as a timeout for callers using the
// net.Error-style convention.
func (e *TimeoutError) Timeout() bool { return true }

// Timer is a one-shot StopWatch with a fixed duration. MarkStart arms
// it and binds a cancellation context for the activity; MarkEnd
// disarms it. On expiry only the armed activity's context is cancelled
// (with a *TimeoutError cause); nothing else in the process is touched
// unless an explicit abort hook was installed.
//
// Calling MarkEnd before any MarkStart is a programming error and
// panics, like unlocking an unheld sync.Mutex. MarkEnd after expiry is
// absorbed: the activity already ended, just not the way the caller
// wanted.
type Timer struct {
	duration time.Duration
	parent   context.Context
	log      *logging.Logger
	abort    func()

	mu      sync.Mutex
	name    string
	armed   bool
	started bool
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelCauseFunc
}

// Option configures a Timer.
type Option func(*Timer)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(t *Timer) { t.log = log }
}

// WithAbort installs an emergency hook invoked after an expiry, for
// callers that want a timed-out activity to take down more than its
// own context. Most callers should not use this.
func WithAbort(abort func()) Option {
	return func(t *Timer) { t.abort = abort }
}

// New creates a timer that allows each marked activity the given
// duration. Contexts armed by MarkStart descend from parent.
func New(parent context.Context, duration time.Duration, opts ...Option) *Timer {
	t := &Timer{
		duration: duration,
		parent:   parent,
		log:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MarkStart arms the timer for the named activity.
func (t *Timer) MarkStart(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		panic(fmt.Sprintf("watchdog: MarkStart(%q) while %q is still armed", name, t.name))
	}
	ctx, cancel := context.WithCancelCause(t.parent)
	t.name = name
	t.armed = true
	t.started = true
	t.ctx = ctx
	t.cancel = cancel
	t.timer = time.AfterFunc(t.duration, func() { t.expire(name) })
}

// MarkEnd disarms the timer for the named activity.
func (t *Timer) MarkEnd(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		panic(fmt.Sprintf("watchdog: MarkEnd(%q) without MarkStart", name))
	}
	if !t.armed {
		// already expired (or ended); nothing left to disarm
		return
	}
	t.armed = false
	t.timer.Stop()
	t.cancel(nil)
}

// Context returns the cancellation context bound by the most recent
// MarkStart, or nil before any start. Work for the activity should be
// bounded by it.
func (t *Timer) Context() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

func (t *Timer) expire(name string) {
	t.mu.Lock()
	if !t.armed || t.name != name {
		t.mu.Unlock()
		return
	}
	t.armed = false
	cancel := t.cancel
	abort := t.abort
	t.mu.Unlock()

	t.log.Error("Activity timed out",
		zap.String("activity", name),
		zap.Duration("after", t.duration))
	cancel(&TimeoutError{Activity: name, Duration: t.duration})
	if abort != nil {
		abort()
	}
}

var _ StopWatch = (*Timer)(nil)
