package bridgetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/testforge/droidbutler/internal/bridge"
)

// ErrUnresponsive is reported by a fake line reader when a scripted
// line's delay exceeds the reader's unresponsive timeout.
var ErrUnresponsive = errors.New("timed out waiting for next line of output")

// ErrWaitTimeout is reported by the fake Wait when its bound elapses
// before the scripted exit.
var ErrWaitTimeout = errors.New("timed out waiting for process to exit")

type scriptedLine struct {
	text  string
	delay time.Duration
}

// Process is a scripted bridge.Process.
type Process struct {
	mu       sync.Mutex
	lines    []scriptedLine
	pos      int
	exitCode int

	// ExitDelay postpones Wait completion.
	ExitDelay time.Duration
	// Hang makes the output block (until context cancellation) once the
	// scripted lines are exhausted, like a live logcat stream. When
	// false the stream ends cleanly.
	Hang bool
	// WaitHook, if set, runs when a Wait completes successfully.
	WaitHook func()

	closed bool
	exited bool
}

// NewProcess creates a fake process that emits the given lines without
// delay and exits with the given code.
func NewProcess(exitCode int, lines ...string) *Process {
	p := &Process{exitCode: exitCode}
	for _, l := range lines {
		p.lines = append(p.lines, scriptedLine{text: l})
	}
	return p
}

// AddLine appends a scripted output line that becomes available after
// the given delay.
func (p *Process) AddLine(text string, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, scriptedLine{text: text, delay: delay})
}

// Closed reports whether the handle has been released.
func (p *Process) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Process) Wait(ctx context.Context, timeout time.Duration) error {
	done := ctx.Done()
	var expiry <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expiry = t.C
	}

	var exit <-chan time.Time
	if p.ExitDelay > 0 {
		t := time.NewTimer(p.ExitDelay)
		defer t.Stop()
		exit = t.C
	} else {
		ch := make(chan time.Time)
		close(ch)
		exit = ch
	}

	select {
	case <-exit:
	case <-expiry:
		return ErrWaitTimeout
	case <-done:
		return context.Cause(ctx)
	}

	p.mu.Lock()
	p.exited = true
	hook := p.WaitHook
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *Process) Communicate(ctx context.Context) (string, error) {
	p.mu.Lock()
	var rest []string
	for _, l := range p.lines[p.pos:] {
		rest = append(rest, l.text)
	}
	p.pos = len(p.lines)
	p.mu.Unlock()

	if err := p.Wait(ctx, 0); err != nil {
		return "", err
	}
	return strings.Join(rest, "\n"), nil
}

func (p *Process) Output(unresponsive time.Duration) bridge.LineReader {
	return &lineReader{proc: p, unresponsive: unresponsive}
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type lineReader struct {
	proc         *Process
	unresponsive time.Duration
	text         string
	err          error
	done         bool
}

func (r *lineReader) Scan(ctx context.Context) bool {
	if r.done {
		return false
	}

	r.proc.mu.Lock()
	if r.proc.pos >= len(r.proc.lines) {
		hang := r.proc.Hang
		r.proc.mu.Unlock()
		if !hang {
			r.done = true
			return false
		}
		// live stream with nothing more scripted: block until cancelled
		// or the unresponsive bound fires
		return r.wait(ctx, nil)
	}
	line := r.proc.lines[r.proc.pos]
	r.proc.pos++
	r.proc.mu.Unlock()

	if line.delay > 0 {
		if !r.wait(ctx, &line) {
			return false
		}
	}
	r.text = line.text
	return true
}

// wait blocks for a line's delay (or forever when line is nil), honoring
// context cancellation and the unresponsive timeout. It returns true
// only when the delayed line became available in time.
func (r *lineReader) wait(ctx context.Context, line *scriptedLine) bool {
	var available <-chan time.Time
	if line != nil {
		t := time.NewTimer(line.delay)
		defer t.Stop()
		available = t.C
	}

	var expiry <-chan time.Time
	if r.unresponsive > 0 {
		t := time.NewTimer(r.unresponsive)
		defer t.Stop()
		expiry = t.C
	}

	select {
	case <-available:
		return true
	case <-expiry:
		r.err = ErrUnresponsive
		r.done = true
		return false
	case <-ctx.Done():
		r.err = context.Cause(ctx)
		r.done = true
		return false
	}
}

func (r *lineReader) Text() string { return r.text }
func (r *lineReader) Err() error   { return r.err }

var _ bridge.Process = (*Process)(nil)
