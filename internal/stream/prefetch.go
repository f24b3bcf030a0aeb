package stream

import (
	"context"
	"sync"

	"github.com/testforge/droidbutler/internal/bridge"
)

// Prefetch wraps a line reader and keeps one read in flight ahead of
// the consumer, so device output is pulled off the wire as soon as it
// appears rather than when the consumer next asks for a line. This
// matters when slow per-line processing would otherwise let the
// underlying pipe back up.
type Prefetch struct {
	ch chan string

	mu   sync.Mutex
	err  error
	text string
}

// NewPrefetch starts reading from r in the background. The context
// bounds the background reads; cancelling it stops the prefetcher.
func NewPrefetch(ctx context.Context, r bridge.LineReader) *Prefetch {
	p := &Prefetch{ch: make(chan string, 1)}
	go func() {
		defer close(p.ch)
		for r.Scan(ctx) {
			select {
			case p.ch <- r.Text():
			case <-ctx.Done():
				p.setErr(context.Cause(ctx))
				return
			}
		}
		p.setErr(r.Err())
	}()
	return p
}

func (p *Prefetch) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// Scan advances to the next buffered line.
func (p *Prefetch) Scan(ctx context.Context) bool {
	select {
	case text, ok := <-p.ch:
		if !ok {
			return false
		}
		p.mu.Lock()
		p.text = text
		p.mu.Unlock()
		return true
	case <-ctx.Done():
		p.setErr(context.Cause(ctx))
		return false
	}
}

// Text returns the current line.
func (p *Prefetch) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

// Err returns the first error from the underlying reader, or nil when
// the stream ended cleanly.
func (p *Prefetch) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

var _ bridge.LineReader = (*Prefetch)(nil)
