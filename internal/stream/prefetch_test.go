package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/droidbutler/internal/bridge"
)

// countingReader serves lines and tracks how far the producer has read.
type countingReader struct {
	lines []string
	pos   atomic.Int32
	text  string
	err   error
}

func (r *countingReader) Scan(ctx context.Context) bool {
	i := int(r.pos.Load())
	if i >= len(r.lines) {
		return false
	}
	r.text = r.lines[i]
	r.pos.Add(1)
	return true
}

func (r *countingReader) Text() string { return r.text }
func (r *countingReader) Err() error   { return r.err }

var _ bridge.LineReader = (*countingReader)(nil)

func TestPrefetchEmpty(t *testing.T) {
	ctx := context.Background()
	p := NewPrefetch(ctx, &countingReader{})

	assert.False(t, p.Scan(ctx))
	assert.NoError(t, p.Err())
	// scanning again after end stays false
	assert.False(t, p.Scan(ctx))
}

func TestPrefetchSingle(t *testing.T) {
	ctx := context.Background()
	p := NewPrefetch(ctx, &countingReader{lines: []string{"one"}})

	require.True(t, p.Scan(ctx))
	assert.Equal(t, "one", p.Text())
	assert.False(t, p.Scan(ctx))
	assert.NoError(t, p.Err())
}

func TestPrefetchDeliversAllInOrder(t *testing.T) {
	ctx := context.Background()
	lines := []string{"a", "b", "c", "d"}
	p := NewPrefetch(ctx, &countingReader{lines: lines})

	var got []string
	for p.Scan(ctx) {
		got = append(got, p.Text())
	}
	assert.Equal(t, lines, got)
	assert.NoError(t, p.Err())
}

func TestPrefetchReadsAhead(t *testing.T) {
	ctx := context.Background()
	r := &countingReader{lines: []string{"a", "b", "c", "d"}}
	p := NewPrefetch(ctx, r)

	require.True(t, p.Scan(ctx))
	assert.Equal(t, "a", p.Text())

	// the producer should have pulled the next line without another Scan
	assert.Eventually(t, func() bool {
		return r.pos.Load() >= 2
	}, time.Second, time.Millisecond)
}

func TestPrefetchPropagatesReaderError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("stream broke")
	p := NewPrefetch(ctx, &countingReader{err: boom})

	assert.False(t, p.Scan(ctx))
	assert.ErrorIs(t, p.Err(), boom)
}

func TestPrefetchScanHonorsContext(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	defer stop()
	// a reader that hangs until its context is cancelled
	hung := NewPrefetch(parent, &hangingReader{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.False(t, hung.Scan(ctx))
	assert.ErrorIs(t, hung.Err(), context.DeadlineExceeded)
}

type hangingReader struct{}

func (r *hangingReader) Scan(ctx context.Context) bool {
	<-ctx.Done()
	return false
}
func (r *hangingReader) Text() string { return "" }
func (r *hangingReader) Err() error   { return nil }
