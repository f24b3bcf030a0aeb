package bridge

import (
	"context"
	"time"
)

// LineReader iterates over lines of streamed process output, in the
// style of bufio.Scanner but context-aware.
type LineReader interface {
	// Scan advances to the next line. It returns false when the stream
	// ends, the context is cancelled, or the unresponsive timeout for a
	// single line elapses. After false, Err distinguishes clean end of
	// stream (nil) from failure.
	Scan(ctx context.Context) bool

	// Text returns the current line without its trailing newline.
	Text() string

	// Err returns the first error encountered, or nil on clean end.
	Err() error
}

// Process is a handle to a monitored streaming remote command.
type Process interface {
	// Wait blocks until the process exits. A positive timeout bounds the
	// wait and yields an error on expiry without reaping the process.
	Wait(ctx context.Context, timeout time.Duration) error

	// ExitCode is valid once Wait or Communicate has returned.
	ExitCode() int

	// Communicate drains remaining output, waits for exit, and returns
	// the collected output.
	Communicate(ctx context.Context) (string, error)

	// Output returns a reader over the process output starting at the
	// current stream position. Opening a new reader continues where the
	// previous one stopped; a reader cannot be rewound mid-iteration.
	// A positive unresponsive duration bounds the wait for each line.
	Output(unresponsive time.Duration) LineReader

	// Close releases the handle, terminating the process if it is still
	// running.
	Close() error
}
