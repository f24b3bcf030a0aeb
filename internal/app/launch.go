package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/infrastructure/monitoring"
	"github.com/testforge/droidbutler/internal/stream"
)

// Markers the activity manager and runtime emit during a launch.
// "Displayed" with the package name is the success signal; a fatal
// exception followed by a "Process" line naming the package is a
// startup crash.
const (
	fatalExceptionMarker = "FATAL EXCEPTION"
	displayedMarker      = "Displayed"
	processMarker        = "Process"
)

// launchLogArgs pre-filter the log stream to the tags that carry
// launch outcomes. "-T 1" starts at the current log position; without
// it logcat replays the ring buffer and a stale "Displayed" line from
// an earlier launch would terminate the scan.
var launchLogArgs = []string{
	"logcat", "-v", "brief", "-T", "1", "-s",
	"ActivityManager:I", "ActivityTaskManager:I", "AndroidRuntime:E",
}

// Launch starts the activity and watches the device log until the
// activity is displayed, the application crashes, or the timeout
// expires. There is no direct return code for app readiness; the log
// stream is the only signal. A zero timeout scans until a terminal
// line arrives or the stream ends.
func (a *Application) Launch(ctx context.Context, activity string, timeout time.Duration, options ...string) error {
	timer := monitoring.NewTimer(a.metrics, "launch")
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	// cancelling on return also stops the prefetching reader below
	defer cancel()

	proc, err := a.device.Monitor(ctx, launchLogArgs...)
	if err != nil {
		timer.Stop("failed")
		return &LaunchError{Package: a.pkg, Err: fmt.Errorf("failed to open log stream: %w", err)}
	}
	defer proc.Close()

	lines := stream.NewPrefetch(ctx, proc.Output(0))

	// Consume a couple of lines before issuing the start, so lines the
	// device emits while the subscription settles are not missed.
	for i := 0; i < 2 && lines.Scan(ctx); i++ {
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Start(gctx, activity, "", options...)
	})
	g.Go(func() error {
		return a.scanLaunch(gctx, lines)
	})

	switch err := g.Wait(); {
	case err == nil:
		timer.Stop("success")
		a.log.Info("Application displayed", zap.String("activity", activity))
		return nil
	case errors.Is(err, ErrCrashedOnStartup):
		timer.Stop("crashed")
		return err
	case errors.Is(err, context.DeadlineExceeded):
		timer.Stop("timeout")
		return &LaunchError{Package: a.pkg, Err: ErrLaunchTimedOut}
	default:
		timer.Stop("failed")
		return err
	}
}

// scanLaunch reads log lines until a terminal launch state. A fatal
// exception alone is not terminal; the crash is confirmed by the
// process line naming the package, which takes precedence over any
// later "Displayed" line.
func (a *Application) scanLaunch(ctx context.Context, lines bridge.LineReader) error {
	crashed := false
	for lines.Scan(ctx) {
		line := lines.Text()
		switch {
		case strings.Contains(line, fatalExceptionMarker):
			crashed = true
		case crashed && strings.Contains(line, processMarker) && strings.Contains(line, a.pkg):
			return &LaunchError{Package: a.pkg, Line: line, Err: ErrCrashedOnStartup}
		case strings.Contains(line, displayedMarker) && strings.Contains(line, a.pkg):
			return nil
		}
	}
	if err := lines.Err(); err != nil {
		return err
	}
	return &LaunchError{
		Package: a.pkg,
		Err:     fmt.Errorf("log stream ended before launch completed: %w", ErrLaunchTimedOut),
	}
}
