// Package nav provides device interaction helpers: key events, home
// navigation, and home-screen/screen-state queries.
package nav

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/infrastructure/logging"
)

// Stack lines look like "Stack #0:" or "Stack #0: type=home mode=fullscreen".
var stackPattern = regexp.MustCompile(`^Stack #(\d+):`)

// samsungLauncher shows up instead of stack #0 on Samsung devices with
// silent packages in the foreground.
const samsungLauncher = "com.sec.android.app.launcher"

// Interaction drives user-level navigation on a single device.
type Interaction struct {
	device  bridge.Device
	log     *logging.Logger
	timeout time.Duration
}

// Option configures an Interaction.
type Option func(*Interaction)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(i *Interaction) { i.log = log }
}

// WithCommandTimeout overrides the per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(i *Interaction) { i.timeout = d }
}

// New creates an Interaction for the given device.
func New(device bridge.Device, opts ...Option) *Interaction {
	i := &Interaction{
		device:  device,
		log:     logging.NewNop(),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Input sends a key event to the device.
func (i *Interaction) Input(ctx context.Context, subject string) error {
	return i.InputFrom(ctx, "keyevent", subject)
}

// InputFrom sends an event subject through the given input source.
func (i *Interaction) InputFrom(ctx context.Context, source, subject string) error {
	_, err := i.device.Execute(ctx, bridge.CommandSpec{
		Args:    []string{"shell", "input", source, subject},
		Timeout: i.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to send %s input %q: %w", source, subject, err)
	}
	return nil
}

// GoHome is equivalent to pressing the home button.
func (i *Interaction) GoHome(ctx context.Context) error {
	return i.Input(ctx, "KEYCODE_HOME")
}

// HomeScreenActive reports whether the home screen is in the
// foreground. System pop-ups cause a false result.
func (i *Interaction) HomeScreenActive(ctx context.Context) (bool, error) {
	res, err := i.device.Execute(ctx, bridge.CommandSpec{
		Args:    []string{"shell", "dumpsys", "activity", "activities"},
		Timeout: i.timeout,
	})
	if err != nil {
		return false, fmt.Errorf("failed to dump activity stacks: %w", err)
	}

	foundStack := false
	for _, line := range strings.Split(res.Stdout, "\n") {
		matches := stackPattern.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}
		if matches[1] == "0" {
			return true, nil
		}
		foundStack = true
		break
	}
	if !foundStack {
		return false, fmt.Errorf("no line matched the expected activity stack format; output was: %s", res.Stdout)
	}

	// The stack format was fine but stack #0 was not on top. Samsung
	// devices can have silent packages in front of the launcher, so
	// check whether the first real foreground app is the launcher.
	foreground, err := i.ForegroundActivity(ctx, true)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(foreground, samsungLauncher), nil
}

// ForegroundActivity returns the package at the top of the activity
// stack, optionally skipping known silent packages. Empty means the
// stack is empty (or all-silent).
func (i *Interaction) ForegroundActivity(ctx context.Context, ignoreSilentApps bool) (string, error) {
	stack, err := i.device.ActivityStack(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read activity stack: %w", err)
	}
	for _, pkg := range stack {
		if ignoreSilentApps && isSilent(pkg) {
			continue
		}
		return pkg, nil
	}
	return "", nil
}

// ScreenOn reports whether the device's screen is on.
func (i *Interaction) ScreenOn(ctx context.Context) (bool, error) {
	res, err := i.device.Execute(ctx, bridge.CommandSpec{
		Args:    []string{"shell", "dumpsys", "activity", "activities"},
		Timeout: i.timeout,
	})
	if err != nil {
		return false, fmt.Errorf("failed to dump activity stacks: %w", err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "mInteractive=false") ||
			strings.Contains(line, "mScreenOn=false") ||
			strings.Contains(line, "isSleeping=true") {
			return false, nil
		}
	}
	return true, nil
}

// ToggleScreen toggles the device's screen on/off.
func (i *Interaction) ToggleScreen(ctx context.Context) error {
	if err := i.Input(ctx, "KEYCODE_POWER"); err != nil {
		return err
	}
	i.log.Debug("Toggled device screen", zap.String("device", i.device.Serial()))
	return nil
}

func isSilent(pkg string) bool {
	for _, silent := range bridge.SilentRunningPackages {
		if strings.EqualFold(pkg, silent) {
			return true
		}
	}
	return false
}
