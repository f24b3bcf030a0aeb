package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/infrastructure/config"
	"github.com/testforge/droidbutler/internal/infrastructure/logging"
	"github.com/testforge/droidbutler/internal/infrastructure/monitoring"
	"github.com/testforge/droidbutler/internal/manifest"
	"github.com/testforge/droidbutler/internal/nav"
)

// Option configures construction and install behavior.
type Option func(*settings)

type settings struct {
	log      *logging.Logger
	metrics  *monitoring.Metrics
	cfg      *config.Config
	upgrade  bool
	callback InstallCallback
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithMetrics enables metric collection.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithConfig overrides the default timing configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithUpgrade makes an install replace an existing package, keeping its
// data.
func WithUpgrade() Option {
	return func(s *settings) { s.upgrade = true }
}

// WithInstallCallback registers a callback receiving the install
// process handle right after the package-manager install has started,
// before its completion is awaited. Callers use it to react to
// on-screen install prompts by scanning the stream.
func WithInstallCallback(cb InstallCallback) Option {
	return func(s *settings) { s.callback = cb }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		log: logging.NewNop(),
		cfg: config.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Application is a non-test application package installed (or about to
// be installed) on a single device. Instances are not safe for
// concurrent use; granted-permission state and the cached version are
// owned by the calling goroutine.
type Application struct {
	device  bridge.Device
	nav     *nav.Interaction
	log     *logging.Logger
	metrics *monitoring.Metrics
	cfg     *config.Config

	pkg         string
	permissions map[string]struct{}
	granted     map[string]struct{}
	version     string
}

// New creates an Application from a normalized manifest. The manifest
// must declare a non-empty package name.
func New(device bridge.Device, m manifest.Manifest, opts ...Option) (*Application, error) {
	return newApplication(device, m, newSettings(opts))
}

func newApplication(device bridge.Device, m manifest.Manifest, s *settings) (*Application, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Application{
		device: device,
		nav: nav.New(device,
			nav.WithLogger(s.log),
			nav.WithCommandTimeout(s.cfg.Device.CommandTimeout)),
		log: s.log.With(
			zap.String("package", m.PackageName),
			zap.String("device", device.Serial())),
		metrics:     s.metrics,
		cfg:         s.cfg,
		pkg:         m.PackageName,
		permissions: toSet(m.Permissions),
		granted:     make(map[string]struct{}),
	}, nil
}

// PackageName returns the package this entity is bound to.
func (a *Application) PackageName() string { return a.pkg }

// Version returns the installed version of the package, fetched once
// and cached.
func (a *Application) Version(ctx context.Context) (string, error) {
	if a.version != "" {
		return a.version, nil
	}
	v, err := a.device.InstalledVersion(ctx, a.pkg)
	if err != nil {
		return "", fmt.Errorf("failed to read version of %s: %w", a.pkg, err)
	}
	a.version = v
	return v, nil
}

// PID returns the process id of the running application, or 0 when it
// is not running.
func (a *Application) PID(ctx context.Context) (int, error) {
	res, err := a.exec(ctx, "pidof", bridge.CommandSpec{
		Args:    []string{"shell", "pidof", "-s", a.pkg},
		Timeout: a.cfg.Device.CommandTimeout,
		// pidof exits 1 when no process matches
		ExitOK: func(code int) bool { return code == 0 || code == 1 },
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query pid of %s: %w", a.pkg, err)
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected pidof output %q for %s: %w", out, a.pkg, err)
	}
	return pid, nil
}

// Start launches an activity of this application. A bare activity name
// is qualified with the package; a non-empty intent is passed as the
// action.
func (a *Application) Start(ctx context.Context, activity, intent string, options ...string) error {
	target := a.qualify(activity)
	args := []string{"shell", "am", "start", "-n", target}
	if intent != "" {
		args = append(args, "-a", intent)
	}
	args = append(args, options...)
	if _, err := a.exec(ctx, "start", bridge.CommandSpec{
		Args:    args,
		Timeout: a.cfg.Device.CommandTimeout,
	}); err != nil {
		return fmt.Errorf("failed to start %s: %w", target, err)
	}
	return nil
}

// Monkey sends launcher events to the application through the monkey
// tool; one event is equivalent to tapping its launcher icon.
func (a *Application) Monkey(ctx context.Context, events int) error {
	if events <= 0 {
		events = 1
	}
	if _, err := a.exec(ctx, "monkey", bridge.CommandSpec{
		Args: []string{
			"shell", "monkey", "-p", a.pkg,
			"-c", "android.intent.category.LAUNCHER", strconv.Itoa(events),
		},
		Timeout: a.cfg.Device.CommandTimeout,
	}); err != nil {
		return fmt.Errorf("failed to launch %s via monkey: %w", a.pkg, err)
	}
	return nil
}

// Stop stops the application, force-stopping after navigating home when
// force is set. Failures are logged and absorbed; stop runs in cleanup
// paths where the application may already be gone.
func (a *Application) Stop(ctx context.Context, force bool) {
	if force {
		a.attempt("go_home", func() error { return a.nav.GoHome(ctx) })
		a.attempt("force_stop", func() error {
			_, err := a.exec(ctx, "stop", bridge.CommandSpec{
				Args:    []string{"shell", "am", "force-stop", a.pkg},
				Timeout: a.cfg.Device.CommandTimeout,
			})
			return err
		})
		return
	}
	a.attempt("stop", func() error {
		_, err := a.exec(ctx, "stop", bridge.CommandSpec{
			Args:    []string{"shell", "am", "stop", a.pkg},
			Timeout: a.cfg.Device.CommandTimeout,
		})
		return err
	})
}

// CleanKill backgrounds the application and kills its process,
// guaranteeing a cold-start-equivalent teardown or failing loudly.
// Unlike Stop, every step that does not complete is an error.
func (a *Application) CleanKill(ctx context.Context) error {
	if err := a.nav.GoHome(ctx); err != nil {
		return fmt.Errorf("failed to background %s: %w", a.pkg, err)
	}

	home := false
	for i := 0; i < a.cfg.Device.CleanKillPollTries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.Device.CleanKillPollInterval):
		}
		active, err := a.nav.HomeScreenActive(ctx)
		if err != nil {
			return fmt.Errorf("failed to verify home screen during clean kill of %s: %w", a.pkg, err)
		}
		if active {
			home = true
			break
		}
	}
	// kill regardless; the home-screen failure is reported afterwards
	if _, err := a.exec(ctx, "kill", bridge.CommandSpec{
		Args:    []string{"shell", "am", "kill", a.pkg},
		Timeout: a.cfg.Device.CommandTimeout,
	}); err != nil {
		return fmt.Errorf("failed to kill %s: %w", a.pkg, err)
	}
	if !home {
		return fmt.Errorf("failed to background %s: home screen did not activate", a.pkg)
	}

	pid, err := a.PID(ctx)
	if err != nil {
		return err
	}
	if pid != 0 {
		return fmt.Errorf("failed to kill %s: process still running with pid %d", a.pkg, pid)
	}
	a.log.Debug("Application cleanly killed")
	return nil
}

// ClearData clears the package's data. With regrant set, the
// previously recorded granted permissions are re-applied; otherwise
// the recorded set is reset to empty, matching the device's own state
// after a clear.
func (a *Application) ClearData(ctx context.Context, regrant bool) error {
	if _, err := a.exec(ctx, "clear", bridge.CommandSpec{
		Args:    []string{"shell", "pm", "clear", a.pkg},
		Timeout: a.cfg.Device.CommandTimeout,
	}); err != nil {
		return fmt.Errorf("failed to clear data of %s: %w", a.pkg, err)
	}
	if regrant {
		a.RegrantPermissions(ctx)
		return nil
	}
	a.granted = make(map[string]struct{})
	return nil
}

// InForeground reports whether this application is the foreground app,
// optionally disregarding known silent system packages on top of the
// activity stack.
func (a *Application) InForeground(ctx context.Context, ignoreSilentApps bool) (bool, error) {
	fg, err := a.nav.ForegroundActivity(ctx, ignoreSilentApps)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(fg, a.pkg), nil
}

// Uninstall removes the package from the device. Failures are logged
// and absorbed.
func (a *Application) Uninstall(ctx context.Context) {
	a.attempt("uninstall", func() error {
		_, err := a.exec(ctx, "uninstall", bridge.CommandSpec{
			Args:    []string{"uninstall", a.pkg},
			Timeout: a.cfg.Device.LongCommandTimeout,
		})
		return err
	})
}

// qualify turns an activity name into the package/class component the
// activity manager resolves. A dot-less bare name is first class-
// qualified with the package, since "pkg/MainActivity" is unresolvable.
func (a *Application) qualify(activity string) string {
	if strings.Contains(activity, "/") {
		return activity
	}
	if !strings.Contains(activity, ".") {
		activity = a.pkg + "." + activity
	}
	return a.pkg + "/" + activity
}

// attempt runs a best-effort step, logging failure instead of
// propagating it.
func (a *Application) attempt(op string, fn func() error) {
	if err := fn(); err != nil {
		a.log.Warn("Best-effort operation failed",
			zap.String("op", op),
			zap.Error(err))
	}
}

func (a *Application) exec(ctx context.Context, kind string, spec bridge.CommandSpec) (bridge.Result, error) {
	if a.metrics != nil {
		a.metrics.CommandsTotal.WithLabelValues(kind).Inc()
	}
	return a.device.Execute(ctx, spec)
}

// quoteArg wraps an argument in double quotes unless it already is, or
// is a flag. Unquoted values containing spaces would be re-split by the
// remote shell.
func quoteArg(arg string) string {
	if strings.HasPrefix(arg, `"`) || strings.HasPrefix(arg, "-") {
		return arg
	}
	return `"` + arg + `"`
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = quoteArg(arg)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
