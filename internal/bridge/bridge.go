package bridge

import (
	"context"
	"time"
)

// SilentRunningPackages are packages that may sit on top of the
// activity stack without being visible to or interactable by the user.
// They are disregarded when determining the true foreground app.
var SilentRunningPackages = []string{
	"com.samsung.android.mtpapplication",
	"com.wssyncmldm",
	"com.bitbar.testdroid.monitor",
}

// CommandSpec describes a single remote command invocation.
type CommandSpec struct {
	// Args are the bridge-level command arguments (e.g. "shell", "pm", "install", ...).
	Args []string
	// Timeout bounds the command; zero means the implementation default.
	Timeout time.Duration
	// ExitOK reports whether an exit code counts as success. Nil means
	// only zero is success. Some commands exit non-zero on conditions
	// the caller treats as ordinary answers (e.g. pidof on a dead app).
	ExitOK func(code int) bool
}

// Result holds the outcome of a synchronous remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Device is the remote command boundary: everything this core needs
// from a remotely-connected device. Implementations typically shell out
// to adb; tests use a scripted fake. Implementations must be safe for
// use from a single goroutine per device.
type Device interface {
	// Serial identifies the device to the bridge daemon.
	Serial() string

	// Execute runs a command synchronously and returns its output.
	// A non-zero exit (per spec.ExitOK) is reported as a *CommandError.
	Execute(ctx context.Context, spec CommandSpec) (Result, error)

	// Monitor starts a command as a monitorable streaming process.
	// The caller owns the returned handle and must Close it.
	Monitor(ctx context.Context, args ...string) (Process, error)

	// InstalledPackages lists package names currently installed.
	InstalledPackages(ctx context.Context) ([]string, error)

	// InstalledVersion returns the installed version of a package, or
	// empty if not installed.
	InstalledVersion(ctx context.Context, pkg string) (string, error)

	// APILevel returns the device's Android API level.
	APILevel(ctx context.Context) (int, error)

	// ActivityStack returns package names on the activity stack, top first.
	ActivityStack(ctx context.Context) ([]string, error)

	// ListInstrumentation returns raw "pm list instrumentation" lines.
	ListInstrumentation(ctx context.Context) ([]string, error)

	// DangerousPermissions returns the permissions this device requires
	// explicit runtime grants for.
	DangerousPermissions(ctx context.Context) ([]string, error)

	// InstallLock returns the per-device lock serializing installs.
	// Every Device instance bound to the same physical device must
	// return the same lock.
	InstallLock() *Lock
}
