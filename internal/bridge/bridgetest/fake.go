// Package bridgetest provides a scripted fake implementation of the
// bridge contract for use in tests across the module.
package bridgetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/testforge/droidbutler/internal/bridge"
)

// Call records a single synchronous command issued to the fake device.
type Call struct {
	Args []string
	At   time.Time
}

// ExecHandler produces the result for a matched synchronous command.
type ExecHandler func(args []string) (bridge.Result, error)

// MonitorHandler produces the process for a matched streaming command.
type MonitorHandler func(args []string) (bridge.Process, error)

type execRule struct {
	prefix string
	fn     ExecHandler
}

type monitorRule struct {
	prefix string
	fn     MonitorHandler
}

// Device is a scripted bridge.Device. Zero-value fields behave as an
// idle, healthy device: commands succeed with empty output, and the
// dangerous-permission allowlist falls back to the canonical defaults.
type Device struct {
	mu sync.Mutex

	SerialNo        string
	Packages        []string
	Versions        map[string]string
	API             int
	Stack           []string
	Instrumentation []string
	Dangerous       []string

	execRules    []execRule
	monitorRules []monitorRule
	calls        []Call
	monitors     []Call

	lock     *bridge.Lock
	lockOnce sync.Once
}

// NewDevice creates a fake device with the given serial.
func NewDevice(serial string) *Device {
	return &Device{SerialNo: serial, API: 28}
}

// OnExec registers a handler for synchronous commands whose
// space-joined args start with prefix. Later registrations win.
func (d *Device) OnExec(prefix string, fn ExecHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execRules = append([]execRule{{prefix: prefix, fn: fn}}, d.execRules...)
}

// OnMonitor registers a handler for streaming commands whose
// space-joined args start with prefix. Later registrations win.
func (d *Device) OnMonitor(prefix string, fn MonitorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.monitorRules = append([]monitorRule{{prefix: prefix, fn: fn}}, d.monitorRules...)
}

// Calls returns all synchronous commands issued so far.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Monitors returns all streaming commands issued so far.
func (d *Device) Monitors() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.monitors))
	copy(out, d.monitors)
	return out
}

// CallMatching reports whether any synchronous command so far starts
// with the given space-joined prefix.
func (d *Device) CallMatching(prefix string) bool {
	for _, c := range d.Calls() {
		if strings.HasPrefix(strings.Join(c.Args, " "), prefix) {
			return true
		}
	}
	return false
}

// AddPackage marks a package as installed.
func (d *Device) AddPackage(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Packages = append(d.Packages, pkg)
}

func (d *Device) Serial() string { return d.SerialNo }

func (d *Device) Execute(ctx context.Context, spec bridge.CommandSpec) (bridge.Result, error) {
	if err := ctx.Err(); err != nil {
		return bridge.Result{}, err
	}

	d.mu.Lock()
	d.calls = append(d.calls, Call{Args: append([]string(nil), spec.Args...), At: time.Now()})
	joined := strings.Join(spec.Args, " ")
	var fn ExecHandler
	for _, rule := range d.execRules {
		if strings.HasPrefix(joined, rule.prefix) {
			fn = rule.fn
			break
		}
	}
	d.mu.Unlock()

	var res bridge.Result
	var err error
	if fn != nil {
		res, err = fn(spec.Args)
		if err != nil {
			return res, err
		}
	}

	exitOK := spec.ExitOK
	if exitOK == nil {
		exitOK = func(code int) bool { return code == 0 }
	}
	if !exitOK(res.ExitCode) {
		return res, &bridge.CommandError{
			Args:     spec.Args,
			ExitCode: res.ExitCode,
			Output:   res.Stdout + res.Stderr,
		}
	}
	return res, nil
}

func (d *Device) Monitor(ctx context.Context, args ...string) (bridge.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.monitors = append(d.monitors, Call{Args: append([]string(nil), args...), At: time.Now()})
	joined := strings.Join(args, " ")
	var fn MonitorHandler
	for _, rule := range d.monitorRules {
		if strings.HasPrefix(joined, rule.prefix) {
			fn = rule.fn
			break
		}
	}
	d.mu.Unlock()

	if fn != nil {
		return fn(args)
	}
	return NewProcess(0), nil
}

func (d *Device) InstalledPackages(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Packages...), nil
}

func (d *Device) InstalledVersion(ctx context.Context, pkg string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Versions[pkg], nil
}

func (d *Device) APILevel(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.API, nil
}

func (d *Device) ActivityStack(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Stack...), nil
}

func (d *Device) ListInstrumentation(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Instrumentation...), nil
}

func (d *Device) DangerousPermissions(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Dangerous == nil {
		return append([]string(nil), bridge.DangerousPermissionDefaults...), nil
	}
	return append([]string(nil), d.Dangerous...), nil
}

func (d *Device) InstallLock() *bridge.Lock {
	d.lockOnce.Do(func() { d.lock = bridge.NewLock() })
	return d.lock
}

var _ bridge.Device = (*Device)(nil)
