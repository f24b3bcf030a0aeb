package app

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by the error types below; match with errors.Is.
var (
	ErrCrashedOnStartup       = errors.New("application crashed during startup")
	ErrLaunchTimedOut         = errors.New("application launch timed out")
	ErrMissingInstrumentation = errors.New("manifest declares no usable instrumentation")
	ErrTargetNotInstalled     = errors.New("target application is not installed")
	ErrOrchestratorMissing    = errors.New("orchestrator support package is not installed")
)

// IOError reports a failed transfer of the apk to the device, distinct
// from a failure of the install itself.
type IOError struct {
	Package string
	Path    string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to push %s to device for package %s: %v", e.Path, e.Package, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// InstallError reports an install that exited unsuccessfully or could
// not be verified afterwards. Output carries captured process output
// when available.
type InstallError struct {
	Package string
	Output  string
	Err     error
}

func (e *InstallError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("failed to install package %s: %v: %s", e.Package, e.Err, e.Output)
	}
	return fmt.Sprintf("failed to install package %s: %v", e.Package, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// LaunchError reports a launch that crashed or timed out before the
// activity was displayed. Line carries the log line that decided the
// outcome when one exists.
type LaunchError struct {
	Package string
	Line    string
	Err     error
}

func (e *LaunchError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("failed to launch %s: %v (%s)", e.Package, e.Err, e.Line)
	}
	return fmt.Sprintf("failed to launch %s: %v", e.Package, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// UsageError reports a caller mistake rather than a device condition:
// a test package without instrumentation metadata, a run against an
// uninstalled target, missing orchestrator packages.
type UsageError struct {
	Err    error
	Detail string
}

func (e *UsageError) Error() string {
	switch {
	case e.Err == nil:
		return e.Detail
	case e.Detail == "":
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *UsageError) Unwrap() error { return e.Err }
