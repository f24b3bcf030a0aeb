package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/manifest"
)

const (
	// The two on-device packages the test orchestrator needs.
	testServicesPackage     = "android.support.test.services"
	testOrchestratorPackage = "android.support.test.orchestrator"

	shellExecutorClass    = "android.support.test.services.shellexecutor.ShellMain"
	orchestratorComponent = testOrchestratorPackage + "/android.support.test.orchestrator.AndroidTestOrchestrator"
)

// TestApplication is an instrumentation test package bound to the
// target application its manifest declares. The target is metadata
// only; this entity does not install or uninstall it.
type TestApplication struct {
	*Application

	runner string
	target *Application
}

// NewTest creates a TestApplication from a normalized manifest, which
// must declare both an instrumentation runner and a target package.
func NewTest(device bridge.Device, m manifest.Manifest, opts ...Option) (*TestApplication, error) {
	return newTestApplication(device, m, newSettings(opts))
}

func newTestApplication(device bridge.Device, m manifest.Manifest, s *settings) (*TestApplication, error) {
	if !m.HasInstrumentation() {
		return nil, &UsageError{Err: ErrMissingInstrumentation, Detail: m.PackageName}
	}
	a, err := newApplication(device, m, s)
	if err != nil {
		return nil, err
	}
	target, err := newApplication(device, manifest.Manifest{PackageName: m.Instrumentation.TargetPackage}, s)
	if err != nil {
		return nil, err
	}
	return &TestApplication{
		Application: a,
		runner:      m.Instrumentation.Runner,
		target:      target,
	}, nil
}

// Runner returns the instrumentation runner class.
func (t *TestApplication) Runner() string { return t.runner }

// TargetApplication returns the application under test.
func (t *TestApplication) TargetApplication() *Application { return t.target }

// instrumentation is the package/runner component handed to am instrument.
func (t *TestApplication) instrumentation() string {
	return t.pkg + "/" + t.runner
}

// ListRunners returns the instrumentation runners registered on the
// device for this test package's target application.
func (t *TestApplication) ListRunners(ctx context.Context) ([]string, error) {
	lines, err := t.device.ListInstrumentation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instrumentation: %w", err)
	}
	var runners []string
	for _, line := range lines {
		if !strings.Contains(line, "instrumentation:") || !strings.Contains(line, t.target.pkg) {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(line, "instrumentation:", ""))
		if len(fields) > 0 {
			runners = append(runners, fields[0])
		}
	}
	return runners, nil
}

// Run invokes the instrumentation runner directly and returns the
// streaming process handle. The caller consumes the output lines and
// must Close the handle. The target application must be installed.
func (t *TestApplication) Run(ctx context.Context, options ...string) (bridge.Process, error) {
	if err := t.requireInstalled(ctx, t.target.pkg); err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.TestRunsTotal.WithLabelValues("direct").Inc()
	}
	args := append([]string{"shell", "am", "instrument", "-w", "-r"}, quoteArgs(options)...)
	args = append(args, t.instrumentation())
	t.log.Info("Starting instrumentation run", zap.String("runner", t.runner))
	return t.device.Monitor(ctx, args...)
}

// RunOrchestrated invokes the instrumentation through the on-device
// test orchestrator, which isolates test-to-test state. Both
// orchestrator support packages and the target application must be
// installed; missing ones fail before any remote command is issued.
func (t *TestApplication) RunOrchestrated(ctx context.Context, options ...string) (bridge.Process, error) {
	installed, err := t.device.InstalledPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed packages: %w", err)
	}
	for _, pkg := range []string{testServicesPackage, testOrchestratorPackage} {
		if !slices.Contains(installed, pkg) {
			return nil, &UsageError{Err: ErrOrchestratorMissing, Detail: pkg}
		}
	}
	if !slices.Contains(installed, t.target.pkg) {
		return nil, &UsageError{Err: ErrTargetNotInstalled, Detail: t.target.pkg}
	}
	if t.metrics != nil {
		t.metrics.TestRunsTotal.WithLabelValues("orchestrated").Inc()
	}

	// The orchestrator is reached through the shell-executor entry
	// point, so the whole invocation travels as one shell command line.
	parts := []string{
		"CLASSPATH=$(pm path " + testServicesPackage + ")",
		"app_process", "/", shellExecutorClass,
		"am", "instrument", "-r", "-w",
	}
	parts = append(parts, quoteArgs(options)...)
	parts = append(parts, "-e", "targetInstrumentation", t.instrumentation(), orchestratorComponent)

	t.log.Info("Starting orchestrated instrumentation run", zap.String("runner", t.runner))
	return t.device.Monitor(ctx, "shell", strings.Join(parts, " "))
}

func (t *TestApplication) requireInstalled(ctx context.Context, pkg string) error {
	installed, err := t.device.InstalledPackages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list installed packages: %w", err)
	}
	if !slices.Contains(installed, pkg) {
		return &UsageError{Err: ErrTargetNotInstalled, Detail: pkg}
	}
	return nil
}
