package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/infrastructure/logging"
	"github.com/testforge/droidbutler/internal/infrastructure/monitoring"
	"github.com/testforge/droidbutler/internal/manifest"
)

// InstallCallback receives the handle of a just-started install
// process. See WithInstallCallback.
type InstallCallback func(bridge.Process)

// FromAPK parses the manifest out of a local apk, installs it on the
// device, and returns the ready Application. A push failure is an
// *IOError; a failed or unverifiable install is an *InstallError.
func FromAPK(ctx context.Context, device bridge.Device, apkPath string, opts ...Option) (*Application, error) {
	m, err := manifest.FromAPK(apkPath)
	if err != nil {
		return nil, err
	}
	return Install(ctx, device, m, apkPath, opts...)
}

// ServiceFromAPK is FromAPK for a background-service package.
func ServiceFromAPK(ctx context.Context, device bridge.Device, apkPath string, opts ...Option) (*ServiceApplication, error) {
	m, err := manifest.FromAPK(apkPath)
	if err != nil {
		return nil, err
	}
	return InstallService(ctx, device, m, apkPath, opts...)
}

// TestFromAPK is FromAPK for an instrumentation test package. The apk's
// manifest must declare an instrumentation runner and target package.
func TestFromAPK(ctx context.Context, device bridge.Device, apkPath string, opts ...Option) (*TestApplication, error) {
	m, err := manifest.FromAPK(apkPath)
	if err != nil {
		return nil, err
	}
	return InstallTest(ctx, device, m, apkPath, opts...)
}

// Install installs a package whose manifest was already obtained
// elsewhere (e.g. from build metadata) and returns the ready
// Application.
func Install(ctx context.Context, device bridge.Device, m manifest.Manifest, apkPath string, opts ...Option) (*Application, error) {
	s := newSettings(opts)
	a, err := newApplication(device, m, s)
	if err != nil {
		return nil, err
	}
	if err := installPackage(ctx, device, s, m.PackageName, apkPath, false); err != nil {
		return nil, err
	}
	return a, nil
}

// InstallService is Install for a background-service package.
func InstallService(ctx context.Context, device bridge.Device, m manifest.Manifest, apkPath string, opts ...Option) (*ServiceApplication, error) {
	s := newSettings(opts)
	a, err := newApplication(device, m, s)
	if err != nil {
		return nil, err
	}
	if err := installPackage(ctx, device, s, m.PackageName, apkPath, false); err != nil {
		return nil, err
	}
	return &ServiceApplication{Application: a}, nil
}

// InstallTest is Install for an instrumentation test package; the
// install carries the test-package flag.
func InstallTest(ctx context.Context, device bridge.Device, m manifest.Manifest, apkPath string, opts ...Option) (*TestApplication, error) {
	s := newSettings(opts)
	t, err := newTestApplication(device, m, s)
	if err != nil {
		return nil, err
	}
	if err := installPackage(ctx, device, s, m.PackageName, apkPath, true); err != nil {
		return nil, err
	}
	return t, nil
}

// installPackage pushes the apk to a per-package staging path, runs the
// package-manager install under the device's install lock, and
// verifies the package shows up in the installed list.
func installPackage(ctx context.Context, device bridge.Device, s *settings, pkg, apkPath string, testPackage bool) error {
	log := s.log.With(
		zap.String("install_id", uuid.NewString()),
		zap.String("package", pkg),
		zap.String("device", device.Serial()))
	timer := monitoring.NewTimer(s.metrics, "install")

	remotePath := path.Join(s.cfg.Install.RemoteTmpDir, pkg)
	log.Info("Pushing package",
		zap.String("apk", apkPath),
		zap.String("remote", remotePath))
	if _, err := device.Execute(ctx, bridge.CommandSpec{
		Args:    []string{"push", apkPath, remotePath},
		Timeout: s.cfg.Device.LongCommandTimeout,
	}); err != nil {
		timer.Stop("push_failed")
		return &IOError{Package: pkg, Path: apkPath, Err: err}
	}

	release, err := device.InstallLock().Acquire(ctx)
	if err != nil {
		timer.Stop("cancelled")
		return fmt.Errorf("failed to acquire install lock for %s: %w", pkg, err)
	}
	defer release()
	defer func() {
		// cleanup is not load-bearing
		if _, err := device.Execute(context.WithoutCancel(ctx), bridge.CommandSpec{
			Args:    []string{"shell", "rm", remotePath},
			Timeout: s.cfg.Device.CommandTimeout,
		}); err != nil {
			log.Warn("Failed to remove staged apk", zap.Error(err))
		}
	}()

	args := []string{"shell", "pm", "install"}
	if s.upgrade {
		args = append(args, "-r")
	}
	if testPackage {
		args = append(args, "-t")
	}
	args = append(args, remotePath)

	proc, err := device.Monitor(ctx, args...)
	if err != nil {
		timer.Stop("failed")
		return &InstallError{Package: pkg, Err: err}
	}
	defer proc.Close()

	if s.callback != nil {
		s.callback(proc)
	}

	if err := proc.Wait(ctx, s.cfg.Device.LongCommandTimeout); err != nil {
		timer.Stop("timeout")
		return &InstallError{Package: pkg, Err: fmt.Errorf("install did not complete: %w", err)}
	}
	if code := proc.ExitCode(); code != 0 {
		out, _ := proc.Communicate(ctx)
		cmdErr := &bridge.CommandError{Args: args, ExitCode: code, Output: out}
		result := "failed"
		if errors.Is(cmdErr, bridge.ErrInsufficientStorage) {
			result = "no_storage"
		}
		timer.Stop(result)
		return &InstallError{Package: pkg, Output: out, Err: cmdErr}
	}

	if err := verifyInstalled(ctx, device, s, pkg, log); err != nil {
		timer.Stop("unverified")
		return err
	}
	timer.Stop("success")
	log.Info("Installed package")
	return nil
}

func verifyInstalled(ctx context.Context, device bridge.Device, s *settings, pkg string, log *logging.Logger) error {
	installed, err := device.InstalledPackages(ctx)
	if err != nil {
		return &InstallError{Package: pkg, Err: err}
	}
	if slices.Contains(installed, pkg) {
		return nil
	}

	// some devices lag in reporting freshly installed packages
	log.Debug("Package not yet listed, re-checking",
		zap.Duration("grace", s.cfg.Install.VerifyGrace))
	select {
	case <-time.After(s.cfg.Install.VerifyGrace):
	case <-ctx.Done():
		return &InstallError{Package: pkg, Err: context.Cause(ctx)}
	}

	installed, err = device.InstalledPackages(ctx)
	if err != nil {
		return &InstallError{Package: pkg, Err: err}
	}
	if slices.Contains(installed, pkg) {
		return nil
	}
	return &InstallError{
		Package: pkg,
		Err:     fmt.Errorf("package %s not found among installed packages %v after install", pkg, installed),
	}
}
