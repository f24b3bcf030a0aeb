package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/bridge/bridgetest"
	"github.com/testforge/droidbutler/internal/manifest"
)

// installingDevice scripts the happy path: the pm install process exits
// zero and the package becomes visible once it has been awaited.
func installingDevice(pkg string) *bridgetest.Device {
	device := bridgetest.NewDevice("emulator-5554")
	device.OnMonitor("shell pm install", func(args []string) (bridge.Process, error) {
		proc := bridgetest.NewProcess(0, "Success")
		proc.WaitHook = func() { device.AddPackage(pkg) }
		return proc, nil
	})
	return device
}

func TestInstall(t *testing.T) {
	device := installingDevice("com.example.app")

	a, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk", WithConfig(fastConfig()))
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", a.PackageName())

	assert.True(t, device.CallMatching("push /tmp/app.apk /data/local/tmp/com.example.app"))
	assert.True(t, device.CallMatching("shell rm /data/local/tmp/com.example.app"))

	monitors := device.Monitors()
	require.Len(t, monitors, 1)
	assert.Equal(t, []string{"shell", "pm", "install", "/data/local/tmp/com.example.app"}, monitors[0].Args)
}

func TestInstallTestPackageFlags(t *testing.T) {
	device := installingDevice("com.example.test")
	m := manifest.Manifest{
		PackageName: "com.example.test",
		Instrumentation: &manifest.Instrumentation{
			TargetPackage: "com.example.app",
			Runner:        "androidx.test.runner.AndroidJUnitRunner",
		},
	}

	ta, err := InstallTest(context.Background(), device, m, "/tmp/test.apk", WithConfig(fastConfig()), WithUpgrade())
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", ta.TargetApplication().PackageName())

	monitors := device.Monitors()
	require.Len(t, monitors, 1)
	assert.Equal(t, []string{"shell", "pm", "install", "-r", "-t", "/data/local/tmp/com.example.test"}, monitors[0].Args)
}

func TestInstallPushFailure(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	device.OnExec("push", func(args []string) (bridge.Result, error) {
		return bridge.Result{ExitCode: 1, Stderr: "device offline"}, nil
	})

	_, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk", WithConfig(fastConfig()))

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "com.example.app", ioErr.Package)
	assert.Empty(t, device.Monitors(), "no install may start after a failed push")
}

func TestInstallFailureCarriesOutput(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	device.OnMonitor("shell pm install", func(args []string) (bridge.Process, error) {
		return bridgetest.NewProcess(1, "Failure ["+bridge.InsufficientStorageMarker+"]"), nil
	})

	_, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk", WithConfig(fastConfig()))

	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Contains(t, installErr.Output, bridge.InsufficientStorageMarker)
	assert.ErrorIs(t, err, bridge.ErrInsufficientStorage)

	// staged apk is removed even on failure
	assert.True(t, device.CallMatching("shell rm /data/local/tmp/com.example.app"))
}

func TestInstallVerificationFailure(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	// install exits 0 but the package never shows up in the list

	_, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk", WithConfig(fastConfig()))

	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Contains(t, installErr.Error(), "com.example.app")
	assert.Contains(t, installErr.Error(), "not found among installed packages")
}

func TestInstallCallbackReceivesProcessHandle(t *testing.T) {
	device := installingDevice("com.example.app")
	var got bridge.Process

	_, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk",
		WithConfig(fastConfig()),
		WithInstallCallback(func(p bridge.Process) { got = p }))

	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestInstallsSerializedByDeviceLock(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	device.OnMonitor("shell pm install", func(args []string) (bridge.Process, error) {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		pkg := strings.TrimPrefix(args[len(args)-1], "/data/local/tmp/")
		proc := bridgetest.NewProcess(0, "Success")
		proc.ExitDelay = 20 * time.Millisecond
		proc.WaitHook = func() {
			inFlight.Add(-1)
			device.AddPackage(pkg)
		}
		return proc, nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pkg := range []string{"com.example.one", "com.example.two"} {
		i, pkg := i, pkg
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := manifest.Manifest{PackageName: pkg}
			_, errs[i] = Install(context.Background(), device, m, "/tmp/"+pkg+".apk", WithConfig(fastConfig()))
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.False(t, overlapped.Load(), "install commands must not overlap in time")
}

func TestInstallLockReleasedAfterFailure(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	var installs atomic.Int32
	device.OnMonitor("shell pm install", func(args []string) (bridge.Process, error) {
		if installs.Add(1) == 1 {
			return bridgetest.NewProcess(1, "Failure [INSTALL_FAILED_INVALID_APK]"), nil
		}
		proc := bridgetest.NewProcess(0, "Success")
		proc.WaitHook = func() { device.AddPackage("com.example.app") }
		return proc, nil
	})

	_, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk", WithConfig(fastConfig()))
	require.Error(t, err)

	// a second install must not deadlock on a leaked lock
	done := make(chan error, 1)
	go func() {
		_, err := Install(context.Background(), device, appManifest(), "/tmp/app.apk", WithConfig(fastConfig()))
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second install blocked; install lock was not released after the failure")
	}
}

func TestFromAPKRejectsNonAPK(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	path := filepath.Join(t.TempDir(), "bogus.apk")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a zip"), 0o644))

	_, err := FromAPK(context.Background(), device, path)
	assert.True(t, errors.Is(err, manifest.ErrNotAPK))
	assert.Empty(t, device.Calls(), "nothing may be pushed for an unparseable apk")
}
