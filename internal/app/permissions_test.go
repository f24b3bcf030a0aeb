package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/bridge/bridgetest"
	"github.com/testforge/droidbutler/internal/manifest"
)

func grantCalls(device *bridgetest.Device) []string {
	var grants []string
	for _, c := range device.Calls() {
		joined := strings.Join(c.Args, " ")
		if strings.HasPrefix(joined, "shell pm grant ") {
			grants = append(grants, joined)
		}
	}
	return grants
}

func TestGrantPermissionsFiltersToDangerous(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	m := manifest.Manifest{
		PackageName: "com.example.app",
		Permissions: []string{
			"android.permission.CAMERA",
			"com.example.permission.CUSTOM",
		},
	}
	a, err := New(device, m)
	require.NoError(t, err)

	granted, skipped, err := a.GrantPermissions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"android.permission.CAMERA"}, granted)
	assert.Equal(t, []string{"com.example.permission.CUSTOM"}, skipped)
	assert.Equal(t, []string{"shell pm grant com.example.app android.permission.CAMERA"}, grantCalls(device))
}

func TestGrantPermissionsEmptyAfterFiltering(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	m := manifest.Manifest{
		PackageName: "com.example.app",
		Permissions: []string{"com.example.permission.CUSTOM"},
	}
	a, err := New(device, m)
	require.NoError(t, err)

	granted, skipped, err := a.GrantPermissions(context.Background())
	require.NoError(t, err)

	assert.Empty(t, granted)
	assert.Equal(t, []string{"com.example.permission.CUSTOM"}, skipped)
	assert.Empty(t, grantCalls(device))
}

func TestGrantPermissionsIdempotent(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	a, err := New(device, appManifest())
	require.NoError(t, err)

	first, _, err := a.GrantPermissions(context.Background())
	require.NoError(t, err)
	second, _, err := a.GrantPermissions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, grantCalls(device), 2, "no grant may be issued twice")
}

func TestGrantPermissionsRecordsFailedGrants(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	device.OnExec("shell pm grant com.example.app android.permission.CAMERA", func(args []string) (bridge.Result, error) {
		return bridge.Result{ExitCode: 1, Stderr: "operation not allowed"}, nil
	})
	a, err := New(device, appManifest())
	require.NoError(t, err)

	granted, _, err := a.GrantPermissions(context.Background())
	require.NoError(t, err)

	// the failed grant is still recorded, and did not stop the rest
	assert.Equal(t, []string{
		"android.permission.CAMERA",
		"android.permission.RECORD_AUDIO",
	}, granted)
	assert.Len(t, grantCalls(device), 2)
}

func TestGrantPermissionsExplicitSubset(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	a, err := New(device, appManifest())
	require.NoError(t, err)

	granted, skipped, err := a.GrantPermissions(context.Background(), "android.permission.RECORD_AUDIO")
	require.NoError(t, err)

	assert.Equal(t, []string{"android.permission.RECORD_AUDIO"}, granted)
	assert.Empty(t, skipped)
	assert.Len(t, grantCalls(device), 1)
}

func TestClearDataWithRegrantRestoresGrants(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	a, err := New(device, appManifest())
	require.NoError(t, err)

	before, _, err := a.GrantPermissions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, before)

	require.NoError(t, a.ClearData(context.Background(), true))

	assert.True(t, device.CallMatching("shell pm clear com.example.app"))
	assert.Equal(t, before, a.GrantedPermissions())
	assert.Len(t, grantCalls(device), 2*len(before), "each grant re-issued after the clear")
}

func TestClearDataWithoutRegrantResetsGrants(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	a, err := New(device, appManifest())
	require.NoError(t, err)

	_, _, err = a.GrantPermissions(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.ClearData(context.Background(), false))
	assert.Empty(t, a.GrantedPermissions())
}
