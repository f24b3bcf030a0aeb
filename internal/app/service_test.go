package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/droidbutler/internal/bridge/bridgetest"
	"github.com/testforge/droidbutler/internal/manifest"
)

func serviceManifest() manifest.Manifest {
	return manifest.Manifest{PackageName: "com.example.service"}
}

func TestServiceStartForeground(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	sa, err := NewService(device, serviceManifest())
	require.NoError(t, err)

	require.NoError(t, sa.StartService(context.Background(), ".SyncService", true))
	assert.True(t, device.CallMatching("shell am start-foreground-service -n com.example.service/.SyncService"))
}

func TestServiceStartForegroundFallbackOnOldAPI(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	device.API = 25
	sa, err := NewService(device, serviceManifest())
	require.NoError(t, err)

	require.NoError(t, sa.StartService(context.Background(), ".SyncService", true))
	assert.True(t, device.CallMatching("shell am startservice -n com.example.service/.SyncService"))
}

func TestServiceStartBackground(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	sa, err := NewService(device, serviceManifest())
	require.NoError(t, err)

	require.NoError(t, sa.StartService(context.Background(), ".SyncService", false))
	assert.True(t, device.CallMatching("shell am startservice -n com.example.service/.SyncService"))
}

func TestServiceStartQuotesOptions(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	sa, err := NewService(device, serviceManifest())
	require.NoError(t, err)

	require.NoError(t, sa.StartService(context.Background(), ".SyncService", false, "--es", "reason", "manual sync"))

	calls := device.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"shell", "am", "startservice", "-n", "com.example.service/.SyncService",
		"--es", `"reason"`, `"manual sync"`,
	}, calls[0].Args)
}

func TestBroadcastRequiresReceiver(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	sa, err := NewService(device, serviceManifest())
	require.NoError(t, err)

	err = sa.Broadcast(context.Background(), "", "com.example.PING")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Empty(t, device.Calls())
}

func TestBroadcastWithAction(t *testing.T) {
	device := bridgetest.NewDevice("emulator-5554")
	sa, err := NewService(device, serviceManifest())
	require.NoError(t, err)

	require.NoError(t, sa.Broadcast(context.Background(), ".PingReceiver", "com.example.PING"))

	calls := device.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"shell", "am", "broadcast", "-n", "com.example.service/.PingReceiver",
		"-a", "com.example.PING",
	}, calls[0].Args)
}
