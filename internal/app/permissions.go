package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/testforge/droidbutler/internal/bridge"
)

// GrantPermissions grants runtime permissions to the application,
// defaulting to the set declared by its manifest. Only permissions the
// device classifies as dangerous need an explicit grant; the rest are
// returned in skipped. Grants are issued one at a time since batch
// grants are unreliable on some devices, and an individual grant
// failure is logged and does not stop the remaining grants. Every
// attempted permission is recorded as granted, so repeated calls issue
// no duplicate grants. The returned granted slice is the full recorded
// set after this call.
func (a *Application) GrantPermissions(ctx context.Context, permissions ...string) (granted, skipped []string, err error) {
	requested := permissions
	if len(requested) == 0 {
		requested = sortedKeys(a.permissions)
	}

	dangerous, err := a.device.DangerousPermissions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dangerous permissions: %w", err)
	}
	dangerousSet := toSet(dangerous)

	for _, p := range requested {
		if _, ok := dangerousSet[p]; !ok {
			skipped = append(skipped, p)
			continue
		}
		if _, ok := a.granted[p]; ok {
			continue
		}
		if a.metrics != nil {
			a.metrics.GrantsTotal.Inc()
		}
		if err := a.grant(ctx, p); err != nil {
			if a.metrics != nil {
				a.metrics.GrantsFailed.Inc()
			}
			a.log.Warn("Failed to grant permission",
				zap.String("permission", p),
				zap.Error(err))
		}
		a.granted[p] = struct{}{}
	}
	return sortedKeys(a.granted), skipped, nil
}

// RegrantPermissions re-applies the recorded granted set, used after a
// data clear wipes the device-side grants. Individual failures are
// logged and absorbed.
func (a *Application) RegrantPermissions(ctx context.Context) {
	for _, p := range sortedKeys(a.granted) {
		if err := a.grant(ctx, p); err != nil {
			a.log.Warn("Failed to re-grant permission",
				zap.String("permission", p),
				zap.Error(err))
		}
	}
}

// GrantedPermissions returns the permissions recorded as granted.
func (a *Application) GrantedPermissions() []string {
	return sortedKeys(a.granted)
}

func (a *Application) grant(ctx context.Context, permission string) error {
	_, err := a.exec(ctx, "grant", bridge.CommandSpec{
		Args:    []string{"shell", "pm", "grant", a.pkg, permission},
		Timeout: a.cfg.Device.CommandTimeout,
	})
	return err
}
