package app

import (
	"context"
	"fmt"

	"github.com/testforge/droidbutler/internal/bridge"
	"github.com/testforge/droidbutler/internal/manifest"
)

// foregroundServiceMinAPI is the first API level with
// "am start-foreground-service".
const foregroundServiceMinAPI = 26

// ServiceApplication is an Application whose entry points are
// background services rather than activities.
type ServiceApplication struct {
	*Application
}

// NewService creates a ServiceApplication from a normalized manifest.
func NewService(device bridge.Device, m manifest.Manifest, opts ...Option) (*ServiceApplication, error) {
	a, err := New(device, m, opts...)
	if err != nil {
		return nil, err
	}
	return &ServiceApplication{Application: a}, nil
}

// StartService starts the named service. With foreground set, devices
// at or above the supporting API level use the dedicated
// foreground-service command; older devices fall back to a plain
// service start.
func (s *ServiceApplication) StartService(ctx context.Context, service string, foreground bool, options ...string) error {
	cmd := "startservice"
	if foreground {
		api, err := s.device.APILevel(ctx)
		if err != nil {
			return fmt.Errorf("failed to read api level: %w", err)
		}
		if api >= foregroundServiceMinAPI {
			cmd = "start-foreground-service"
		}
	}
	args := []string{"shell", "am", cmd, "-n", s.qualify(service)}
	args = append(args, quoteArgs(options)...)
	if _, err := s.exec(ctx, "start_service", bridge.CommandSpec{
		Args:    args,
		Timeout: s.cfg.Device.CommandTimeout,
	}); err != nil {
		return fmt.Errorf("failed to start service %s: %w", service, err)
	}
	return nil
}

// Broadcast sends an intent broadcast to the named receiver, with an
// optional explicit action.
func (s *ServiceApplication) Broadcast(ctx context.Context, receiver, action string, options ...string) error {
	if receiver == "" {
		return &UsageError{Detail: "broadcast requires a receiver"}
	}
	args := []string{"shell", "am", "broadcast", "-n", s.qualify(receiver)}
	if action != "" {
		args = append(args, "-a", action)
	}
	args = append(args, quoteArgs(options)...)
	if _, err := s.exec(ctx, "broadcast", bridge.CommandSpec{
		Args:    args,
		Timeout: s.cfg.Device.CommandTimeout,
	}); err != nil {
		return fmt.Errorf("failed to broadcast to %s: %w", receiver, err)
	}
	return nil
}
