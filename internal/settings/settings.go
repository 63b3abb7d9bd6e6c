// Package settings fronts the backend's persisted UI booleans with
// fail-safe defaults on read failure.
package settings

import (
	"context"
	"fmt"

	"github.com/aerodesk/agent/internal/gateway"
	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("settings")

// Defaults used when a persisted flag cannot be read.
const (
	DefaultTrayEnabled        = true
	DefaultSilentStartEnabled = false
)

// Manager reads and writes the persisted flags. Reads degrade to the
// defaults above instead of surfacing backend errors; writes propagate
// errors so callers know persistence failed.
type Manager struct {
	gw gateway.SettingsOps
}

// NewManager creates a manager over gw.
func NewManager(gw gateway.SettingsOps) *Manager {
	return &Manager{gw: gw}
}

// TrayEnabled returns the persisted tray flag, defaulting to enabled.
func (m *Manager) TrayEnabled(ctx context.Context) bool {
	enabled, err := m.gw.TrayEnabled(ctx)
	if err != nil {
		log.Warn("reading tray flag failed, using default", logging.KeyError, err, "default", DefaultTrayEnabled)
		return DefaultTrayEnabled
	}
	return enabled
}

// SetTrayEnabled persists the tray flag.
func (m *Manager) SetTrayEnabled(ctx context.Context, enabled bool) error {
	if err := m.gw.SetTrayEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("persisting tray flag: %w", err)
	}
	return nil
}

// SilentStartEnabled returns the persisted silent-start flag, defaulting to
// disabled.
func (m *Manager) SilentStartEnabled(ctx context.Context) bool {
	enabled, err := m.gw.SilentStartEnabled(ctx)
	if err != nil {
		log.Warn("reading silent-start flag failed, using default", logging.KeyError, err, "default", DefaultSilentStartEnabled)
		return DefaultSilentStartEnabled
	}
	return enabled
}

// SetSilentStartEnabled persists the silent-start flag.
func (m *Manager) SetSilentStartEnabled(ctx context.Context, enabled bool) error {
	if err := m.gw.SetSilentStartEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("persisting silent-start flag: %w", err)
	}
	return nil
}
