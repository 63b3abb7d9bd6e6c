// Package dbwatch manages the single native subscription to state-database
// change events and republishes them to in-process listeners.
package dbwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aerodesk/agent/internal/events"
	"github.com/aerodesk/agent/internal/gateway"
	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("dbwatch")

// EventChanged is the local event name ChangeEvents are published under.
const EventChanged = "data-changed"

// ChangeEvent is one normalized state-database change as delivered to
// listeners. Previous and New are opaque snapshots from the backend.
type ChangeEvent struct {
	Timestamp time.Time            `json:"timestamp"`
	Previous  json.RawMessage      `json:"previous,omitempty"`
	New       json.RawMessage      `json:"new,omitempty"`
	Diff      *gateway.DiffSummary `json:"diff,omitempty"`
}

// Manager owns at most one open native change subscription and fans
// received events out to registered listeners in arrival order. It is not
// safe for concurrent use by multiple goroutines; callers serialize access
// the same way the rest of the agent's orchestrators are driven.
type Manager struct {
	gw      gateway.MonitorOps
	emitter *events.Emitter
	now     func() time.Time

	mu    sync.Mutex
	unsub gateway.UnsubscribeFunc
}

// NewManager creates a manager publishing to em.
func NewManager(gw gateway.MonitorOps, em *events.Emitter) *Manager {
	return &Manager{
		gw:      gw,
		emitter: em,
		now:     time.Now,
	}
}

// LoadSettings reads the persisted monitoring flag and, when it is set,
// starts listening. A read failure degrades to enabled=true without opening
// a subscription; listening only starts on an explicit successful read.
func (m *Manager) LoadSettings(ctx context.Context) (bool, error) {
	enabled, err := m.gw.ChangeMonitoringEnabled(ctx)
	if err != nil {
		log.Warn("reading monitoring flag failed, assuming enabled", logging.KeyError, err)
		return true, nil
	}
	if !enabled {
		return false, nil
	}
	if err := m.StartListening(ctx); err != nil {
		return true, fmt.Errorf("starting change monitoring: %w", err)
	}
	return true, nil
}

// SetEnabled persists the monitoring flag and then aligns the runtime
// subscription with it. If persistence fails the runtime state is left
// untouched so the stored flag and the live subscription never diverge.
func (m *Manager) SetEnabled(ctx context.Context, enabled bool) error {
	if err := m.gw.SetChangeMonitoringEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("persisting monitoring flag: %w", err)
	}
	if enabled {
		return m.StartListening(ctx)
	}
	return m.StopListening(ctx)
}

// StartListening opens a fresh native subscription and asks the backend to
// begin emitting change events. Any prior subscription is released first,
// so repeated calls never stack native listeners.
func (m *Manager) StartListening(ctx context.Context) error {
	m.Cleanup()

	unsub, err := m.gw.SubscribeDataChanged(ctx, m.handleChange)
	if err != nil {
		return fmt.Errorf("subscribing to change events: %w", err)
	}

	m.mu.Lock()
	m.unsub = unsub
	m.mu.Unlock()

	if err := m.gw.StartChangeMonitoring(ctx); err != nil {
		m.Cleanup()
		return fmt.Errorf("starting change monitoring: %w", err)
	}

	log.Info("change monitoring started")
	return nil
}

// StopListening releases the native subscription and asks the backend to
// stop emitting change events.
func (m *Manager) StopListening(ctx context.Context) error {
	m.Cleanup()
	if err := m.gw.StopChangeMonitoring(ctx); err != nil {
		return fmt.Errorf("stopping change monitoring: %w", err)
	}
	log.Info("change monitoring stopped")
	return nil
}

// Cleanup releases the held subscription handle, if any. Safe to call at
// any time, including when no subscription is open, and on every path that
// leaves the listening state.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub == nil {
		return
	}
	if err := unsub(); err != nil {
		log.Warn("releasing change subscription failed", logging.KeyError, err)
	}
}

// Listening reports whether a native subscription is currently held.
func (m *Manager) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsub != nil
}

// AddListener registers fn for change events. Listeners are independent;
// each receives every event until its unsubscribe function is called.
func (m *Manager) AddListener(fn func(ChangeEvent)) events.UnsubscribeFunc {
	return m.emitter.Subscribe(EventChanged, func(payload any) {
		if ev, ok := payload.(ChangeEvent); ok {
			fn(ev)
		}
	})
}

// handleChange normalizes one native push and publishes it synchronously,
// preserving backend arrival order.
func (m *Manager) handleChange(dc gateway.DataChange) {
	ev := ChangeEvent{
		Timestamp: m.now(),
		Previous:  dc.OldData,
		New:       dc.NewData,
		Diff:      dc.Diff,
	}
	m.emitter.Publish(EventChanged, ev)
}
