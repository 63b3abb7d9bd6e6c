// Package procmon watches whether the managed desktop application is
// running and announces transitions to in-process listeners.
package procmon

import (
	"context"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/aerodesk/agent/internal/events"
	"github.com/aerodesk/agent/internal/logging"
	"github.com/aerodesk/agent/internal/poller"
)

var log = logging.L("procmon")

// EventRunningChanged is published on the emitter whenever the liveness
// state flips. The payload is a RunningChange.
const EventRunningChanged = "app-running-changed"

// RunningChange reports one liveness transition.
type RunningChange struct {
	Running bool `json:"running"`
}

// listProcessNames returns lowercase names of all live processes.
type listProcessNames func(ctx context.Context) (map[string]bool, error)

// Monitor polls for a named process and publishes transitions.
type Monitor struct {
	processName string
	emitter     *events.Emitter
	list        listProcessNames
	poller      *poller.Poller

	// seeded tracks whether a first check completed; the first result is
	// published unconditionally to establish the initial state.
	mu      sync.Mutex
	seeded  bool
	running bool
}

// New creates a monitor for processName publishing to em. Extra poller
// options, typically poller.WithInterval, are applied to the underlying
// schedule.
func New(processName string, em *events.Emitter, opts ...poller.Option) *Monitor {
	m := &Monitor{
		processName: strings.ToLower(processName),
		emitter:     em,
		list:        snapshotProcessNames,
	}
	opts = append(opts, poller.WithResultFunc(m.handleResult))
	m.poller = poller.New("app-liveness", m.check, opts...)
	return m
}

// Start begins liveness polling.
func (m *Monitor) Start(ctx context.Context) {
	m.poller.Start(ctx)
}

// Stop halts liveness polling.
func (m *Monitor) Stop() {
	m.poller.Stop()
}

// Running reports the most recent liveness result.
func (m *Monitor) Running() bool {
	ok, _ := m.poller.LastResult()
	return ok
}

func (m *Monitor) check(ctx context.Context) (bool, error) {
	names, err := m.list(ctx)
	if err != nil {
		return false, err
	}
	return names[m.processName], nil
}

// handleResult publishes a RunningChange only when the state flips.
func (m *Monitor) handleResult(ok bool) {
	m.mu.Lock()
	if m.seeded && ok == m.running {
		m.mu.Unlock()
		return
	}
	first := !m.seeded
	m.seeded = true
	m.running = ok
	m.mu.Unlock()

	log.Info("app liveness", "process", m.processName, "running", ok, "initial", first)
	m.emitter.Publish(EventRunningChanged, RunningChange{Running: ok})
}

// snapshotProcessNames caches all process names for a single check.
func snapshotProcessNames(ctx context.Context) (map[string]bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names[strings.ToLower(name)] = true
	}
	return names, nil
}
