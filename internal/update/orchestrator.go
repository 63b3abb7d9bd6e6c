// Package update drives the agent's self-update cycle against the backend:
// check, download, install, relaunch.
package update

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aerodesk/agent/internal/gateway"
	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("update")

// ErrNoPendingUpdate is returned when download or install is requested
// with no update pending. No backend call is made in that case.
var ErrNoPendingUpdate = errors.New("update: no pending update")

// DefaultRelaunchGrace is the settle interval between install and relaunch.
const DefaultRelaunchGrace = 500 * time.Millisecond

// State is the orchestrator's position in the update cycle.
type State string

const (
	StateIdle            State = "idle"
	StateChecking        State = "checking"
	StateNoUpdate        State = "no_update"
	StateUpdateAvailable State = "update_available"
	StateDownloading     State = "downloading"
	StateReadyToInstall  State = "ready_to_install"
	StateInstalling      State = "installing"
	StateRelaunching     State = "relaunching"
	StateError           State = "error"
)

// Descriptor identifies the single pending update.
type Descriptor struct {
	Version        string
	CurrentVersion string
	ReleaseDate    string
	ReleaseNotes   string
}

// Progress reports download progress. Percentage is 0 until the total is
// known and is non-decreasing within one download session.
type Progress struct {
	BytesDownloaded int64
	BytesTotal      int64
	Percentage      int
}

// ProgressFunc receives one Progress per backend download event, in
// arrival order.
type ProgressFunc func(Progress)

// Orchestrator owns the pending update descriptor and the cycle state.
// Methods are safe for concurrent use; the pending descriptor has exactly
// one owner and all mutation goes through these methods.
type Orchestrator struct {
	gw            gateway.UpdateOps
	relaunchGrace time.Duration

	mu      sync.Mutex
	state   State
	pending *Descriptor
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRelaunchGrace overrides the settle interval between install and
// relaunch.
func WithRelaunchGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.relaunchGrace = d
	}
}

// New creates an Orchestrator in the Idle state.
func New(gw gateway.UpdateOps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:            gw,
		relaunchGrace: DefaultRelaunchGrace,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns a copy of the pending descriptor, or nil.
func (o *Orchestrator) Pending() *Descriptor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return nil
	}
	d := *o.pending
	return &d
}

// CheckForUpdates asks the backend for an available update. A stale
// pending descriptor is cleared whether or not one is found; a found
// update becomes the new pending descriptor.
func (o *Orchestrator) CheckForUpdates(ctx context.Context) (*Descriptor, error) {
	o.setState(StateChecking)

	info, err := o.gw.CheckUpdate(ctx)
	if err != nil {
		o.setState(StateError)
		return nil, fmt.Errorf("check for updates: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if info == nil {
		o.pending = nil
		o.state = StateNoUpdate
		log.Info("no update available")
		return nil, nil
	}

	o.pending = &Descriptor{
		Version:        info.Version,
		CurrentVersion: info.CurrentVersion,
		ReleaseDate:    info.ReleaseDate,
		ReleaseNotes:   info.ReleaseNotes,
	}
	o.state = StateUpdateAvailable
	log.Info("update available", "version", info.Version, "currentVersion", info.CurrentVersion)

	d := *o.pending
	return &d, nil
}

// DownloadUpdate streams the pending update's download, invoking onProgress
// for every backend event in arrival order. Fails with ErrNoPendingUpdate,
// without any backend call, when no update is pending.
func (o *Orchestrator) DownloadUpdate(ctx context.Context, onProgress ProgressFunc) error {
	o.mu.Lock()
	if o.pending == nil {
		o.mu.Unlock()
		return ErrNoPendingUpdate
	}
	version := o.pending.Version
	o.state = StateDownloading
	o.mu.Unlock()

	log.Info("downloading update", "version", version)

	session := &downloadSession{onProgress: onProgress}
	if err := o.gw.DownloadUpdate(ctx, session.handle); err != nil {
		o.setState(StateError)
		return fmt.Errorf("download update %s: %w", version, err)
	}

	o.setState(StateReadyToInstall)
	log.Info("update downloaded", "version", version, "bytes", session.downloaded)
	return nil
}

// InstallAndRelaunch installs the pending update, waits the relaunch grace
// interval so the backend's install step settles, then relaunches the
// process. Failures leave the pending descriptor intact so the caller may
// retry.
func (o *Orchestrator) InstallAndRelaunch(ctx context.Context) error {
	o.mu.Lock()
	if o.pending == nil {
		o.mu.Unlock()
		return ErrNoPendingUpdate
	}
	version := o.pending.Version
	o.state = StateInstalling
	o.mu.Unlock()

	log.Info("installing update", "version", version)
	if err := o.gw.InstallUpdate(ctx); err != nil {
		o.setState(StateError)
		return fmt.Errorf("install update %s: %w", version, err)
	}

	select {
	case <-time.After(o.relaunchGrace):
	case <-ctx.Done():
		o.setState(StateError)
		return fmt.Errorf("install update %s: %w", version, ctx.Err())
	}

	o.setState(StateRelaunching)
	log.Info("relaunching", "version", version)
	if err := o.gw.RelaunchProcess(ctx); err != nil {
		o.setState(StateError)
		return fmt.Errorf("relaunch after update %s: %w", version, err)
	}

	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	return nil
}

// ClearPendingUpdate abandons the current cycle unconditionally.
func (o *Orchestrator) ClearPendingUpdate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
	o.state = StateIdle
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// downloadSession accumulates one download's byte counts and converts
// backend events into Progress values.
type downloadSession struct {
	onProgress ProgressFunc
	total      int64
	downloaded int64
}

func (s *downloadSession) handle(ev gateway.DownloadEvent) {
	switch ev.Kind {
	case gateway.DownloadStarted:
		s.total = ev.ContentLength
	case gateway.DownloadProgress:
		s.downloaded += ev.ChunkLength
	case gateway.DownloadFinished:
		// The finish event reports completion against the known total.
		s.downloaded = s.total
	default:
		log.Warn("unknown download event", "kind", string(ev.Kind))
		return
	}

	if s.onProgress != nil {
		s.onProgress(Progress{
			BytesDownloaded: s.downloaded,
			BytesTotal:      s.total,
			Percentage:      percentage(s.downloaded, s.total),
		})
	}
}

func percentage(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(downloaded) / float64(total) * 100))
}
