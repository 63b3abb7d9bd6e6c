// Package poller runs a named boolean check immediately and then on a fixed
// interval, skipping ticks that would overlap a check still in flight.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("poller")

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// CheckFunc produces the polled condition. A returned error is treated as
// condition false.
type CheckFunc func(ctx context.Context) (bool, error)

// ResultFunc receives the outcome of each completed check.
type ResultFunc func(ok bool)

// Poller schedules a CheckFunc. Start runs the check once immediately and
// then every interval; a tick that fires while a check is still running is
// dropped, not queued.
type Poller struct {
	name     string
	check    CheckFunc
	interval time.Duration
	onResult ResultFunc

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	inFlight    bool
	lastResult  bool
	lastChecked time.Time
}

// Option adjusts a Poller.
type Option func(*Poller)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithResultFunc registers fn to receive every completed check's outcome.
func WithResultFunc(fn ResultFunc) Option {
	return func(p *Poller) { p.onResult = fn }
}

// New creates a poller for the named check.
func New(name string, check CheckFunc, opts ...Option) *Poller {
	p := &Poller{
		name:     name,
		check:    check,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling. An already running poller is stopped first so two
// schedules never coexist. The first check runs before Start returns.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.runCheck(runCtx)

	go p.loop(runCtx, done)
	log.Debug("poller started", "name", p.name, "interval", p.interval)
}

// Stop cancels the schedule. Safe to call repeatedly and when not running.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Debug("poller stopped", "name", p.name)
}

// Running reports whether a schedule is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// LastResult returns the most recent check outcome and when it completed.
func (p *Poller) LastResult() (ok bool, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResult, p.lastChecked
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.runCheck(ctx)
		}
	}
}

// runCheck executes one check unless one is already in flight, in which
// case the tick is dropped.
func (p *Poller) runCheck(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		log.Debug("check still in flight, skipping tick", "name", p.name)
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	ok, err := p.check(ctx)
	if err != nil {
		log.Warn("check failed", "name", p.name, logging.KeyError, err)
		ok = false
	}

	p.mu.Lock()
	p.inFlight = false
	p.lastResult = ok
	p.lastChecked = time.Now()
	onResult := p.onResult
	p.mu.Unlock()

	if onResult != nil {
		onResult(ok)
	}
}
