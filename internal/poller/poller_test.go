package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartRunsCheckImmediately(t *testing.T) {
	var calls atomic.Int32
	p := New("test", func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}, WithInterval(time.Hour))
	defer p.Stop()

	p.Start(context.Background())

	if calls.Load() != 1 {
		t.Fatalf("expected one immediate check, got %d", calls.Load())
	}
	ok, at := p.LastResult()
	if !ok {
		t.Fatal("expected last result true")
	}
	if at.IsZero() {
		t.Fatal("last checked timestamp should be set")
	}
}

func TestPollsOnInterval(t *testing.T) {
	var calls atomic.Int32
	p := New("test", func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}, WithInterval(5*time.Millisecond))
	defer p.Stop()

	p.Start(context.Background())
	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	block := make(chan struct{})
	var started, finished atomic.Int32
	p := New("test", func(ctx context.Context) (bool, error) {
		started.Add(1)
		<-block
		finished.Add(1)
		return true, nil
	}, WithInterval(5*time.Millisecond))
	defer p.Stop()

	go p.Start(context.Background())

	waitFor(t, time.Second, func() bool { return started.Load() == 1 })
	// Let several ticks fire while the first check blocks.
	time.Sleep(30 * time.Millisecond)
	if got := started.Load(); got != 1 {
		close(block)
		t.Fatalf("overlapping ticks must be skipped, got %d concurrent starts", got)
	}
	close(block)
	waitFor(t, time.Second, func() bool { return finished.Load() >= 1 })
}

func TestCheckFailureIsFalseAndStillStampsTime(t *testing.T) {
	p := New("test", func(ctx context.Context) (bool, error) {
		return true, errors.New("probe failed")
	}, WithInterval(time.Hour))
	defer p.Stop()

	p.Start(context.Background())

	ok, at := p.LastResult()
	if ok {
		t.Fatal("a failed check must report false")
	}
	if at.IsZero() {
		t.Fatal("a failed check must still update the timestamp")
	}
}

func TestResultFuncReceivesEveryOutcome(t *testing.T) {
	results := make(chan bool, 8)
	fail := atomic.Bool{}
	p := New("test", func(ctx context.Context) (bool, error) {
		if fail.Load() {
			return false, errors.New("down")
		}
		return true, nil
	}, WithInterval(5*time.Millisecond), WithResultFunc(func(ok bool) { results <- ok }))
	defer p.Stop()

	p.Start(context.Background())
	if got := <-results; !got {
		t.Fatal("first result should be true")
	}
	fail.Store(true)
	waitFor(t, time.Second, func() bool {
		select {
		case got := <-results:
			return !got
		default:
			return false
		}
	})
}

func TestStopIsIdempotent(t *testing.T) {
	p := New("test", func(ctx context.Context) (bool, error) { return true, nil },
		WithInterval(5*time.Millisecond))

	p.Stop()
	p.Start(context.Background())
	p.Stop()
	p.Stop()
	if p.Running() {
		t.Fatal("poller should be stopped")
	}
}

func TestRestartCancelsExistingSchedule(t *testing.T) {
	var calls atomic.Int32
	p := New("test", func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}, WithInterval(10*time.Millisecond))
	defer p.Stop()

	p.Start(context.Background())
	p.Start(context.Background())
	if !p.Running() {
		t.Fatal("poller should be running")
	}

	// With a single schedule the call rate is bounded by the interval; two
	// schedules would roughly double it.
	calls.Store(0)
	time.Sleep(105 * time.Millisecond)
	if got := calls.Load(); got > 13 {
		t.Fatalf("duplicate schedule suspected: %d calls in 105ms at 10ms interval", got)
	}
}
