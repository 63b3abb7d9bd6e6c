package dbwatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aerodesk/agent/internal/events"
	"github.com/aerodesk/agent/internal/gateway"
)

// fakeMonitorGateway scripts the backend's monitoring operations. It keeps
// every callback passed to SubscribeDataChanged so tests can push events and
// count live subscriptions.
type fakeMonitorGateway struct {
	enabled    bool
	getErr     error
	setErr     error
	subErr     error
	startErr   error
	stopErr    error
	unsubErr   error
	setCalls   int
	startCalls int
	stopCalls  int

	active map[int]func(gateway.DataChange)
	nextID int
}

func newFakeMonitorGateway() *fakeMonitorGateway {
	return &fakeMonitorGateway{active: make(map[int]func(gateway.DataChange))}
}

func (f *fakeMonitorGateway) ChangeMonitoringEnabled(ctx context.Context) (bool, error) {
	return f.enabled, f.getErr
}

func (f *fakeMonitorGateway) SetChangeMonitoringEnabled(ctx context.Context, enabled bool) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.enabled = enabled
	return nil
}

func (f *fakeMonitorGateway) StartChangeMonitoring(ctx context.Context) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeMonitorGateway) StopChangeMonitoring(ctx context.Context) error {
	f.stopCalls++
	return f.stopErr
}

func (f *fakeMonitorGateway) SubscribeDataChanged(ctx context.Context, fn func(gateway.DataChange)) (gateway.UnsubscribeFunc, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.nextID++
	id := f.nextID
	f.active[id] = fn
	return func() error {
		delete(f.active, id)
		return f.unsubErr
	}, nil
}

// push delivers a change to every live subscription.
func (f *fakeMonitorGateway) push(dc gateway.DataChange) {
	for _, fn := range f.active {
		fn(dc)
	}
}

func newTestManager(gw gateway.MonitorOps) *Manager {
	return NewManager(gw, events.NewEmitter())
}

func TestLoadSettingsStartsWhenEnabled(t *testing.T) {
	gw := newFakeMonitorGateway()
	gw.enabled = true
	m := newTestManager(gw)

	enabled, err := m.LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if !enabled {
		t.Fatal("expected enabled")
	}
	if !m.Listening() {
		t.Fatal("expected an open subscription")
	}
	if gw.startCalls != 1 {
		t.Fatalf("expected one start call, got %d", gw.startCalls)
	}
}

func TestLoadSettingsDisabledDoesNotStart(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	enabled, err := m.LoadSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Fatal("expected disabled")
	}
	if m.Listening() {
		t.Fatal("no subscription should be open")
	}
}

func TestLoadSettingsReadFailureDefaultsEnabledWithoutListening(t *testing.T) {
	gw := newFakeMonitorGateway()
	gw.getErr = errors.New("store unavailable")
	m := newTestManager(gw)

	enabled, err := m.LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("read failure must not surface: %v", err)
	}
	if !enabled {
		t.Fatal("read failure must default to enabled")
	}
	if m.Listening() {
		t.Fatal("listening must only start on an explicit successful read")
	}
	if gw.startCalls != 0 {
		t.Fatal("no start call expected")
	}
}

func TestSetEnabledPersistsBeforeStarting(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	if err := m.SetEnabled(context.Background(), true); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if !gw.enabled {
		t.Fatal("flag should be persisted")
	}
	if !m.Listening() {
		t.Fatal("subscription should be open")
	}

	if err := m.SetEnabled(context.Background(), false); err != nil {
		t.Fatalf("set disabled: %v", err)
	}
	if m.Listening() {
		t.Fatal("subscription should be released")
	}
	if gw.stopCalls != 1 {
		t.Fatalf("expected one stop call, got %d", gw.stopCalls)
	}
}

func TestSetEnabledPersistenceFailureLeavesRuntimeUnchanged(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	gw.setErr = errors.New("write failed")
	if err := m.SetEnabled(context.Background(), true); err == nil {
		t.Fatal("expected persistence error")
	}
	if m.Listening() {
		t.Fatal("runtime state must not change when persistence fails")
	}
	if gw.startCalls != 0 {
		t.Fatal("no start call expected")
	}
}

func TestStartListeningNeverStacksSubscriptions(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	for i := 0; i < 3; i++ {
		if err := m.StartListening(context.Background()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if len(gw.active) != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", len(gw.active))
	}
}

func TestStartListeningReleasesHandleWhenBackendStartFails(t *testing.T) {
	gw := newFakeMonitorGateway()
	gw.startErr = errors.New("monitoring unavailable")
	m := newTestManager(gw)

	if err := m.StartListening(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if m.Listening() {
		t.Fatal("handle must be released on a failed start")
	}
	if len(gw.active) != 0 {
		t.Fatal("native subscription must be released on a failed start")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	m.Cleanup()

	if err := m.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Cleanup()
	m.Cleanup()
	if len(gw.active) != 0 {
		t.Fatal("subscription should be released")
	}
}

func TestEventsReachListenersInArrivalOrder(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	var first, second []ChangeEvent
	m.AddListener(func(ev ChangeEvent) { first = append(first, ev) })
	m.AddListener(func(ev ChangeEvent) { second = append(second, ev) })

	if err := m.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}

	gw.push(gateway.DataChange{
		NewData: json.RawMessage(`{"seq":1}`),
		Diff:    &gateway.DiffSummary{HasChanges: true, ChangedFields: []string{"seq"}},
	})
	gw.push(gateway.DataChange{
		OldData: json.RawMessage(`{"seq":1}`),
		NewData: json.RawMessage(`{"seq":2}`),
	})

	for name, got := range map[string][]ChangeEvent{"first": first, "second": second} {
		if len(got) != 2 {
			t.Fatalf("%s listener: expected 2 events, got %d", name, len(got))
		}
		if string(got[0].New) != `{"seq":1}` || string(got[1].New) != `{"seq":2}` {
			t.Fatalf("%s listener: events out of order: %+v", name, got)
		}
		if !got[0].Timestamp.Equal(fixed) {
			t.Fatalf("%s listener: timestamp not stamped: %v", name, got[0].Timestamp)
		}
	}
	if first[0].Diff == nil || !first[0].Diff.HasChanges {
		t.Fatal("diff summary should pass through")
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	m.AddListener(func(ChangeEvent) { panic("listener bug") })
	var got int
	m.AddListener(func(ChangeEvent) { got++ })

	if err := m.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	gw.push(gateway.DataChange{NewData: json.RawMessage(`{}`)})

	if got != 1 {
		t.Fatalf("second listener should still receive the event, got %d", got)
	}
	if !m.Listening() {
		t.Fatal("manager state must survive a panicking listener")
	}
}

func TestRemovedListenerStopsReceiving(t *testing.T) {
	gw := newFakeMonitorGateway()
	m := newTestManager(gw)

	var got int
	unsub := m.AddListener(func(ChangeEvent) { got++ })

	if err := m.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	gw.push(gateway.DataChange{})
	unsub()
	gw.push(gateway.DataChange{})

	if got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}
