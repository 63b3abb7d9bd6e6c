package events

import (
	"testing"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	e := NewEmitter()

	var order []string
	e.Subscribe("data-changed", func(any) { order = append(order, "first") })
	e.Subscribe("data-changed", func(any) { order = append(order, "second") })
	e.Subscribe("data-changed", func(any) { order = append(order, "third") })

	e.Publish("data-changed", nil)

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("wrong delivery order: %v", order)
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	e := NewEmitter()

	var received []int
	e.Subscribe("data-changed", func(any) { received = append(received, 1) })
	e.Subscribe("data-changed", func(any) { panic("listener failure") })
	e.Subscribe("data-changed", func(any) { received = append(received, 3) })

	e.Publish("data-changed", nil)

	if len(received) != 2 || received[0] != 1 || received[1] != 3 {
		t.Fatalf("listeners after panic should still run: %v", received)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := NewEmitter()

	count := 0
	unsub := e.Subscribe("data-changed", func(any) { count++ })

	e.Publish("data-changed", nil)
	unsub()
	e.Publish("data-changed", nil)

	if count != 1 {
		t.Fatalf("expected 1 delivery after unsubscribe, got %d", count)
	}
}

func TestUnsubscribeTwiceIsNoOp(t *testing.T) {
	e := NewEmitter()

	e.Subscribe("data-changed", func(any) {})
	unsub := e.Subscribe("data-changed", func(any) {})
	unsub()
	unsub()

	if n := e.ListenerCount("data-changed"); n != 1 {
		t.Fatalf("expected 1 remaining listener, got %d", n)
	}
}

func TestListenersAreIndependentPerEvent(t *testing.T) {
	e := NewEmitter()

	var got any
	e.Subscribe("app-running-changed", func(payload any) { got = payload })
	e.Subscribe("data-changed", func(any) { t.Fatal("wrong event delivered") })

	e.Publish("app-running-changed", true)

	if got != true {
		t.Fatalf("payload not delivered: %v", got)
	}
}
