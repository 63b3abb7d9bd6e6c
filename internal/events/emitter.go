// Package events provides an in-process publish/subscribe emitter with
// synchronous, order-preserving delivery.
package events

import (
	"runtime/debug"
	"sync"

	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("events")

// Listener receives a published event payload.
type Listener func(payload any)

// UnsubscribeFunc removes a previously registered listener.
type UnsubscribeFunc func()

type registration struct {
	id int
	fn Listener
}

// Emitter fans events out to registered listeners, keyed by event name.
// Delivery is synchronous and in registration order; a panicking listener
// is isolated so the remaining listeners still receive the event.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string][]registration
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]registration),
	}
}

// Subscribe registers fn for the named event and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (e *Emitter) Subscribe(event string, fn Listener) UnsubscribeFunc {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], registration{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		regs := e.listeners[event]
		for i, reg := range regs {
			if reg.id == id {
				e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every listener registered for event, in
// registration order, on the caller's goroutine.
func (e *Emitter) Publish(event string, payload any) {
	e.mu.Lock()
	regs := make([]registration, len(e.listeners[event]))
	copy(regs, e.listeners[event])
	e.mu.Unlock()

	for _, reg := range regs {
		e.deliver(event, reg, payload)
	}
}

// ListenerCount reports how many listeners are registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// deliver invokes a single listener with panic recovery so one failing
// listener cannot block delivery to the others.
func (e *Emitter) deliver(event string, reg registration, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked", "event", event, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	reg.fn(payload)
}
