// Package dispatch fans decoded events out to registered listeners.
//
// Delivery is synchronous over a snapshot of the listener collection,
// so a callback may register or unregister listeners (itself included)
// without deadlocking. No ordering is guaranteed across listeners.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hstoklosa/sentix-sub000/internal/codec"
)

// Handler consumes one decoded event.
type Handler func(codec.Event)

// Dispatcher routes events to topic-scoped and global listeners.
type Dispatcher struct {
	mu     sync.RWMutex
	topics map[string]map[uuid.UUID]Handler
	global map[uuid.UUID]Handler
	logger *slog.Logger
}

func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		topics: make(map[string]map[uuid.UUID]Handler),
		global: make(map[uuid.UUID]Handler),
		logger: logger,
	}
}

// On registers a handler for one canonical topic and returns its
// unregister func. Unregistering twice is a no-op.
func (d *Dispatcher) On(topic string, h Handler) func() {
	id := uuid.New()

	d.mu.Lock()
	subs := d.topics[topic]
	if subs == nil {
		subs = make(map[uuid.UUID]Handler)
		d.topics[topic] = subs
	}
	subs[id] = h
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if subs, ok := d.topics[topic]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(d.topics, topic)
				}
			}
		})
	}
}

// OnAll registers a handler for every event regardless of topic, for
// protocols where one active channel replaces per-topic keys.
func (d *Dispatcher) OnAll(h Handler) func() {
	id := uuid.New()

	d.mu.Lock()
	d.global[id] = h
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.global, id)
		})
	}
}

// Listeners returns the number of handlers that would see an event for
// topic.
func (d *Dispatcher) Listeners(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[topic]) + len(d.global)
}

// Dispatch delivers ev to every matching listener. The handler slice
// is snapshotted under the read lock and invoked outside it.
func (d *Dispatcher) Dispatch(ev codec.Event) {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.topics[ev.Topic])+len(d.global))
	if ev.Topic != "" {
		for _, h := range d.topics[ev.Topic] {
			handlers = append(handlers, h)
		}
	}
	for _, h := range d.global {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
