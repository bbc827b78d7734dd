// Package bus provides the in-process event bus that carries presentation
// events from the Slack client to the UI boundary. Delivery is best-effort
// and fire-and-forget: publishing never blocks on or fails because of a
// subscriber.
package bus

import (
	"log/slog"
	"sync"
)

// Event is a named payload pushed toward the UI.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// The gateway server subscribes per connected UI client; the Slack client
// only ever calls Publish.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Publish(event Event)
}

// EventBus is the in-process EventPublisher implementation.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates an empty event bus.
func New() *EventBus {
	return &EventBus{handlers: make(map[string]EventHandler)}
}

// Subscribe registers a handler under the given subscriber id,
// replacing any existing handler with the same id.
func (b *EventBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Publish dispatches the event to every subscriber. A panicking handler is
// logged and skipped; it never takes down the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked", "event", event.Name, "panic", r)
				}
			}()
			h(event)
		}()
	}
}

var _ EventPublisher = (*EventBus)(nil)
