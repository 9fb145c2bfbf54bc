package bus

import (
	"log/slog"
	"sync"
)

// EventHub is the in-process EventPublisher used for WebSocket fan-out.
type EventHub struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func NewEventHub() *EventHub {
	return &EventHub{handlers: make(map[string]EventHandler)}
}

func (h *EventHub) Subscribe(id string, handler EventHandler) {
	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()
}

func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.handlers, id)
	h.mu.Unlock()
}

// Broadcast delivers event synchronously to every subscriber.
func (h *EventHub) Broadcast(event Event) {
	h.mu.RLock()
	handlers := make([]EventHandler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked", "event", event.Name, "panic", r)
				}
			}()
			fn(event)
		}()
	}
}
