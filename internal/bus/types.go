package bus

import (
	"context"
	"errors"
)

// TopicInbound carries MessageEvents from the gateway to consumers.
const TopicInbound = "inbound"

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("bus closed")
	// ErrPublishTimeout is returned when a bounded queue stays full.
	ErrPublishTimeout = errors.New("bus publish timed out")
	// ErrPublishExhausted is returned when every publish attempt failed.
	ErrPublishExhausted = errors.New("bus publish retries exhausted")
)

// UIAction kinds.
const (
	ActionButton = "button"
	ActionList   = "list"
)

// UIAction is an explicit button or list selection.
type UIAction struct {
	ID    string `json:"id"`
	Value string `json:"value,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// InboundMessage is what a channel adapter hands to the gateway.
type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Platform    string            `json:"platform,omitempty"`
	TimestampMs int64             `json:"timestamp_ms,omitempty"` // 0 = now
	Action      *UIAction         `json:"action,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InboundHandler receives normalized adapter messages (the gateway).
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// MessageEvent is the normalized inbound event. Created once by the gateway;
// treat as immutable afterwards.
type MessageEvent struct {
	MessageID   string            `json:"message_id"`
	Identifier  string            `json:"identifier"`
	RawText     string            `json:"raw_text"`
	Channel     string            `json:"channel"`
	ChatID      string            `json:"chat_id,omitempty"` // delivery address on the origin channel
	Platform    string            `json:"platform,omitempty"`
	TimestampMs int64             `json:"timestamp_ms"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Action      *UIAction         `json:"action,omitempty"`
}

// IsAction reports whether the event is an explicit UI selection.
func (e MessageEvent) IsAction() bool { return e.Action != nil && e.Action.ID != "" }

// Handler processes one MessageEvent delivered by a Bus.
type Handler func(ctx context.Context, ev MessageEvent) error

// Bus is the at-least-once transport between gateway and consumers.
// A published event may reach more than one subscriber.
type Bus interface {
	Publish(ctx context.Context, topic string, ev MessageEvent) error
	// Subscribe starts delivering topic events to handler until ctx is done.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Event represents a server-side event to broadcast to WebSocket clients.
type Event struct {
	Name    string      `json:"name"` // event name (e.g. "route.decided", "health")
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and consumers to decouple from concrete hubs.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// Cache kinds carried by cache.invalidate events.
const (
	CacheKindFlowTriggers = "flow_triggers"
	CacheKindSessions     = "sessions"
)

// CacheInvalidatePayload signals cache layers to evict stale entries.
type CacheInvalidatePayload struct {
	Kind string `json:"kind"` // CacheKind* constants
	Key  string `json:"key"`  // empty invalidates the whole kind
}
