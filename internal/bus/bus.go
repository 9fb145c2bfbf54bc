package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultPublishTimeout = 2 * time.Second

// MessageBus is an in-process Bus. Each topic is one bounded queue; every
// subscriber goroutine competes for events, so an event reaches exactly one
// in-process subscriber. Topic queues are never closed; shutdown is signalled
// through done so a racing Publish cannot send on a closed channel.
type MessageBus struct {
	mu             sync.RWMutex
	topics         map[string]chan MessageEvent
	bufferSize     int
	publishTimeout time.Duration
	done           chan struct{}
	closeOnce      sync.Once
}

// New creates an in-process bus with the given per-topic buffer.
func New(bufferSize int) *MessageBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MessageBus{
		topics:         make(map[string]chan MessageEvent),
		bufferSize:     bufferSize,
		publishTimeout: defaultPublishTimeout,
		done:           make(chan struct{}),
	}
}

func (b *MessageBus) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *MessageBus) queue(topic string) chan MessageEvent {
	b.mu.RLock()
	q, ok := b.topics[topic]
	b.mu.RUnlock()
	if ok {
		return q
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.topics[topic]; ok {
		return q
	}
	q = make(chan MessageEvent, b.bufferSize)
	b.topics[topic] = q
	return q
}

// Publish enqueues ev, waiting up to the publish timeout when the queue is full.
func (b *MessageBus) Publish(ctx context.Context, topic string, ev MessageEvent) error {
	if b.isClosed() {
		return ErrClosed
	}

	q := b.queue(topic)
	select {
	case q <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	default:
	}

	slog.Warn("bus queue full, waiting", "topic", topic, "message_id", ev.MessageID)
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case q <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("topic %s: %w", topic, ErrPublishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts one consumer goroutine for topic.
func (b *MessageBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if b.isClosed() {
		return ErrClosed
	}

	q := b.queue(topic)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case ev := <-q:
				dispatch(ctx, topic, ev, handler)
			}
		}
	}()
	return nil
}

// Close stops accepting publishes and ends all subscriber loops.
func (b *MessageBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

// dispatch runs handler with panic recovery so one bad event cannot kill
// the consumer loop.
func dispatch(ctx context.Context, topic string, ev MessageEvent, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus handler panicked", "topic", topic, "message_id", ev.MessageID, "panic", r)
		}
	}()
	if err := handler(ctx, ev); err != nil {
		slog.Warn("bus handler failed", "topic", topic, "message_id", ev.MessageID, "error", err)
	}
}
