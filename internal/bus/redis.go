package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus over Redis pub/sub. Every subscribed instance receives
// every event, so consumers must take the per-message lock before acting.
type RedisBus struct {
	client *redis.Client
	prefix string
}

// NewRedisBus wraps an existing client. Channel names are prefix+topic.
func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "chatrelay:"
	}
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, ev MessageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.Publish(ctx, b.prefix+topic, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	sub := b.client.Subscribe(ctx, b.prefix+topic)
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		defer sub.Close()
		msgCh := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var ev MessageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("redis bus: bad payload", "topic", topic, "error", err)
					continue
				}
				dispatch(ctx, topic, ev, handler)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	return nil // the client is owned by the caller
}
