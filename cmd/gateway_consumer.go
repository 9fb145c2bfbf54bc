package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/dedupe"
	"github.com/nextlevelbuilder/chatrelay/internal/gateway"
	"github.com/nextlevelbuilder/chatrelay/internal/router"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

// messageProcessor is the part of the context router the consumer drives.
type messageProcessor interface {
	Process(ctx context.Context, ev bus.MessageEvent) (*router.Response, error)
}

// routeConsumer processes bus events for asynchronous channels. Delivery is
// at-least-once, so each message id is locked before it is processed and a
// consumer that loses the race skips the event.
type routeConsumer struct {
	router  messageProcessor
	locker  dedupe.Locker
	events  bus.EventPublisher
	lockTTL time.Duration
}

// start subscribes workers consumer loops to the inbound topic.
func (c *routeConsumer) start(ctx context.Context, b bus.Bus, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		if err := b.Subscribe(ctx, bus.TopicInbound, c.handle); err != nil {
			return fmt.Errorf("subscribe consumer %d: %w", i, err)
		}
	}
	slog.Info("route consumers started", "workers", workers)
	return nil
}

func (c *routeConsumer) handle(ctx context.Context, ev bus.MessageEvent) error {
	ok, err := c.locker.Acquire(ctx, dedupe.MessageLockKey(ev.MessageID), c.lockTTL)
	if err != nil {
		slog.Warn("message lock failed, processing anyway", "message_id", ev.MessageID, "error", err)
	} else if !ok {
		slog.Debug("message already claimed by another consumer", "message_id", ev.MessageID)
		return nil
	}

	start := time.Now()
	resp, err := c.router.Process(ctx, ev)
	if resp != nil && c.events != nil {
		path := ev.Metadata[router.MetaPath]
		c.events.Broadcast(bus.Event{Name: protocol.EventRouteDecided, Payload: gateway.RouteDecided(ev, path, resp)})
	}
	if err != nil {
		return fmt.Errorf("route %s on %s: %w", ev.Identifier, ev.Channel, err)
	}
	slog.Info("message routed",
		"message_id", ev.MessageID,
		"channel", ev.Channel,
		"handler", resp.Handler,
		"flow", resp.FlowID,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
