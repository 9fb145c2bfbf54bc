package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/dedupe"
	"github.com/nextlevelbuilder/chatrelay/internal/featureflag"
	"github.com/nextlevelbuilder/chatrelay/internal/router"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/tracing"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

// Where an inbound message went.
const (
	RoutedSync        = "sync"
	RoutedBus         = "bus"
	RoutedDropped     = "dropped"
	RoutedRateLimited = "rate_limited"
)

// ErrInvalidMessage is returned for messages without a sender or content.
var ErrInvalidMessage = errors.New("invalid inbound message")

// Responder answers an event synchronously (the context router).
type Responder interface {
	Respond(ctx context.Context, ev bus.MessageEvent) (*router.Response, channels.RenderedMessage, error)
}

// Deps are the collaborators of the ingress pipeline. Flags and Events are optional.
type Deps struct {
	Bus      bus.Bus
	Locker   dedupe.Locker
	Sessions store.SessionStore
	Flags    *featureflag.Gate
	Router   Responder
	Events   bus.EventPublisher
}

// Result describes what happened to one inbound message.
type Result struct {
	MessageID  string                    `json:"message_id,omitempty"`
	Identifier string                    `json:"identifier"`
	Path       string                    `json:"path,omitempty"`
	RoutedTo   string                    `json:"routed_to"`
	Duplicate  bool                      `json:"duplicate,omitempty"`
	Reply      *channels.RenderedMessage `json:"reply,omitempty"`
	Response   *router.Response          `json:"-"`
}

// Gateway is the single ingress point: it normalizes, deduplicates, and
// either answers or enqueues every inbound message.
type Gateway struct {
	cfg     *config.Config
	deps    Deps
	limiter *RateLimiter
	retry   bus.RetryConfig
	now     func() time.Time
}

// New creates the ingress pipeline.
func New(cfg *config.Config, deps Deps) *Gateway {
	retry := bus.DefaultRetryConfig()
	if cfg.Gateway.PublishAttempts > 0 {
		retry.Attempts = cfg.Gateway.PublishAttempts
	}
	if cfg.Gateway.PublishBaseDelayMs > 0 {
		retry.BaseDelay = time.Duration(cfg.Gateway.PublishBaseDelayMs) * time.Millisecond
	}
	return &Gateway{
		cfg:     cfg,
		deps:    deps,
		limiter: NewRateLimiter(cfg.Gateway.RateLimitRPM, 5),
		retry:   retry,
		now:     time.Now,
	}
}

// RateLimiter returns the per-identifier inbound limiter.
func (g *Gateway) RateLimiter() *RateLimiter { return g.limiter }

// Handle runs the ingress pipeline for one adapter message.
func (g *Gateway) Handle(ctx context.Context, msg bus.InboundMessage) (res Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "gateway.handle", tracing.String("channel", msg.Channel))
	defer func() {
		span.SetAttributes(tracing.String("routed_to", res.RoutedTo), tracing.String("path", res.Path))
		tracing.End(span, err)
	}()

	sender := msg.SenderID
	if sender == "" {
		sender = msg.ChatID
	}
	identifier := g.Normalize(msg.Channel, sender)
	text := g.clip(strings.TrimSpace(msg.Content))
	if identifier == "" || (text == "" && msg.Action == nil) {
		return Result{Identifier: identifier}, fmt.Errorf("%w: channel=%s", ErrInvalidMessage, msg.Channel)
	}
	res.Identifier = identifier

	if !g.limiter.Allow(identifier) {
		slog.Warn("security.rate_limited", "identifier", identifier, "channel", msg.Channel)
		res.RoutedTo = RoutedRateLimited
		return res, nil
	}

	ts := msg.TimestampMs
	if ts <= 0 {
		ts = g.now().UnixMilli()
	}

	if msg.Action == nil {
		key := dedupe.DedupKey(identifier, text, ts, g.cfg.Gateway.DedupWindowMs)
		won, lockErr := g.deps.Locker.Acquire(ctx, key, g.cfg.Gateway.DedupTTL())
		switch {
		case lockErr != nil:
			// Dedup store down: process rather than lose the message.
			slog.Warn("dedup check failed", "identifier", identifier, "error", lockErr)
		case !won:
			slog.Debug("duplicate message dropped", "identifier", identifier, "channel", msg.Channel)
			res.RoutedTo = RoutedDropped
			res.Duplicate = true
			return res, nil
		default:
			// A message that was never delivered must not block its redelivery.
			defer func() {
				if err == nil {
					return
				}
				if relErr := g.deps.Locker.Release(context.WithoutCancel(ctx), key); relErr != nil {
					slog.Warn("dedup release failed", "identifier", identifier, "error", relErr)
				}
			}()
		}
	}

	res.Path = protocol.PathNew
	if g.deps.Flags != nil && !g.deps.Flags.ShouldUseNewPath(identifier, msg.Channel) {
		res.Path = protocol.PathLegacy
	}

	platform := msg.Platform
	if platform == "" {
		platform = msg.Channel
	}
	if _, err := g.deps.Sessions.GetOrCreate(ctx, identifier); err != nil {
		return res, fmt.Errorf("bootstrap session: %w", err)
	}
	if err := g.deps.Sessions.UpdateMetadata(ctx, identifier, msg.Channel, platform); err != nil {
		return res, fmt.Errorf("update session metadata: %w", err)
	}

	meta := make(map[string]string, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		meta[k] = v
	}
	meta[router.MetaPath] = res.Path

	chatID := msg.ChatID
	if chatID == "" {
		chatID = msg.SenderID
	}
	ev := bus.MessageEvent{
		MessageID:   uuid.NewString(),
		Identifier:  identifier,
		RawText:     text,
		Channel:     msg.Channel,
		ChatID:      chatID,
		Platform:    platform,
		TimestampMs: ts,
		Metadata:    meta,
		Action:      msg.Action,
	}
	res.MessageID = ev.MessageID
	span.SetAttributes(tracing.String("message_id", ev.MessageID))

	if g.cfg.IsSyncChannel(msg.Channel) {
		resp, rendered, err := g.deps.Router.Respond(ctx, ev)
		if err != nil {
			return res, fmt.Errorf("respond: %w", err)
		}
		res.RoutedTo = RoutedSync
		res.Reply = &rendered
		res.Response = resp
		g.announce(ev, res.Path, resp)
		return res, nil
	}

	if err := bus.PublishWithRetry(ctx, g.deps.Bus, bus.TopicInbound, ev, g.retry); err != nil {
		slog.Error("inbound publish failed",
			"message_id", ev.MessageID, "identifier", identifier, "channel", msg.Channel, "alert", true, "error", err)
		return res, err
	}
	res.RoutedTo = RoutedBus
	slog.Debug("inbound published", "message_id", ev.MessageID, "identifier", identifier, "path", res.Path)
	return res, nil
}

// HandleInbound adapts Handle to bus.InboundHandler for async adapters.
// Duplicates and rate-limited messages are not errors.
func (g *Gateway) HandleInbound(ctx context.Context, msg bus.InboundMessage) error {
	_, err := g.Handle(ctx, msg)
	return err
}

// HandleSync adapts Handle to channels.SyncHandler. A dropped duplicate
// yields an empty message.
func (g *Gateway) HandleSync(ctx context.Context, msg bus.InboundMessage) (channels.RenderedMessage, error) {
	res, err := g.Handle(ctx, msg)
	if err != nil {
		return channels.RenderedMessage{}, err
	}
	switch res.RoutedTo {
	case RoutedRateLimited:
		return channels.RenderedMessage{}, channels.ErrRateLimited
	case RoutedSync:
		return *res.Reply, nil
	}
	return channels.RenderedMessage{Channel: msg.Channel}, nil
}

// Normalize returns the canonical identifier for sender on channel.
func (g *Gateway) Normalize(channel, sender string) string {
	return sessions.NormalizeIdentifier(channel, sender, g.cfg.IsPhoneChannel(channel), g.cfg.Gateway.DefaultCountryCode)
}

func (g *Gateway) clip(text string) string {
	max := g.cfg.Gateway.MaxMessageChars
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}

func (g *Gateway) announce(ev bus.MessageEvent, path string, resp *router.Response) {
	if g.deps.Events == nil || resp == nil {
		return
	}
	g.deps.Events.Broadcast(bus.Event{Name: protocol.EventRouteDecided, Payload: RouteDecided(ev, path, resp)})
}

// RouteDecided builds the route.decided event payload.
func RouteDecided(ev bus.MessageEvent, path string, resp *router.Response) map[string]interface{} {
	payload := map[string]interface{}{
		"message_id": ev.MessageID,
		"identifier": ev.Identifier,
		"channel":    ev.Channel,
		"path":       path,
		"handler":    resp.Handler,
		"flow_id":    resp.FlowID,
		"reason":     resp.Reason,
	}
	if resp.Decision != nil {
		payload["intent"] = resp.Decision.TranslatedIntent
		payload["priority_tag"] = resp.Decision.PriorityTag
	}
	return payload
}
