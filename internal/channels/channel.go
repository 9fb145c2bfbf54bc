// Package channels provides the channel abstraction layer for multi-platform messaging.
// Channels connect external platforms (Telegram, Discord, WhatsApp, voice) to the
// gateway and deliver rendered replies back through the Sender methods.
package channels

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
)

var (
	// ErrUnsupported is returned by a Sender method the channel cannot carry.
	ErrUnsupported = errors.New("not supported by channel")
	// ErrRateLimited is returned by a SyncHandler when the sender is over its inbound limit.
	ErrRateLimited = errors.New("inbound rate limit exceeded")
)

// Sender is the per-channel delivery surface. Callers go through Deliver,
// which only invokes methods the channel's capabilities allow.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
	SendButtons(ctx context.Context, chatID, text string, buttons []Button) error
	SendList(ctx context.Context, chatID, text, buttonText string, items []ListItem) error
	SendImage(ctx context.Context, chatID, url, caption string) error
	SendLocationRequest(ctx context.Context, chatID, text string, loc Location) error
}

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram", "discord").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool

	Sender
}

// SyncHandler answers an inbound message in the same call (voice, web).
type SyncHandler func(ctx context.Context, msg bus.InboundMessage) (RenderedMessage, error)

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	handler   bus.InboundHandler
	running   bool
	allowList []string
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, handler bus.InboundHandler, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		handler:   handler,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == trimmed || idPart == trimmed || (userPart != "" && userPart == trimmed) {
			return true
		}
	}
	return false
}

// HandleMessage forwards a received message to the gateway.
// action is nil for free text.
func (c *BaseChannel) HandleMessage(ctx context.Context, senderID, chatID, content string, action *bus.UIAction, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}
	if c.handler == nil {
		return
	}

	msg := bus.InboundMessage{
		Channel:     c.name,
		SenderID:    senderID,
		ChatID:      chatID,
		Content:     content,
		Platform:    c.name,
		TimestampMs: time.Now().UnixMilli(),
		Action:      action,
		Metadata:    metadata,
	}
	if err := c.handler(ctx, msg); err != nil {
		// The platform has already been acknowledged; nothing to return to.
		slog.Warn("inbound handling failed", "channel", c.name, "error", err)
	}
}

// Deliver sends a rendered message through s. The rendered message only
// carries fields the channel supports, so at most one structured call is
// made for the body, followed by the image if any.
func Deliver(ctx context.Context, s Sender, chatID string, m RenderedMessage) error {
	var err error
	switch {
	case m.Location != nil:
		err = s.SendLocationRequest(ctx, chatID, m.Text, *m.Location)
	case len(m.ListItems) > 0:
		err = s.SendList(ctx, chatID, m.Text, m.ListButtonText, m.ListItems)
	case len(m.Buttons) > 0:
		err = s.SendButtons(ctx, chatID, m.Text, m.Buttons)
	case m.Text != "":
		err = s.SendText(ctx, chatID, m.Text)
	}
	if err != nil {
		return err
	}
	if m.ImageURL != "" {
		return s.SendImage(ctx, chatID, m.ImageURL, m.ImageCaption)
	}
	return nil
}
