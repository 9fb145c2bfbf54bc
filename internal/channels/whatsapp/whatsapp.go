// Package whatsapp talks to a WhatsApp bridge (Cloud API relay or
// whatsapp-web.js) over a web socket of JSON frames.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

const (
	dialTimeout = 10 * time.Second
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
)

// Channel keeps one bridge connection open, redialing with backoff.
type Channel struct {
	*channels.BaseChannel
	cfg config.WhatsAppConfig

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.WhatsAppConfig, handler bus.InboundHandler) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp: bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(channels.ChannelWhatsApp, handler, cfg.AllowFrom),
		cfg:         cfg,
	}, nil
}

// Start returns immediately; an unreachable bridge is retried in the
// background rather than failing startup.
func (c *Channel) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.SetRunning(true)
	go c.run(ctx)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	c.setConn(nil)
	<-c.done
	slog.Info("whatsapp channel stopped")
	return nil
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn != conn {
		c.conn.Close()
	}
	c.conn = conn
}

// run dials, reads until the connection breaks, and redials.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	backoff := minBackoff
	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			slog.Warn("whatsapp bridge unreachable", "url", c.cfg.BridgeURL, "retry_in", backoff, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		c.setConn(conn)
		slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL)

		c.read(ctx, conn)
		c.mu.Lock()
		if c.conn == conn {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = dialTimeout
	conn, _, err := d.DialContext(ctx, c.cfg.BridgeURL, nil)
	return conn, err
}

func (c *Channel) read(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("whatsapp bridge read failed, reconnecting", "error", err)
			}
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			slog.Warn("whatsapp bridge sent invalid frame", "error", err)
			continue
		}
		c.handleFrame(ctx, f)
	}
}

// inboundFrame is what the bridge sends for user activity.
//
//	{"type":"message","from":"919876543210@c.us","content":"hi","id":"wamid..."}
//	{"type":"interactive","from":"...","reply_id":"order_food","reply_kind":"button"}
//	{"type":"location","from":"...","latitude":19.07,"longitude":72.87}
type inboundFrame struct {
	Type      string  `json:"type"`
	ID        string  `json:"id,omitempty"`
	From      string  `json:"from"`
	Chat      string  `json:"chat,omitempty"`
	FromName  string  `json:"from_name,omitempty"`
	Content   string  `json:"content,omitempty"`
	ReplyID   string  `json:"reply_id,omitempty"`
	ReplyKind string  `json:"reply_kind,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

func (c *Channel) handleFrame(ctx context.Context, f inboundFrame) {
	if f.From == "" {
		return
	}
	chatID := f.Chat
	if chatID == "" {
		chatID = f.From
	}
	if strings.HasSuffix(chatID, "@g.us") {
		slog.Debug("whatsapp group message ignored", "chat_id", chatID)
		return
	}

	content, action, metadata := frameMessage(f)
	if content == "" && action == nil {
		return
	}

	slog.Debug("whatsapp message received",
		"sender_id", f.From,
		"chat_id", chatID,
		"type", f.Type,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(ctx, f.From, chatID, content, action, metadata)
}

// frameMessage maps a bridge frame to gateway content, action and metadata.
func frameMessage(f inboundFrame) (string, *bus.UIAction, map[string]string) {
	metadata := map[string]string{}
	if f.ID != "" {
		metadata["message_id"] = f.ID
	}
	if f.FromName != "" {
		metadata["user_name"] = f.FromName
	}

	switch f.Type {
	case "message":
		return f.Content, nil, metadata
	case "interactive":
		if f.ReplyID == "" {
			return "", nil, metadata
		}
		kind := bus.ActionButton
		if f.ReplyKind == bus.ActionList {
			kind = bus.ActionList
		}
		return f.Content, &bus.UIAction{ID: f.ReplyID, Value: f.ReplyID, Kind: kind}, metadata
	case "location":
		lat := strconv.FormatFloat(f.Latitude, 'f', 6, 64)
		lng := strconv.FormatFloat(f.Longitude, 'f', 6, 64)
		metadata["latitude"], metadata["longitude"] = lat, lng
		return lat + "," + lng, nil, metadata
	}
	return "", nil, metadata
}
