package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 64 * 1024
	sendBufferSize = 64
)

// Client is one web socket connection. Each connected client is a sender
// on the web channel once it has called connect.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	userID string
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, s *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Run pumps frames until the connection drops or ctx is done.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.writePump(ctx)
	c.readPump(ctx)
}

// Close stops the write pump and closes the connection. Idempotent.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// SendEvent queues an event frame. A slow client loses events rather than
// blocking the broadcaster.
func (c *Client) SendEvent(ev protocol.EventFrame) {
	c.enqueue(ev)
}

func (c *Client) enqueue(frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("marshal frame failed", "client", c.id, "error", err)
		return
	}
	select {
	case <-c.closed:
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping frame", "client", c.id)
	}
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		var req protocol.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil || req.Type != protocol.FrameTypeRequest {
			c.enqueue(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "malformed request frame"))
			continue
		}
		c.enqueue(c.handleRequest(ctx, req))
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("websocket write failed", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type connectParams struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

type chatParams struct {
	Text     string            `json:"text"`
	ActionID string            `json:"action_id,omitempty"`
	Value    string            `json:"value,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c *Client) handleRequest(ctx context.Context, req protocol.RequestFrame) *protocol.ResponseFrame {
	switch req.Method {
	case protocol.MethodConnect:
		return c.handleConnect(req)
	case protocol.MethodHealth:
		return protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "ok", "protocol": protocol.ProtocolVersion})
	case protocol.MethodChatSend, protocol.MethodUIAction:
		return c.handleChat(ctx, req)
	case protocol.MethodChannelsStatus:
		if c.server.channels == nil {
			return protocol.NewOKResponse(req.ID, map[string]interface{}{})
		}
		return protocol.NewOKResponse(req.ID, c.server.channels.GetStatus())
	case protocol.MethodFlagsGet:
		if c.server.flags == nil {
			return protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, "feature flags not configured")
		}
		return protocol.NewOKResponse(req.ID, c.server.flags.Snapshot())
	}
	return protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "unknown method "+req.Method)
}

func (c *Client) handleConnect(req protocol.RequestFrame) *protocol.ResponseFrame {
	var p connectParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid connect params")
		}
	}
	if token := c.server.cfg.Gateway.Token; token != "" &&
		subtle.ConstantTimeCompare([]byte(p.Token), []byte(token)) != 1 {
		slog.Warn("security.ws_auth_failed", "client", c.id)
		return protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid token")
	}
	userID := p.UserID
	if userID == "" {
		userID = c.id
	}
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	return protocol.NewOKResponse(req.ID, map[string]interface{}{
		"protocol":   protocol.ProtocolVersion,
		"client_id":  c.id,
		"identifier": c.server.gw.Normalize(channels.ChannelWeb, userID),
	})
}

func (c *Client) handleChat(ctx context.Context, req protocol.RequestFrame) *protocol.ResponseFrame {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		return protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "connect first")
	}

	var p chatParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params")
	}
	msg := bus.InboundMessage{
		Channel:  channels.ChannelWeb,
		SenderID: userID,
		ChatID:   c.id,
		Content:  p.Text,
		Platform: channels.ChannelWeb,
		Metadata: p.Metadata,
	}
	if req.Method == protocol.MethodUIAction {
		if p.ActionID == "" {
			return protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "action_id is required")
		}
		kind := p.Kind
		if kind == "" {
			kind = bus.ActionButton
		}
		msg.Action = &bus.UIAction{ID: p.ActionID, Value: p.Value, Kind: kind}
	}

	res, err := c.server.gw.Handle(ctx, msg)
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "text is required")
	case err != nil:
		slog.Error("web message failed", "client", c.id, "error", err)
		return protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "message could not be processed")
	case res.RoutedTo == RoutedRateLimited:
		return protocol.NewErrorResponse(req.ID, protocol.ErrRateLimited, "too many messages")
	}
	return protocol.NewOKResponse(req.ID, res)
}
