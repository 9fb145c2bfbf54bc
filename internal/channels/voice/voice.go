// Package voice bridges a telephony speech-to-text provider. Final
// transcripts arrive either as one webhook call per utterance or over a
// streaming web socket per call; replies go back as text for synthesis.
package voice

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/gateway"
)

const (
	secretHeader    = "X-Voice-Secret"
	maxRequestBytes = 64 * 1024
	replyTimeout    = 10 * time.Second

	defaultSourceRPM = 30
)

// Channel serves voice transcripts synchronously.
type Channel struct {
	*channels.BaseChannel
	cfg     config.VoiceConfig
	handle  channels.SyncHandler
	limiter *gateway.RateLimiter

	mu      sync.Mutex
	streams map[string]*websocket.Conn // call id → stream
}

// New creates the voice channel. handle answers every final transcript.
func New(cfg config.VoiceConfig, handle channels.SyncHandler) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel(channels.ChannelVoice, nil, nil),
		cfg:         cfg,
		handle:      handle,
		limiter:     newSourceLimiter(cfg.RateLimitRPM),
		streams:     make(map[string]*websocket.Conn),
	}
}

// newSourceLimiter caps webhook calls per remote address; a full minute's
// allowance may arrive at once.
func newSourceLimiter(rpm int) *gateway.RateLimiter {
	if rpm <= 0 {
		rpm = defaultSourceRPM
	}
	return gateway.NewRateLimiter(rpm, rpm)
}

// Routes mounts the webhook and stream endpoints.
func (c *Channel) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/voice/transcript", c.handleTranscript)
	mux.HandleFunc("GET /v1/voice/stream", c.handleStream)
}

func (c *Channel) Start(_ context.Context) error {
	c.SetRunning(true)
	slog.Info("voice channel ready", "streaming", true, "secured", c.cfg.Secret != "")
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	for id, conn := range c.streams {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(c.streams, id)
	}
	c.mu.Unlock()
	c.SetRunning(false)
	return nil
}

// TranscriptRequest is one final utterance.
type TranscriptRequest struct {
	CallID      string            `json:"call_id"`
	From        string            `json:"from"`
	Text        string            `json:"text"`
	Language    string            `json:"language,omitempty"`
	TimestampMs int64             `json:"timestamp_ms,omitempty"`
	ActionID    string            `json:"action_id,omitempty"` // DTMF or keyword menu selection
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TranscriptReply is the text to speak back.
type TranscriptReply struct {
	CallID string `json:"call_id,omitempty"`
	Text   string `json:"text"`
}

type streamFrame struct {
	Type  string `json:"type"` // in: "transcript"; out: "reply", "error"
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Error string `json:"error,omitempty"`
}

func (c *Channel) authorized(r *http.Request) bool {
	if c.cfg.Secret == "" {
		return true
	}
	got := r.Header.Get(secretHeader)
	if got == "" {
		got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.cfg.Secret)) == 1
}

func sourceKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (c *Channel) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		slog.Warn("security.voice_auth_failed", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !c.limiter.Allow(sourceKey(r)) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	var req TranscriptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.From == "" || (strings.TrimSpace(req.Text) == "" && req.ActionID == "") {
		http.Error(w, "from and text are required", http.StatusBadRequest)
		return
	}

	text, err := c.answer(r.Context(), req)
	switch {
	case errors.Is(err, channels.ErrRateLimited):
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	case err != nil:
		slog.Error("voice transcript failed", "call_id", req.CallID, "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranscriptReply{CallID: req.CallID, Text: text})
}

// handleStream serves one call: transcript frames in, reply frames out.
func (c *Channel) handleStream(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		slog.Warn("security.voice_auth_failed", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	callID, from := q.Get("call_id"), q.Get("from")
	if callID == "" || from == "" {
		http.Error(w, "call_id and from are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("voice stream accept failed", "call_id", callID, "error", err)
		return
	}
	conn.SetReadLimit(maxRequestBytes)

	c.mu.Lock()
	if old, ok := c.streams[callID]; ok {
		old.Close(websocket.StatusPolicyViolation, "replaced by a newer stream")
	}
	c.streams[callID] = conn
	c.mu.Unlock()
	slog.Info("voice stream opened", "call_id", callID)

	defer func() {
		c.mu.Lock()
		if c.streams[callID] == conn {
			delete(c.streams, callID)
		}
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		slog.Info("voice stream closed", "call_id", callID)
	}()

	ctx := r.Context()
	for {
		var f streamFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("voice stream read failed", "call_id", callID, "error", err)
			}
			return
		}
		if f.Type != "transcript" || !f.Final || strings.TrimSpace(f.Text) == "" {
			continue
		}

		text, err := c.answer(ctx, TranscriptRequest{CallID: callID, From: from, Text: f.Text, Language: q.Get("language")})
		out := streamFrame{Type: "reply", Text: text}
		if err != nil {
			slog.Warn("voice stream utterance failed", "call_id", callID, "error", err)
			out = streamFrame{Type: "error", Error: err.Error()}
		}
		if err := c.write(ctx, conn, out); err != nil {
			return
		}
	}
}

func (c *Channel) answer(ctx context.Context, req TranscriptRequest) (string, error) {
	meta := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.CallID != "" {
		meta["call_id"] = req.CallID
	}
	if req.Language != "" {
		meta["language"] = req.Language
	}
	msg := bus.InboundMessage{
		Channel:     channels.ChannelVoice,
		SenderID:    req.From,
		ChatID:      req.CallID,
		Content:     req.Text,
		Platform:    channels.ChannelVoice,
		TimestampMs: req.TimestampMs,
		Metadata:    meta,
	}
	if req.ActionID != "" {
		msg.Action = &bus.UIAction{ID: req.ActionID, Kind: bus.ActionButton}
	}
	if msg.TimestampMs == 0 {
		msg.TimestampMs = time.Now().UnixMilli()
	}
	rendered, err := c.handle(ctx, msg)
	if err != nil {
		return "", err
	}
	return rendered.Text, nil
}

func (c *Channel) write(ctx context.Context, conn *websocket.Conn, f streamFrame) error {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

// SendText pushes text to the open stream of a call (chatID is the call id).
func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	c.mu.Lock()
	conn, ok := c.streams[chatID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("voice: no open stream for call %s", chatID)
	}
	return c.write(ctx, conn, streamFrame{Type: "reply", Text: text})
}

func (c *Channel) SendButtons(context.Context, string, string, []channels.Button) error {
	return channels.ErrUnsupported
}

func (c *Channel) SendList(context.Context, string, string, string, []channels.ListItem) error {
	return channels.ErrUnsupported
}

func (c *Channel) SendImage(context.Context, string, string, string) error {
	return channels.ErrUnsupported
}

func (c *Channel) SendLocationRequest(context.Context, string, string, channels.Location) error {
	return channels.ErrUnsupported
}
