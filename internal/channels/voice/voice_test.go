package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

type recorder struct {
	mu   sync.Mutex
	msgs []bus.InboundMessage
	err  error
}

func (r *recorder) handle(_ context.Context, msg bus.InboundMessage) (channels.RenderedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	if r.err != nil {
		return channels.RenderedMessage{}, r.err
	}
	return channels.RenderedMessage{
		Channel:         channels.ChannelVoice,
		OutboundMessage: channels.OutboundMessage{Text: "you said " + msg.Content},
	}, nil
}

func newServer(t *testing.T, cfg config.VoiceConfig, rec *recorder) (*Channel, *httptest.Server) {
	t.Helper()
	ch := New(cfg, rec.handle)
	mux := http.NewServeMux()
	ch.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return ch, srv
}

func postTranscript(t *testing.T, url, secret string, req TranscriptRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq, err := http.NewRequest(http.MethodPost, url+"/v1/voice/transcript", bytes.NewReader(body))
	require.NoError(t, err)
	if secret != "" {
		httpReq.Header.Set(secretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTranscriptWebhook(t *testing.T) {
	rec := &recorder{}
	_, srv := newServer(t, config.VoiceConfig{Enabled: true, Secret: "s3cret"}, rec)

	resp := postTranscript(t, srv.URL, "s3cret", TranscriptRequest{CallID: "call-1", From: "+919876543210", Text: "order pizza", Language: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply TranscriptReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "you said order pizza", reply.Text)
	assert.Equal(t, "call-1", reply.CallID)

	require.Len(t, rec.msgs, 1)
	got := rec.msgs[0]
	assert.Equal(t, channels.ChannelVoice, got.Channel)
	assert.Equal(t, "+919876543210", got.SenderID)
	assert.Equal(t, "call-1", got.ChatID)
	assert.Equal(t, "hi", got.Metadata["language"])
	assert.NotZero(t, got.TimestampMs)
}

func TestTranscriptWebhook_Rejections(t *testing.T) {
	rec := &recorder{}
	_, srv := newServer(t, config.VoiceConfig{Enabled: true, Secret: "s3cret", RateLimitRPM: 2}, rec)

	resp := postTranscript(t, srv.URL, "wrong", TranscriptRequest{From: "+1", Text: "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postTranscript(t, srv.URL, "s3cret", TranscriptRequest{From: "+1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Third authorized request from the same source exceeds 2/min.
	resp = postTranscript(t, srv.URL, "s3cret", TranscriptRequest{From: "+1", Text: "hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postTranscript(t, srv.URL, "s3cret", TranscriptRequest{From: "+1", Text: "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestTranscriptWebhook_GatewayRateLimit(t *testing.T) {
	rec := &recorder{err: channels.ErrRateLimited}
	_, srv := newServer(t, config.VoiceConfig{Enabled: true}, rec)

	resp := postTranscript(t, srv.URL, "", TranscriptRequest{From: "+1", Text: "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStream(t *testing.T) {
	rec := &recorder{}
	ch, srv := newServer(t, config.VoiceConfig{Enabled: true}, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/voice/stream?call_id=c9&from=%2B14155550100"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Partial transcripts are ignored; only the final one is answered.
	require.NoError(t, wsjson.Write(ctx, conn, streamFrame{Type: "transcript", Text: "men"}))
	require.NoError(t, wsjson.Write(ctx, conn, streamFrame{Type: "transcript", Text: "menu", Final: true}))

	var f streamFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	assert.Equal(t, "reply", f.Type)
	assert.Equal(t, "you said menu", f.Text)

	require.NoError(t, ch.SendText(ctx, "c9", "your order is on the way"))
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	assert.Equal(t, "your order is on the way", f.Text)

	rec.mu.Lock()
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "c9", rec.msgs[0].ChatID)
	rec.mu.Unlock()

	assert.Error(t, ch.SendText(ctx, "unknown-call", "hello"))
	assert.ErrorIs(t, ch.SendButtons(ctx, "c9", "x", nil), channels.ErrUnsupported)
}
