package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

func startServer(t *testing.T, token string) (*harness, string) {
	t.Helper()
	h := newHarness(t, func(c *config.Config) { c.Gateway.Token = token })
	srv := NewServer(h.gw.cfg, h.gw, h.hub)
	srv.SetFlags(h.flags)
	srv.SetChannelManager(channels.NewManager())
	srv.Mount(func(mux *http.ServeMux) {
		mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("pong")) })
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return h, ln.Addr().String()
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// call sends a request and returns its response, skipping pushed events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method, Params: raw}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == protocol.FrameTypeResponse && frame["id"] == id {
			return frame
		}
	}
}

func TestServer_Health(t *testing.T) {
	_, addr := startServer(t, "")
	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, protocol.ProtocolVersion, body.Protocol)
	require.NotNil(t, body.Rollout)
	assert.Equal(t, 100, body.Rollout.Percentage)

	ping, err := http.Get("http://" + addr + "/v1/ping")
	require.NoError(t, err)
	ping.Body.Close()
	assert.Equal(t, http.StatusOK, ping.StatusCode)
}

func TestServer_ChatRoundTrip(t *testing.T) {
	h, addr := startServer(t, "tok")
	conn := dial(t, addr)

	res := call(t, conn, "1", protocol.MethodChatSend, map[string]string{"text": "hi"})
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, protocol.ErrUnauthorized, res["error"].(map[string]interface{})["code"])

	res = call(t, conn, "2", protocol.MethodConnect, map[string]string{"token": "bad"})
	assert.Equal(t, false, res["ok"])

	res = call(t, conn, "3", protocol.MethodConnect, map[string]string{"token": "tok", "user_id": "alice"})
	require.Equal(t, true, res["ok"])
	assert.Equal(t, "web:alice", res["payload"].(map[string]interface{})["identifier"])

	res = call(t, conn, "4", protocol.MethodChatSend, map[string]string{"text": "pizza"})
	require.Equal(t, true, res["ok"], res)
	payload := res["payload"].(map[string]interface{})
	assert.Equal(t, RoutedSync, payload["routed_to"])
	assert.Equal(t, "hello pizza", payload["reply"].(map[string]interface{})["text"])

	res = call(t, conn, "5", protocol.MethodUIAction, map[string]string{"action_id": "order_food", "value": "order_food"})
	require.Equal(t, true, res["ok"], res)
	require.Len(t, h.responder.events, 2)
	last := h.responder.events[1]
	require.NotNil(t, last.Action)
	assert.Equal(t, "order_food", last.Action.ID)
	assert.Equal(t, bus.ActionButton, last.Action.Kind)

	res = call(t, conn, "6", protocol.MethodFlagsGet, nil)
	assert.Equal(t, true, res["ok"])

	res = call(t, conn, "7", "nope", nil)
	assert.Equal(t, protocol.ErrNotFound, res["error"].(map[string]interface{})["code"])
}

func TestServer_ForwardsEvents(t *testing.T) {
	h, addr := startServer(t, "")
	conn := dial(t, addr)
	call(t, conn, "1", protocol.MethodConnect, map[string]string{"user_id": "bob"})

	h.hub.Broadcast(bus.Event{Name: protocol.EventCacheInvalidate})
	h.hub.Broadcast(bus.Event{Name: protocol.EventFlagsChanged, Payload: map[string]int{"percentage": 50}})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame protocol.EventFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, protocol.EventFlagsChanged, frame.Event, "internal cache events are not forwarded")
}
