package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/featureflag"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

const shutdownGrace = 5 * time.Second

// Server puts the web chat socket, health, and mounted channel webhooks
// behind one listener.
type Server struct {
	cfg      *config.Config
	gw       *Gateway
	events   bus.EventPublisher
	channels *channels.Manager
	flags    *featureflag.Gate
	mounts   []func(*http.ServeMux)
	origins  map[string]bool // nil allows any origin

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	buildOnce sync.Once
	handler   http.Handler
}

func NewServer(cfg *config.Config, gw *Gateway, events bus.EventPublisher) *Server {
	s := &Server{
		cfg:     cfg,
		gw:      gw,
		events:  events,
		clients: make(map[string]*Client),
	}
	if len(cfg.Gateway.AllowedOrigins) > 0 {
		s.origins = make(map[string]bool, len(cfg.Gateway.AllowedOrigins))
		for _, o := range cfg.Gateway.AllowedOrigins {
			s.origins[o] = true
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// SetChannelManager enables channels.status and per-channel health.
func (s *Server) SetChannelManager(m *channels.Manager) { s.channels = m }

// SetFlags enables flags.get and the rollout section of /health.
func (s *Server) SetFlags(g *featureflag.Gate) { s.flags = g }

// Mount adds routes to the mux. Call before Start.
func (s *Server) Mount(register func(*http.ServeMux)) { s.mounts = append(s.mounts, register) }

// originAllowed admits non-browser clients (no Origin header) always.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if s.origins == nil || origin == "" || s.origins["*"] || s.origins[origin] {
		return true
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// Handler returns the routed handler, building it on first use.
func (s *Server) Handler() http.Handler {
	s.buildOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /ws", s.handleWebSocket)
		mux.HandleFunc("GET /health", s.handleHealth)
		for _, register := range s.mounts {
			register(mux)
		}
		s.handler = mux
	})
	return s.handler
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Gateway.Host, fmt.Sprint(s.cfg.Gateway.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then tells clients and drains.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.broadcast(*protocol.NewEvent(protocol.EventShutdown, nil))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway shutdown incomplete", "error", err)
		}
	}()

	err := srv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	<-stopped
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client := NewClient(conn, s)
	s.attach(client)
	defer s.detach(client)
	client.Run(r.Context())
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Protocol int                    `json:"protocol"`
	Clients  int                    `json:"clients"`
	Channels map[string]interface{} `json:"channels,omitempty"`
	Rollout  *featureflag.Config    `json:"rollout,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	resp := healthResponse{Status: "ok", Protocol: protocol.ProtocolVersion, Clients: len(s.clients)}
	s.mu.RUnlock()
	if s.channels != nil {
		resp.Channels = s.channels.GetStatus()
	}
	if s.flags != nil {
		snap := s.flags.Snapshot()
		resp.Rollout = &snap
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) broadcast(ev protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.SendEvent(ev)
	}
}

// attach registers c and relays hub events to it. cache.* events are
// internal and stay on the hub.
func (s *Server) attach(c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()

	if s.events != nil {
		s.events.Subscribe(c.id, func(ev bus.Event) {
			if !strings.HasPrefix(ev.Name, "cache.") {
				c.SendEvent(*protocol.NewEvent(ev.Name, ev.Payload))
			}
		})
	}
	slog.Info("web client connected", "id", c.id, "clients", n)
}

func (s *Server) detach(c *Client) {
	if s.events != nil {
		s.events.Unsubscribe(c.id)
	}
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.Close()
	slog.Info("web client disconnected", "id", c.id)
}
