// Package http serves the operator API: trigger rules, rollout flags,
// sessions and a dry-run of the intent chain.
package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/featureflag"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

// AdminHandler serves /v1/* operator endpoints. Any dependency may be nil;
// its routes then answer 503.
type AdminHandler struct {
	token    string
	events   bus.EventPublisher
	triggers store.FlowTriggerStore
	intents  *intent.Router
	sessions store.SessionStore
	flags    *featureflag.Gate
}

// AdminDeps are the stores and components the admin API reads and edits.
type AdminDeps struct {
	Events   bus.EventPublisher
	Triggers store.FlowTriggerStore
	Intents  *intent.Router
	Sessions store.SessionStore
	Flags    *featureflag.Gate
}

func NewAdminHandler(token string, deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		token:    token,
		events:   deps.Events,
		triggers: deps.Triggers,
		intents:  deps.Intents,
		sessions: deps.Sessions,
		flags:    deps.Flags,
	}
}

// RegisterRoutes registers all admin routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/triggers", h.auth(h.handleListTriggers))
	mux.HandleFunc("PUT /v1/triggers/{flowID}", h.auth(h.handleUpsertTrigger))
	mux.HandleFunc("POST /v1/triggers/refresh", h.auth(h.handleRefreshTriggers))

	mux.HandleFunc("GET /v1/flags", h.auth(h.handleGetFlags))
	mux.HandleFunc("PUT /v1/flags", h.auth(h.handleUpdateFlags))

	mux.HandleFunc("GET /v1/sessions", h.auth(h.handleListSessions))
	mux.HandleFunc("GET /v1/sessions/{id}", h.auth(h.handleGetSession))
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.auth(h.handleDeleteSession))

	mux.HandleFunc("POST /v1/intent/route", h.auth(h.handleRouteIntent))
}

func (h *AdminHandler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := extractBearerToken(r)
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

func (h *AdminHandler) emitCacheInvalidate(kind, key string) {
	if h.events == nil {
		return
	}
	h.events.Broadcast(bus.Event{
		Name:    protocol.EventCacheInvalidate,
		Payload: bus.CacheInvalidatePayload{Kind: kind, Key: key},
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not configured")
}
