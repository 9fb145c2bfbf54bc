package http

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

func (h *AdminHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, "session store")
		return
	}
	list, err := h.sessions.List(r.Context())
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Updated.After(list[j].Updated) })
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list, "total": len(list)})
}

func (h *AdminHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, "session store")
		return
	}
	sess, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("get session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession resets a conversation; the next message starts fresh.
func (h *AdminHandler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, "session store")
		return
	}
	id := r.PathValue("id")
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		slog.Error("delete session failed", "identifier", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	slog.Info("session deleted by operator", "identifier", id)
	h.emitCacheInvalidate(bus.CacheKindSessions, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
