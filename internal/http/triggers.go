package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/upgrade"
)

type triggerBody struct {
	Triggers []string `json:"triggers"`
	Priority int      `json:"priority"`
	Enabled  *bool    `json:"enabled,omitempty"`
}

func (h *AdminHandler) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		unavailable(w, "trigger store")
		return
	}
	rows, err := h.triggers.ListEnabled(r.Context())
	if err != nil {
		slog.Error("list triggers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list triggers")
		return
	}
	resp := map[string]interface{}{"triggers": rows}
	if h.intents != nil {
		snap := h.intents.Cache().Current()
		resp["cache"] = map[string]interface{}{"loaded_at": snap.LoadedAt, "triggers": snap.Len()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) handleUpsertTrigger(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		unavailable(w, "trigger store")
		return
	}
	flowID := strings.TrimSpace(r.PathValue("flowID"))
	var body triggerBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if flowID == "" || len(body.Triggers) == 0 {
		writeError(w, http.StatusBadRequest, "flow id and triggers are required")
		return
	}

	t := store.FlowTrigger{
		FlowID:   flowID,
		Triggers: upgrade.NormalizeTriggers(body.Triggers),
		Priority: body.Priority,
		Enabled:  body.Enabled == nil || *body.Enabled,
	}
	if err := h.triggers.Upsert(r.Context(), t); err != nil {
		slog.Error("upsert trigger failed", "flow", flowID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save trigger")
		return
	}
	slog.Info("flow trigger saved", "flow", flowID, "triggers", len(t.Triggers), "enabled", t.Enabled)
	h.emitCacheInvalidate(bus.CacheKindFlowTriggers, flowID)
	writeJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) handleRefreshTriggers(w http.ResponseWriter, r *http.Request) {
	if h.intents == nil {
		unavailable(w, "intent router")
		return
	}
	if err := h.intents.Cache().Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}
	snap := h.intents.Cache().Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{"loaded_at": snap.LoadedAt, "triggers": snap.Len()})
}

type routeBody struct {
	Text         string  `json:"text"`
	Intent       string  `json:"intent,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	ActiveFlowID string  `json:"active_flow_id,omitempty"`
	Synthetic    bool    `json:"synthetic,omitempty"`
}

// handleRouteIntent runs the intent chain without touching any session.
func (h *AdminHandler) handleRouteIntent(w http.ResponseWriter, r *http.Request) {
	if h.intents == nil {
		unavailable(w, "intent router")
		return
	}
	var body routeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	d := h.intents.Route(r.Context(), intent.Input{
		Text:         body.Text,
		Intent:       body.Intent,
		Confidence:   body.Confidence,
		ActiveFlowID: body.ActiveFlowID,
		Synthetic:    body.Synthetic,
	})
	writeJSON(w, http.StatusOK, d)
}
