package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/featureflag"
)

func (h *AdminHandler) handleGetFlags(w http.ResponseWriter, r *http.Request) {
	if h.flags == nil {
		unavailable(w, "feature flags")
		return
	}
	writeJSON(w, http.StatusOK, h.flags.Snapshot())
}

// handleUpdateFlags replaces the rollout snapshot in memory. A watched flag
// file overrides it on its next change.
func (h *AdminHandler) handleUpdateFlags(w http.ResponseWriter, r *http.Request) {
	if h.flags == nil {
		unavailable(w, "feature flags")
		return
	}
	cfg := h.flags.Snapshot()
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if cfg.Percentage < 0 || cfg.Percentage > 100 {
		writeError(w, http.StatusBadRequest, "percentage must be within 0..100")
		return
	}
	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
	switch cfg.Strategy {
	case "", featureflag.StrategyHash, featureflag.StrategyRandom, featureflag.StrategyChannel:
	default:
		writeError(w, http.StatusBadRequest, "unknown strategy "+cfg.Strategy)
		return
	}
	h.flags.Update(cfg)
	slog.Info("feature flags updated by operator", "strategy", cfg.Strategy, "percentage", cfg.Percentage, "kill_switch", cfg.KillSwitch)
	writeJSON(w, http.StatusOK, h.flags.Snapshot())
}
