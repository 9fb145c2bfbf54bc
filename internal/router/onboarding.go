package router

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/command"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// User types stored under sessions.KeyUserType.
const (
	UserNew        = "new"
	UserReturning  = "returning"
	UserRegistered = "registered"
)

var priorAuthClaim = regexp.MustCompile(`\b(already\s+(registered|signed\s?up|logged\s?in|have\s+an\s+account)|i\s+have\s+an\s+account|existing\s+(user|customer))\b`)

// onboardingGate starts the onboarding flow for a first-time user. Anything
// that looks like real intent (a command, a transactional request, a claim
// of an existing account) skips onboarding so the user is never blocked.
func (r *Router) onboardingGate(ctx context.Context, t *turn) (*Response, error) {
	if !r.cfg.OnboardingEnabled || r.deps.Flows == nil || t.ev.IsAction() {
		return nil, nil
	}
	data := t.sess.Data
	switch {
	case r.isNativeOnboarding(t.ev.Platform):
		return nil, nil
	case data.Bool(sessions.KeyOnboardingCompleted), data.Bool(sessions.KeyAuthenticated):
		return nil, nil
	case t.hasFlow && (t.active.FlowID == r.cfg.OnboardingFlowID || intent.IsTransactionalFlow(t.active.FlowID)):
		return nil, nil
	}

	text := strings.ToLower(strings.TrimSpace(t.ev.RawText))
	if _, isCmd := command.Match(text); isCmd {
		return nil, nil
	}
	if intent.HasTransactionalSignal(text) || priorAuthClaim.MatchString(text) {
		slog.Debug("onboarding skipped", "identifier", t.ev.Identifier, "reason", "intent_signal")
		return nil, nil
	}

	resp, err := r.startFlow(ctx, t, r.cfg.OnboardingFlowID, HandledOnboarding, "onboarding")
	if err != nil {
		if errors.Is(err, errFlowUnavailable) {
			slog.Warn("onboarding flow unavailable, continuing pipeline", "identifier", t.ev.Identifier, "error", err)
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

// reconcile reloads the session when the durable store holds a newer active
// flow than the cached copy.
func (r *Router) reconcile(ctx context.Context, t *turn) {
	if r.deps.Durable == nil {
		return
	}
	durable, updated, err := r.deps.Durable.DurableFlow(ctx, t.ev.Identifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Debug("durable flow lookup failed", "identifier", t.ev.Identifier, "error", err)
		}
		return
	}
	cached, _ := t.sess.Data.ActiveFlow()
	if durable == cached || !updated.After(t.sess.Updated) {
		return
	}
	fresh, err := r.deps.Durable.Reload(ctx, t.ev.Identifier)
	if err != nil {
		slog.Warn("session reload failed", "identifier", t.ev.Identifier, "error", err)
		return
	}
	slog.Info("session reconciled from durable store",
		"identifier", t.ev.Identifier,
		"cached_flow", cached.FlowID,
		"flow", durable.FlowID)
	t.refresh(fresh)
}

// ensureUserType classifies the user once and caches the result.
func (r *Router) ensureUserType(ctx context.Context, t *turn) {
	if t.sess.Data.String(sessions.KeyUserType) != "" {
		return
	}
	ut := detectUserType(t.sess.Data)
	if err := r.deps.Sessions.Update(ctx, t.ev.Identifier, map[string]any{sessions.KeyUserType: ut}); err != nil {
		slog.Warn("persist user type failed", "identifier", t.ev.Identifier, "error", err)
	}
	t.sess.Data[sessions.KeyUserType] = ut
}

func detectUserType(d sessions.Data) string {
	switch {
	case d.Int(sessions.KeyOrderCount) > 0 || d.String(sessions.KeyLastOrderID) != "":
		return UserReturning
	case d.Bool(sessions.KeyAuthenticated) || d.String(sessions.KeyUserID) != "":
		return UserRegistered
	default:
		return UserNew
	}
}
