package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/command"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/tracing"
)

// errFlowUnavailable wraps flow engine failures; callers fall back to the
// agent. Session store failures are returned unwrapped.
var errFlowUnavailable = errors.New("flow engine unavailable")

// flowKeys never come from flow metadata; the router owns them.
var flowKeys = map[string]bool{
	sessions.KeyActiveFlowID: true,
	sessions.KeyFlowRunID:    true,
	sessions.KeyFlowContext:  true,
}

// continueFlow handles a message while a flow is active: greeting resets,
// flow switches, same-flow restarts, and plain continuation.
func (r *Router) continueFlow(ctx context.Context, t *turn) (*Response, error) {
	d := *t.decision
	state := t.active.CurrentState
	critical := IsCriticalState(state)

	if d.TranslatedIntent == intent.IntentGreeting && !critical && IsBrowsableState(state) {
		if err := r.deps.Sessions.Update(ctx, t.ev.Identifier, sessions.ClearFlowPatch()); err != nil {
			return nil, fmt.Errorf("clear flow: %w", err)
		}
		msg := command.MenuMessage(t.lang)
		msg.Text = localize(t.lang, msgGreetingFresh)
		return r.respond(t, HandledGreeting, "", "greeting_in_browsable_state", msg), nil
	}

	target := flowForIntent[d.TranslatedIntent]
	if target == "" && d.PriorityTag != intent.TagFallback {
		target = d.FlowID
	}
	if d.TranslatedIntent == intent.IntentGreeting {
		// Greetings outside browsable states never leave the flow.
		target = ""
	}

	switch {
	case target != "" && target != t.active.FlowID:
		threshold := r.cfg.FlowSwitchThreshold
		if lowCommitmentFlows[t.active.FlowID] {
			threshold = r.cfg.ChitchatSwitchThreshold
		}
		if critical {
			slog.Debug("flow switch blocked in critical state",
				"identifier", t.ev.Identifier, "flow", t.active.FlowID, "state", state, "target", target)
			break
		}
		if d.Confidence < threshold {
			break
		}
		if err := r.deps.Sessions.Update(ctx, t.ev.Identifier, sessions.SuspendPatch(t.active)); err != nil {
			return nil, fmt.Errorf("suspend flow: %w", err)
		}
		slog.Info("flow switch",
			"identifier", t.ev.Identifier, "from", t.active.FlowID, "flow", target, "confidence", d.Confidence)
		t.hasFlow = false
		return r.startOrFallback(ctx, t, target, HandledFlowSwitch, "switch:"+d.Reason)

	case target == t.active.FlowID && isNewFullRequest(t.active.FlowID, state, t.ev.RawText):
		if err := r.deps.Sessions.Update(ctx, t.ev.Identifier, sessions.ClearFlowPatch()); err != nil {
			return nil, fmt.Errorf("clear flow: %w", err)
		}
		t.hasFlow = false
		return r.startOrFallback(ctx, t, target, HandledFlowRestart, "restart:"+d.Reason)
	}

	if r.deps.Flows == nil {
		return r.agentReply(ctx, t, HandledAgent, "no_flow_engine"), nil
	}
	ctx, span := tracing.StartSpan(ctx, "router.flow.continue", tracing.String("flow", t.active.FlowID))
	res, err := call(ctx, r.cfg.CollaboratorTimeout, func(ctx context.Context) (*FlowResult, error) {
		return r.deps.Flows.ProcessMessage(ctx, t.ev.Identifier, t.ev.RawText, transitionEvent(t.ev.RawText))
	})
	tracing.End(span, err)
	if err != nil {
		slog.Warn("flow continue failed, using agent", "identifier", t.ev.Identifier, "flow", t.active.FlowID, "error", err)
		return r.agentReply(ctx, t, HandledAgent, "flow_error"), nil
	}
	return r.applyFlowResult(ctx, t, t.active.FlowID, res, HandledFlowContinue, "continue")
}

// startOrAgent starts the decided flow, or hands off to the agent.
func (r *Router) startOrAgent(ctx context.Context, t *turn, d intent.RouteDecision) (*Response, error) {
	if !d.HasFlow() {
		return r.agentReply(ctx, t, HandledAgent, d.Reason), nil
	}
	return r.startOrFallback(ctx, t, d.FlowID, HandledFlowStart, d.Reason)
}

func (r *Router) startOrFallback(ctx context.Context, t *turn, flowID, handler, reason string) (*Response, error) {
	resp, err := r.startFlow(ctx, t, flowID, handler, reason)
	if errors.Is(err, errFlowUnavailable) {
		slog.Warn("flow start failed, using agent", "identifier", t.ev.Identifier, "flow", flowID, "error", err)
		return r.agentReply(ctx, t, HandledAgent, "flow_start_error"), nil
	}
	return resp, err
}

// startFlow asks the flow engine to start flowID and persists the result.
func (r *Router) startFlow(ctx context.Context, t *turn, flowID, handler, reason string) (*Response, error) {
	if r.deps.Flows == nil {
		return nil, fmt.Errorf("%w: no flow engine configured", errFlowUnavailable)
	}
	req := StartRequest{
		SessionID: t.ev.Identifier,
		InitialContext: map[string]any{
			"identifier":    t.ev.Identifier,
			"channel":       t.ev.Channel,
			"platform":      t.ev.Platform,
			"language":      t.lang,
			"userType":      t.sess.Data.String(sessions.KeyUserType),
			"authenticated": t.sess.Data.Bool(sessions.KeyAuthenticated),
			"message":       t.ev.RawText,
		},
	}
	ctx, span := tracing.StartSpan(ctx, "router.flow.start", tracing.String("flow", flowID))
	res, err := call(ctx, r.cfg.CollaboratorTimeout, func(ctx context.Context) (*FlowResult, error) {
		return r.deps.Flows.StartFlow(ctx, flowID, req)
	})
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", errFlowUnavailable, flowID, err)
	}
	if res.FlowRunID == "" {
		res.FlowRunID = uuid.NewString()
	}
	return r.applyFlowResult(ctx, t, flowID, res, handler, reason)
}

// applyFlowResult writes the flow outcome to the session in one update and
// converts it into the outbound message.
func (r *Router) applyFlowResult(ctx context.Context, t *turn, flowID string, res *FlowResult, handler, reason string) (*Response, error) {
	if res == nil {
		return r.agentReply(ctx, t, HandledAgent, "empty_flow_result"), nil
	}
	patch := make(map[string]any, len(res.Metadata)+4)
	for k, v := range res.Metadata {
		if !flowKeys[k] {
			patch[k] = v
		}
	}
	if res.Completed {
		for k, v := range sessions.ClearFlowPatch() {
			patch[k] = v
		}
		if flowID == r.cfg.OnboardingFlowID {
			patch[sessions.KeyOnboardingCompleted] = true
		}
	} else {
		runID := res.FlowRunID
		if runID == "" {
			runID = t.active.RunID
		}
		for k, v := range sessions.FlowPatch(sessions.FlowState{FlowID: flowID, RunID: runID, CurrentState: res.CurrentState}) {
			patch[k] = v
		}
	}
	if err := r.deps.Sessions.Update(ctx, t.ev.Identifier, patch); err != nil {
		return nil, fmt.Errorf("save flow result: %w", err)
	}

	msg := flowMessage(res)
	if msg.IsEmpty() {
		if res.Completed {
			msg.Text = localize(t.lang, msgRequestDone)
		} else {
			msg.Text = r.fallbackText(t.lang)
		}
	}
	slog.Debug("flow result applied",
		"identifier", t.ev.Identifier, "flow", flowID, "state", res.CurrentState, "completed", res.Completed)
	return r.respond(t, handler, flowID, reason, msg), nil
}

func flowMessage(res *FlowResult) channels.OutboundMessage {
	msg := channels.OutboundMessage{
		Text:           res.Response,
		Buttons:        res.Buttons,
		ListItems:      res.ListItems,
		ListButtonText: res.ListButtonText,
		ImageURL:       res.ImageURL,
		ImageCaption:   res.ImageCaption,
	}
	for _, c := range res.Cards {
		msg.ListItems = append(msg.ListItems, channels.ListItem{ID: c.ID, Title: c.Title, Description: c.Subtitle})
		if msg.ImageURL == "" && c.ImageURL != "" && len(res.Cards) == 1 {
			msg.ImageURL = c.ImageURL
			msg.ImageCaption = c.Title
		}
	}
	if res.RequestLocation {
		msg.Location = &channels.Location{}
	}
	return msg
}

// agentReply asks the generative agent and degrades to the fallback text.
func (r *Router) agentReply(ctx context.Context, t *turn, handler, reason string) *Response {
	if r.deps.Agent == nil {
		return r.respond(t, HandledFallback, "", reason, channels.OutboundMessage{Text: r.fallbackText(t.lang)})
	}
	req := AgentRequest{
		Identifier: t.ev.Identifier,
		Text:       t.ev.RawText,
		Channel:    t.ev.Channel,
		Language:   t.lang,
		Reason:     reason,
		Profile:    profile(t.sess.Data),
	}
	if t.decision != nil {
		req.Intent = t.decision.TranslatedIntent
	}
	ctx, span := tracing.StartSpan(ctx, "router.agent")
	reply, err := call(ctx, r.cfg.CollaboratorTimeout, func(ctx context.Context) (string, error) {
		return r.deps.Agent.Reply(ctx, req)
	})
	tracing.End(span, err)
	if err != nil || reply == "" {
		slog.Warn("agent reply failed, using fallback text", "identifier", t.ev.Identifier, "error", err)
		return r.respond(t, HandledFallback, "", reason, channels.OutboundMessage{Text: r.fallbackText(t.lang)})
	}
	return r.respond(t, handler, "", reason, channels.OutboundMessage{Text: reply})
}

func (r *Router) fallbackText(lang string) string {
	if r.cfg.FallbackText != "" {
		return r.cfg.FallbackText
	}
	return localize(lang, msgGeneric)
}

var profileKeys = []string{
	sessions.KeyName, sessions.KeyUserType, sessions.KeyLanguage, sessions.KeyAuthenticated,
	sessions.KeyOrderCount, sessions.KeyFavoriteCuisine, sessions.KeyPreferredPayment,
}

func profile(d sessions.Data) map[string]any {
	out := make(map[string]any, len(profileKeys))
	for _, k := range profileKeys {
		if v, ok := d[k]; ok {
			out[k] = v
		}
	}
	return out
}
