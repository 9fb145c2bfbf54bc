package router

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/command"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/tracing"
)

// handleAction serves an explicit button or list selection. The classifier
// is never consulted: the action id is the intent.
func (r *Router) handleAction(ctx context.Context, t *turn) (*Response, error) {
	a := t.ev.Action
	if cmd, ok := command.Parse(a.ID); ok {
		return r.runCommand(ctx, t, cmd, HandledUIAction)
	}

	if t.hasFlow {
		return r.forwardAction(ctx, t)
	}

	t.decision = &intent.RouteDecision{OriginalIntent: a.ID, TranslatedIntent: a.ID, Confidence: 1.0}
	if resp, err := r.handleDirect(ctx, t, a.ID); resp != nil || err != nil {
		return resp, err
	}

	d := r.deps.Intents.Route(ctx, intent.Input{
		Text:      t.ev.RawText,
		Intent:    a.ID,
		Synthetic: true,
	})
	t.decision = &d
	slog.Debug("ui action routed", "identifier", t.ev.Identifier, "action", a.ID, "flow", d.FlowID, "reason", d.Reason)
	if !d.HasFlow() {
		return r.agentReply(ctx, t, HandledAgent, d.Reason), nil
	}
	return r.startOrFallback(ctx, t, d.FlowID, HandledUIAction, d.Reason)
}

// forwardAction hands the selection to the active flow as a named event.
func (r *Router) forwardAction(ctx context.Context, t *turn) (*Response, error) {
	a := t.ev.Action
	if r.deps.Flows == nil {
		return r.agentReply(ctx, t, HandledAgent, "no_flow_engine"), nil
	}
	text := t.ev.RawText
	if text == "" {
		text = a.ID
	}
	value := a.Value
	if value == "" {
		value = a.ID
	}
	ctx, span := tracing.StartSpan(ctx, "router.flow.action",
		tracing.String("flow", t.active.FlowID), tracing.String("action", a.ID))
	res, err := call(ctx, r.cfg.CollaboratorTimeout, func(ctx context.Context) (*FlowResult, error) {
		return r.deps.Flows.ProcessMessage(ctx, t.ev.Identifier, text, &FlowEvent{Type: a.ID, Value: value})
	})
	tracing.End(span, err)
	if err != nil {
		slog.Warn("flow action failed", "identifier", t.ev.Identifier, "flow", t.active.FlowID, "action", a.ID, "error", err)
		return r.respond(t, HandledFallback, t.active.FlowID, "flow_error",
			channels.OutboundMessage{Text: r.fallbackText(t.lang)}), nil
	}
	return r.applyFlowResult(ctx, t, t.active.FlowID, res, HandledUIAction, "ui_action:"+a.ID)
}
