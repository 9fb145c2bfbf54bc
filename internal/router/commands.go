package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/command"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
)

// handleCommand runs a global command when the message is one. Inside a
// critical flow state only an exact cancel phrase is honored; everything
// else goes to the flow as an answer. While any flow is active, destructive
// commands need a keyword match rather than the classifier alone.
func (r *Router) handleCommand(ctx context.Context, t *turn) (*Response, error) {
	if t.hasFlow && IsCriticalState(t.active.CurrentState) {
		if !command.DetectExactCancel(t.ev.RawText) {
			return nil, nil
		}
		return r.runCommand(ctx, t, command.Cancel, HandledExactCancel)
	}

	cmd, exact := r.commandFor(t)
	if cmd == "" {
		return nil, nil
	}
	if !exact {
		if t.hasFlow && command.IsDestructive(cmd) {
			slog.Debug("destructive command needs an exact phrase inside a flow", "identifier", t.ev.Identifier, "command", string(cmd))
			return nil, nil
		}
		if cmd == command.Menu && looksLikeQuestion(t.ev.RawText) {
			return nil, nil
		}
	}
	return r.runCommand(ctx, t, cmd, HandledCommand)
}

// commandFor picks the command named by the keyword chain, or by the
// classifier when it is confident enough. exact is true for the former.
func (r *Router) commandFor(t *turn) (command.Name, bool) {
	// Keyword matches (commands, and a flowless "clear cart" pattern) are exact.
	if d := t.decision; d != nil && (d.PriorityTag == intent.TagCommand || (d.OverrideApplied && !d.HasFlow())) {
		if cmd, ok := command.Parse(d.TranslatedIntent); ok {
			return cmd, true
		}
	}
	if t.cls == nil || t.cls.Confidence < r.cfg.CommandConfidenceFloor {
		return "", false
	}
	if cmd, ok := command.Parse(t.cls.Intent); ok {
		if cmd == command.Menu && t.hasFlow && intent.IsTransactionalFlow(t.active.FlowID) {
			return "", false
		}
		return cmd, false
	}
	return "", false
}

func (r *Router) runCommand(ctx context.Context, t *turn, cmd command.Name, handler string) (*Response, error) {
	res, err := r.deps.Commands.Handle(ctx, t.ev.Identifier, cmd)
	if err != nil {
		return nil, fmt.Errorf("command %s: %w", cmd, err)
	}
	slog.Info("command executed",
		"identifier", t.ev.Identifier, "command", string(cmd), "flow", t.active.FlowID, "cleared_flow", res.ClearedFlow)

	flowID := ""
	if res.Resumed != nil {
		flowID = res.Resumed.FlowID
	}
	return r.respond(t, handler, flowID, "command:"+string(cmd), r.nonEmpty(res.Message, t.lang)), nil
}

func (r *Router) nonEmpty(m channels.OutboundMessage, lang string) channels.OutboundMessage {
	if m.IsEmpty() {
		m.Text = r.fallbackText(lang)
	}
	return m
}
