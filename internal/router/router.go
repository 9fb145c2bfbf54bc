// Package router is the context router: one decision function shared by the
// synchronous (Respond) and fire-and-forget (Process) entry points.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/command"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/tracing"
)

// Metadata keys the gateway sets on events.
const (
	MetaPath   = "route_path"
	PathNew    = "new"
	PathLegacy = "legacy"
)

// Handler values report which pipeline step answered.
const (
	HandledOnboarding   = "onboarding"
	HandledUIAction     = "ui_action"
	HandledCommand      = "command"
	HandledExactCancel  = "exact_cancel"
	HandledDirect       = "direct_answer"
	HandledFlowContinue = "flow_continue"
	HandledFlowSwitch   = "flow_switch"
	HandledFlowRestart  = "flow_restart"
	HandledFlowStart    = "flow_start"
	HandledGreeting     = "greeting_reset"
	HandledAgent        = "agent"
	HandledFallback     = "fallback"
	HandledLegacy       = "legacy_agent"
)

// Config tunes the decision pipeline.
type Config struct {
	CollaboratorTimeout       time.Duration
	FlowSwitchThreshold       float64
	ChitchatSwitchThreshold   float64
	CommandConfidenceFloor    float64
	OnboardingEnabled         bool
	OnboardingFlowID          string
	NativeOnboardingPlatforms []string
	FallbackText              string
}

func (c *Config) applyDefaults() {
	if c.CollaboratorTimeout <= 0 {
		c.CollaboratorTimeout = 8 * time.Second
	}
	if c.FlowSwitchThreshold <= 0 {
		c.FlowSwitchThreshold = 0.70
	}
	if c.ChitchatSwitchThreshold <= 0 {
		c.ChitchatSwitchThreshold = 0.60
	}
	if c.CommandConfidenceFloor <= 0 {
		c.CommandConfidenceFloor = 0.85
	}
	if c.OnboardingFlowID == "" {
		c.OnboardingFlowID = "onboarding_v1"
	}
}

// Deliverer sends a canonical message on a channel (channels.Manager).
type Deliverer interface {
	Send(ctx context.Context, channel, chatID string, msg channels.OutboundMessage) error
}

// Deps are the router's collaborators. Flows, Agent, Durable, Deliverer and
// every service may be nil.
type Deps struct {
	Sessions   store.SessionStore
	Durable    store.DurableFlowReader
	Intents    *intent.Router
	Commands   *command.Handler
	Classifier Classifier
	Flows      FlowEngine
	Agent      Agent
	Services   Services
	Deliverer  Deliverer
}

// Router runs the decision pipeline. It holds no per-conversation state;
// everything persistent lives in the session store and the flow engine.
type Router struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Router {
	cfg.applyDefaults()
	if deps.Commands == nil && deps.Sessions != nil {
		deps.Commands = command.NewHandler(deps.Sessions)
	}
	return &Router{cfg: cfg, deps: deps}
}

// Input is one decision request.
type Input struct {
	Event   bus.MessageEvent
	Session *store.SessionData // nil loads or creates the session
}

// Response is the outcome of one decision.
type Response struct {
	Message        channels.OutboundMessage `json:"message"`
	Handler        string                   `json:"handler"`
	FlowID         string                   `json:"flowId,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	Classification *Classification         `json:"classification,omitempty"`
	Decision       *intent.RouteDecision    `json:"decision,omitempty"`
}

// turn carries per-message state through the pipeline steps.
type turn struct {
	ev       bus.MessageEvent
	sess     *store.SessionData
	lang     string
	active   sessions.FlowState
	hasFlow  bool
	cls      *Classification
	decision *intent.RouteDecision
}

func (t *turn) refresh(sess *store.SessionData) {
	t.sess = sess
	t.lang = sess.Data.String(sessions.KeyLanguage)
	t.active, t.hasFlow = sess.Data.ActiveFlow()
}

// Decide runs the pipeline for one event. It never returns an empty
// message; collaborator failures degrade to fallbacks. An error is returned
// only when the session store itself fails.
func (r *Router) Decide(ctx context.Context, in Input) (resp *Response, err error) {
	ctx, span := tracing.StartSpan(ctx, "router.decide",
		tracing.String("channel", in.Event.Channel),
		tracing.String("message_id", in.Event.MessageID))
	defer func() {
		if resp != nil {
			span.SetAttributes(tracing.String("handler", resp.Handler), tracing.String("flow", resp.FlowID))
		}
		tracing.End(span, err)
	}()

	sess := in.Session.Clone()
	if sess == nil {
		sess, err = r.deps.Sessions.GetOrCreate(ctx, in.Event.Identifier)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}
	t := &turn{ev: in.Event}
	t.refresh(sess)

	if in.Event.Metadata[MetaPath] == PathLegacy {
		return r.agentReply(ctx, t, HandledLegacy, "legacy_path"), nil
	}

	// 0. Onboarding gate.
	if resp, err := r.onboardingGate(ctx, t); resp != nil || err != nil {
		return resp, err
	}

	// 0b. Reconcile a stale cached session with the durable store.
	r.reconcile(ctx, t)

	// 1. User type, computed once.
	r.ensureUserType(ctx, t)

	// 2. UI actions bypass classification.
	if t.ev.IsAction() {
		return r.handleAction(ctx, t)
	}

	// 2b. Classification + route decision.
	r.classify(ctx, t)

	// 3. Commands.
	if resp, err := r.handleCommand(ctx, t); resp != nil || err != nil {
		return resp, err
	}

	// 4. Direct answers.
	if resp, err := r.handleDirect(ctx, t, t.decision.TranslatedIntent); resp != nil || err != nil {
		return resp, err
	}

	// 4b. Active flow continuation with smart switching.
	if t.hasFlow {
		return r.continueFlow(ctx, t)
	}

	// 5. New flow or agent.
	return r.startOrAgent(ctx, t, *t.decision)
}

// Respond is the synchronous entry point: decide and render for the origin
// channel.
func (r *Router) Respond(ctx context.Context, ev bus.MessageEvent) (*Response, channels.RenderedMessage, error) {
	resp, err := r.Decide(ctx, Input{Event: ev})
	if err != nil {
		return nil, channels.RenderedMessage{}, err
	}
	return resp, channels.Render(ev.Channel, resp.Message), nil
}

// Process is the fire-and-forget entry point: decide and send through the
// channel's sender.
func (r *Router) Process(ctx context.Context, ev bus.MessageEvent) (*Response, error) {
	resp, err := r.Decide(ctx, Input{Event: ev})
	if err != nil {
		return nil, err
	}
	if r.deps.Deliverer == nil {
		return resp, errors.New("no deliverer configured")
	}
	if err := r.deps.Deliverer.Send(ctx, ev.Channel, ev.ChatID, resp.Message); err != nil {
		return resp, fmt.Errorf("deliver to %s: %w", ev.Channel, err)
	}
	return resp, nil
}

// call runs fn under the per-collaborator timeout.
func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

// classify runs the classifier chain and attaches the route decision.
func (r *Router) classify(ctx context.Context, t *turn) {
	cls := Classification{Intent: intent.IntentUnknown, Provider: "default"}
	if r.deps.Classifier != nil {
		res, err := call(ctx, r.cfg.CollaboratorTimeout, func(ctx context.Context) (Classification, error) {
			return r.deps.Classifier.Classify(ctx, t.ev.RawText)
		})
		if err != nil {
			slog.Warn("classification failed, using unknown", "identifier", t.ev.Identifier, "error", err)
		} else {
			cls = res
		}
	}
	d := r.deps.Intents.Route(ctx, intent.Input{
		Text:         t.ev.RawText,
		Intent:       cls.Intent,
		Confidence:   cls.Confidence,
		ActiveFlowID: t.active.FlowID,
	})
	cls.Decision = &d
	t.cls = &cls
	t.decision = &d
	slog.Debug("route decided",
		"identifier", t.ev.Identifier,
		"intent", cls.Intent,
		"translated", d.TranslatedIntent,
		"flow", d.FlowID,
		"tag", string(d.PriorityTag),
		"reason", d.Reason)
}

func (r *Router) isNativeOnboarding(platform string) bool {
	return platform != "" && slices.Contains(r.cfg.NativeOnboardingPlatforms, platform)
}

func (r *Router) respond(t *turn, handler, flowID, reason string, msg channels.OutboundMessage) *Response {
	return &Response{
		Message:        msg,
		Handler:        handler,
		FlowID:         flowID,
		Reason:         reason,
		Classification: t.cls,
		Decision:       t.decision,
	}
}
