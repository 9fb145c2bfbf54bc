package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/chatrelay/internal/command"
)

// Router applies the priority chain. It is deterministic for a fixed trigger
// snapshot and detector set.
type Router struct {
	cache     *TriggerCache
	parcel    Detector
	food      Detector
	threshold float64
}

// Option configures a Router.
type Option func(*Router)

// WithDetectors replaces the parcel and food detectors. nil disables one and
// leaves only the static keyword fallback.
func WithDetectors(parcel, food Detector) Option {
	return func(r *Router) {
		r.parcel = parcel
		r.food = food
	}
}

// WithThreshold sets the detector override threshold.
func WithThreshold(t float64) Option {
	return func(r *Router) {
		if t > 0 {
			r.threshold = t
		}
	}
}

func NewRouter(cache *TriggerCache, opts ...Option) *Router {
	r := &Router{
		cache:     cache,
		parcel:    NewParcelDetector(),
		food:      NewFoodDetector(),
		threshold: DefaultDetectorThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Cache returns the trigger cache backing the router.
func (r *Router) Cache() *TriggerCache { return r.cache }

// Route produces the decision for one message.
func (r *Router) Route(ctx context.Context, in Input) RouteDecision {
	snap := r.cache.Get(ctx)
	text := normalizeText(in.Text)
	flowActive := in.ActiveFlowID != ""

	d := RouteDecision{OriginalIntent: in.Intent}

	if in.Synthetic {
		translated := Translate(in.Intent, flowActive)
		d.TranslatedIntent = translated
		d.Confidence = 1.0
		if flow, ok := snap.Lookup(translated); ok {
			d.FlowID = flow
			d.PriorityTag = TagIntentMap
			d.Reason = "ui_action:" + translated
			return d
		}
		d.PriorityTag = TagFallback
		d.Reason = "ui_action_no_flow:" + translated
		return d
	}

	// 1. Cart operations.
	if cartIntent, ok := matchCart(text); ok {
		if !cartExcluded[in.Intent] || cartWord.MatchString(text) {
			d.TranslatedIntent = cartIntent
			d.OverrideApplied = true
			d.PriorityTag = TagOverride
			d.Confidence = 0.95
			d.Reason = "cart_pattern:" + cartIntent
			if flow, ok := snap.Lookup(cartIntent); ok {
				d.FlowID = flow
			}
			return d
		}
	}

	// 2. Commands.
	if cmd, ok := command.Match(text); ok {
		if cmd == command.Menu && IsTransactionalFlow(in.ActiveFlowID) {
			slog.Debug("menu keyword suppressed in transactional flow", "flow", in.ActiveFlowID)
		} else {
			d.TranslatedIntent = string(cmd)
			d.OverrideApplied = true
			d.PriorityTag = TagCommand
			d.Confidence = 1.0
			d.Reason = "command:" + string(cmd)
			return d
		}
	}

	// 3. Translation.
	translated := Translate(in.Intent, flowActive)
	if translated == "" {
		translated = IntentUnknown
	}
	d.TranslatedIntent = translated
	d.Confidence = in.Confidence

	// 4. Domain detectors, parcel first.
	if target, res, ok := r.detect(ctx, text); ok && target != translated {
		d.TranslatedIntent = target
		d.OverrideApplied = true
		d.Confidence = res.Confidence
		if flow, ok := snap.Lookup(target); ok {
			d.FlowID = flow
			d.PriorityTag = TagOverride
			d.Reason = fmt.Sprintf("detector:%s", res.Method)
			return d
		}
		translated = target
	}

	// 5. Trigger lookup.
	if flow, ok := snap.Lookup(d.TranslatedIntent); ok {
		d.FlowID = flow
		d.PriorityTag = TagIntentMap
		d.Reason = "intent_map:" + d.TranslatedIntent
		return d
	}

	// 6. Keyword and pattern fallback.
	if fd, ok := r.fallback(snap, in, text); ok {
		fd.OriginalIntent = in.Intent
		return fd
	}

	// 7. No match.
	d.FlowID = ""
	d.PriorityTag = TagFallback
	d.Confidence = noMatchConfidence
	d.Reason = "no_match:" + translated
	return d
}

// detect runs the domain detectors in precedence order and returns the
// canonical target intent of the first confident match.
func (r *Router) detect(ctx context.Context, text string) (string, DetectionResult, bool) {
	if text == "" {
		return "", DetectionResult{}, false
	}
	checks := []struct {
		target   string
		detector Detector
		static   []string
		name     string
	}{
		{IntentParcelBooking, r.parcel, staticParcelKeywords, "parcel"},
		{IntentOrderFood, r.food, staticFoodKeywords, "food"},
	}
	for _, c := range checks {
		if c.detector != nil {
			res, err := c.detector.Detect(ctx, text)
			if err != nil {
				slog.Warn("intent detector failed, using static keywords", "detector", c.name, "error", err)
			} else if res.Matched && res.Confidence >= r.threshold {
				return c.target, res, true
			}
		}
		if w, ok := containsAny(text, c.static); ok {
			return c.target, DetectionResult{Matched: true, Confidence: r.threshold, Method: c.name + ":static:" + w}, true
		}
	}
	return "", DetectionResult{}, false
}

func (r *Router) fallback(snap *Snapshot, in Input, text string) (RouteDecision, bool) {
	raw := in.Intent
	if _, ok := containsAny(text, loginKeywords); ok {
		if flow, ok := snap.Lookup(IntentLogin); ok {
			return RouteDecision{
				TranslatedIntent: IntentLogin, FlowID: flow, OverrideApplied: true,
				PriorityTag: TagKeyword, Confidence: 0.8, Reason: "keyword:login",
			}, true
		}
	}
	if raw == "" || raw == IntentUnknown || raw == IntentDefault {
		if greetingPattern.MatchString(text) {
			if flow, ok := snap.Lookup(IntentGreeting); ok {
				return RouteDecision{
					TranslatedIntent: IntentGreeting, FlowID: flow, OverrideApplied: true,
					PriorityTag: TagPattern, Confidence: 0.8, Reason: "pattern:greeting",
				}, true
			}
		}
	}
	for _, re := range serviceInquiryPatterns {
		if re.MatchString(text) {
			return RouteDecision{
				TranslatedIntent: IntentServiceInquiry, OverrideApplied: true,
				PriorityTag: TagPattern, Confidence: 0.8, Reason: "service_inquiry_agent",
			}, true
		}
	}
	if w, ok := containsAny(text, foodStrong); ok {
		if flow, ok := snap.Lookup(IntentOrderFood); ok {
			return RouteDecision{
				TranslatedIntent: IntentOrderFood, FlowID: flow, OverrideApplied: true,
				PriorityTag: TagKeyword, Confidence: 0.6, Reason: "keyword:food:" + w,
			}, true
		}
	}
	return RouteDecision{}, false
}
