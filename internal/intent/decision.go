// Package intent resolves a classified intent and raw text into exactly one
// RouteDecision through a fixed priority chain.
package intent

// PriorityTag names the chain step that produced a decision.
type PriorityTag string

const (
	TagCommand   PriorityTag = "command"
	TagKeyword   PriorityTag = "keyword"
	TagOverride  PriorityTag = "override"
	TagIntentMap PriorityTag = "intent_map"
	TagPattern   PriorityTag = "pattern"
	TagFallback  PriorityTag = "fallback"
)

// Canonical intents the chain produces itself.
const (
	IntentUnknown        = "unknown"
	IntentDefault        = "default"
	IntentOrderFood      = "order_food"
	IntentParcelBooking  = "parcel_booking"
	IntentGreeting       = "greeting"
	IntentLogin          = "login"
	IntentServiceInquiry = "service_inquiry"
	IntentAddToCart      = "add_to_cart"
	IntentRemoveFromCart = "remove_from_cart"
	IntentViewCart       = "view_cart"
	IntentClearCart      = "clear_cart"
	IntentTrackOrder     = "track_order"
	IntentCheckWallet    = "check_wallet"
	IntentOrderStatus    = "order_status"
)

// noMatchConfidence is reported when nothing in the chain matched.
const noMatchConfidence = 0.3

// RouteDecision is the immutable outcome of routing one message.
// FlowID is empty when no flow should start.
type RouteDecision struct {
	OriginalIntent   string      `json:"originalIntent"`
	TranslatedIntent string      `json:"translatedIntent"`
	FlowID           string      `json:"flowId,omitempty"`
	OverrideApplied  bool        `json:"overrideApplied"`
	Reason           string      `json:"reason"`
	PriorityTag      PriorityTag `json:"priorityTag"`
	Confidence       float64     `json:"confidence"`
}

// HasFlow reports whether the decision names a flow.
func (d RouteDecision) HasFlow() bool { return d.FlowID != "" }

// Input is what the router needs about one message.
type Input struct {
	Text         string
	Intent       string  // classifier output, may be empty
	Confidence   float64 // classifier confidence
	ActiveFlowID string  // "" when no flow is active
	// Synthetic marks an intent taken from an explicit UI action; only
	// translation and trigger lookup apply.
	Synthetic bool
}
