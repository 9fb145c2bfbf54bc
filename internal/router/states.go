package router

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/intent"
)

// Flow IDs the router knows by name.
const (
	FlowFoodOrder = "food_order_v1"
	FlowParcel    = "parcel_delivery_v1"
	FlowLogin     = "login_v1"
	FlowGreeting  = "greeting_v1"
	FlowChitchat  = "chitchat_v1"
)

// flowForIntent is the static intent->flow table used for mid-flow switching.
var flowForIntent = map[string]string{
	intent.IntentOrderFood:     FlowFoodOrder,
	"browse_menu":              FlowFoodOrder,
	"search_food":              FlowFoodOrder,
	intent.IntentAddToCart:     FlowFoodOrder,
	intent.IntentViewCart:      FlowFoodOrder,
	intent.IntentParcelBooking: FlowParcel,
	"send_parcel":              FlowParcel,
	"book_delivery":            FlowParcel,
	intent.IntentLogin:         FlowLogin,
}

// lowCommitmentFlows are easy to leave; they use the lower switch threshold.
var lowCommitmentFlows = map[string]bool{
	FlowChitchat: true,
	FlowGreeting: true,
}

// criticalStates expect specific structured input; generic routing must not
// interrupt them.
var criticalStates = map[string]bool{
	"await_payment":      true,
	"select_payment":     true,
	"payment_selection":  true,
	"confirm_order":      true,
	"await_confirmation": true,
	"confirm_booking":    true,
	"collect_address":    true,
	"select_address":     true,
	"collect_pickup":     true,
	"collect_drop":       true,
	"collect_recipient":  true,
	"select_vehicle":     true,
	"select_category":    true,
	"enter_otp":          true,
	"verify_otp":         true,
}

// criticalMarkers catch states named by convention (e.g. "collect_pickup_address").
var criticalMarkers = []string{"payment", "confirm", "address", "recipient", "vehicle", "otp"}

// IsCriticalState reports whether state is a critical wait state.
func IsCriticalState(state string) bool {
	s := strings.ToLower(state)
	if criticalStates[s] {
		return true
	}
	for _, m := range criticalMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

var browsableStates = map[string]bool{
	"start":           true,
	"welcome":         true,
	"idle":            true,
	"greeting":        true,
	"main_menu":       true,
	"show_menu":       true,
	"browse_menu":     true,
	"show_categories": true,
	"search_results":  true,
	"small_talk":      true,
}

// IsBrowsableState reports whether state can be abandoned without loss.
func IsBrowsableState(state string) bool {
	s := strings.ToLower(state)
	return browsableStates[s] || strings.HasPrefix(s, "browse")
}

var numericAnswer = regexp.MustCompile(`^\s*\d{1,3}\s*[.)]?\s*$`)

// transitionEvent normalizes free text into a flow event. Numeric answers
// become a generic user_input event; other text carries no event.
func transitionEvent(text string) *FlowEvent {
	if numericAnswer.MatchString(text) {
		v := strings.TrimRight(strings.TrimSpace(text), ".)")
		return &FlowEvent{Type: EventUserInput, Value: strings.TrimSpace(v)}
	}
	return nil
}

var (
	parcelRoute    = regexp.MustCompile(`\bfrom\b.+\bto\b|\bpick\s?up\s+(from|at)\b|\bdeliver\s+to\b|\bsend\b.+\bto\b`)
	checkoutStates = []string{"checkout", "review_cart", "cart_summary", "order_summary"}
)

// isNewFullRequest detects a fresh, complete request inside an ongoing flow
// of the same kind.
func isNewFullRequest(flowID, state, text string) bool {
	t := strings.ToLower(text)
	switch flowID {
	case FlowParcel:
		return parcelRoute.MatchString(t)
	case FlowFoodOrder:
		s := strings.ToLower(state)
		for _, cs := range checkoutStates {
			if strings.HasPrefix(s, cs) {
				return intent.HasFoodItem(t)
			}
		}
	}
	return false
}

var questionStart = regexp.MustCompile(`^(what|whats|what's|how|why|when|where|which|can|could|is|are|do|does|will|kya|kaise|kab|kuthe|kasa)\b`)

// looksLikeQuestion flags follow-up questions ("what's on the menu?") that
// mention a command word without meaning the command.
func looksLikeQuestion(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.HasSuffix(t, "?") || questionStart.MatchString(t)
}
