package intent

import "strings"

// staticTranslations always apply.
var staticTranslations = map[string]string{
	"place_order":       IntentOrderFood,
	"food_order":        IntentOrderFood,
	"buy_food":          IntentOrderFood,
	"order_meal":        IntentOrderFood,
	"search_restaurant": "search_food",
	"find_food":         "search_food",
	"send_package":      IntentParcelBooking,
	"book_parcel":       IntentParcelBooking,
	"courier_booking":   IntentParcelBooking,
	"book_courier":      IntentParcelBooking,
	"hello":             IntentGreeting,
	"hi":                IntentGreeting,
	"greet":             IntentGreeting,
	"sign_in":           IntentLogin,
	"signin":            IntentLogin,
	"authenticate":      IntentLogin,
	"wallet_balance":    IntentCheckWallet,
	"balance_check":     IntentCheckWallet,
	"points_balance":    "loyalty_points",
	"where_is_my_order": IntentTrackOrder,
	"order_tracking":    IntentTrackOrder,
	"small_talk":        "chitchat",
	"smalltalk":         "chitchat",
}

// contextTranslations apply only when no flow is active; inside a flow these
// labels usually describe a step of that flow.
var contextTranslations = map[string]string{
	"checkout":    IntentOrderFood,
	"browse":      "browse_menu",
	"show_menu":   "browse_menu",
	"delivery":    IntentParcelBooking,
	"pickup":      IntentParcelBooking,
	"add_item":    IntentAddToCart,
	"select_item": IntentOrderFood,
}

// Translate maps a classifier label to the canonical intent.
func Translate(intent string, flowActive bool) string {
	key := strings.ToLower(strings.TrimSpace(intent))
	if t, ok := staticTranslations[key]; ok {
		key = t
	}
	if !flowActive {
		if t, ok := contextTranslations[key]; ok {
			key = t
		}
	}
	return key
}
