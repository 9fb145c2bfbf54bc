package router

import (
	"fmt"

	"github.com/nextlevelbuilder/chatrelay/internal/command"
)

const (
	msgGeneric        = "generic"
	msgLoginRequired  = "login_required"
	msgLoginButton    = "login_button"
	msgWalletBalance  = "wallet_balance"
	msgLoyaltyPoints  = "loyalty_points"
	msgNoRecentOrder  = "no_recent_order"
	msgWishlistEmpty  = "wishlist_empty"
	msgWishlistAdded  = "wishlist_added"
	msgRequestDone    = "request_done"
	msgGreetingFresh  = "greeting_fresh"
	msgWishlistHeader = "wishlist_header"
)

var routerMessages = map[string]map[string]string{
	command.LangEnglish: {
		msgGeneric:        "Sorry, I couldn't complete that right now. Please try again in a moment.",
		msgLoginRequired:  "Please log in first so I can look that up for you.",
		msgLoginButton:    "Log in",
		msgWalletBalance:  "Your wallet balance is %v.",
		msgLoyaltyPoints:  "You have %v loyalty points.",
		msgNoRecentOrder:  "I couldn't find a recent order on your account.",
		msgWishlistEmpty:  "Your wishlist is empty.",
		msgWishlistAdded:  "Added to your wishlist.",
		msgRequestDone:    "Done! Your request has been submitted.",
		msgGreetingFresh:  "Hello! What would you like to do today?",
		msgWishlistHeader: "Your wishlist:",
	},
	command.LangHindi: {
		msgGeneric:        "माफ़ कीजिए, अभी यह पूरा नहीं हो सका। कृपया थोड़ी देर में फिर कोशिश करें।",
		msgLoginRequired:  "कृपया पहले लॉग इन करें ताकि मैं यह देख सकूँ।",
		msgLoginButton:    "लॉग इन",
		msgWalletBalance:  "आपके वॉलेट में %v है।",
		msgLoyaltyPoints:  "आपके पास %v लॉयल्टी पॉइंट हैं।",
		msgNoRecentOrder:  "आपके खाते में कोई हाल का ऑर्डर नहीं मिला।",
		msgWishlistEmpty:  "आपकी विशलिस्ट खाली है।",
		msgWishlistAdded:  "विशलिस्ट में जोड़ दिया गया।",
		msgRequestDone:    "हो गया! आपका अनुरोध भेज दिया गया है।",
		msgGreetingFresh:  "नमस्ते! आज आप क्या करना चाहेंगे?",
		msgWishlistHeader: "आपकी विशलिस्ट:",
	},
	command.LangMarathi: {
		msgGeneric:        "माफ करा, आत्ता ते पूर्ण होऊ शकले नाही. कृपया थोड्या वेळाने पुन्हा प्रयत्न करा.",
		msgLoginRequired:  "कृपया आधी लॉग इन करा म्हणजे मी ते पाहू शकेन.",
		msgLoginButton:    "लॉग इन",
		msgWalletBalance:  "तुमच्या वॉलेटमध्ये %v आहे.",
		msgLoyaltyPoints:  "तुमच्याकडे %v लॉयल्टी पॉइंट्स आहेत.",
		msgNoRecentOrder:  "तुमच्या खात्यावर अलीकडील ऑर्डर सापडली नाही.",
		msgWishlistEmpty:  "तुमची विशलिस्ट रिकामी आहे.",
		msgWishlistAdded:  "विशलिस्टमध्ये जोडले.",
		msgRequestDone:    "झाले! तुमची विनंती पाठवली आहे.",
		msgGreetingFresh:  "नमस्कार! आज तुम्हाला काय करायचे आहे?",
		msgWishlistHeader: "तुमची विशलिस्ट:",
	},
}

func localize(lang, key string, args ...any) string {
	m, ok := routerMessages[lang]
	if !ok {
		m = routerMessages[command.LangEnglish]
	}
	s, ok := m[key]
	if !ok {
		s = routerMessages[command.LangEnglish][key]
	}
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}
