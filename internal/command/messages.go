package command

// Supported reply languages. Sessions without a language get English.
const (
	LangEnglish = "en"
	LangHindi   = "hi"
	LangMarathi = "mr"
)

// Message keys.
const (
	msgCancelled     = "cancelled"
	msgReset         = "reset"
	msgRestarted     = "restarted"
	msgMenu          = "menu"
	msgCartCleared   = "cart_cleared"
	msgBackResumed   = "back_resumed"
	msgBackNothing   = "back_nothing"
	msgHelp          = "help"
	msgMenuOrderFood = "menu_order_food"
	msgMenuParcel    = "menu_parcel"
	msgMenuTrack     = "menu_track"
	msgMenuWallet    = "menu_wallet"
)

var messages = map[string]map[string]string{
	LangEnglish: {
		msgCancelled:     "Okay, I've cancelled that. What would you like to do next?",
		msgReset:         "Your conversation has been reset. Your account details are still saved.",
		msgRestarted:     "Starting fresh! How can I help you today?",
		msgMenu:          "What would you like to do?",
		msgCartCleared:   "Your cart is now empty.",
		msgBackResumed:   "Let's pick up where you left off.",
		msgBackNothing:   "There is nothing to go back to.",
		msgHelp:          "You can order food, send a parcel, track an order or check your wallet.\nSay \"cancel\" to stop, \"menu\" for options, or \"restart\" to start over.",
		msgMenuOrderFood: "Order food",
		msgMenuParcel:    "Send a parcel",
		msgMenuTrack:     "Track order",
		msgMenuWallet:    "My wallet",
	},
	LangHindi: {
		msgCancelled:     "ठीक है, मैंने उसे रद्द कर दिया। अब आप क्या करना चाहेंगे?",
		msgReset:         "आपकी बातचीत रीसेट हो गई है। आपके खाते की जानकारी सुरक्षित है।",
		msgRestarted:     "फिर से शुरू करते हैं! मैं आपकी क्या मदद करूँ?",
		msgMenu:          "आप क्या करना चाहेंगे?",
		msgCartCleared:   "आपका कार्ट अब खाली है।",
		msgBackResumed:   "चलिए वहीं से आगे बढ़ते हैं जहाँ आपने छोड़ा था।",
		msgBackNothing:   "वापस जाने के लिए कुछ नहीं है।",
		msgHelp:          "आप खाना ऑर्डर कर सकते हैं, पार्सल भेज सकते हैं, ऑर्डर ट्रैक कर सकते हैं या वॉलेट देख सकते हैं।\nरोकने के लिए \"cancel\", विकल्पों के लिए \"menu\", या फिर से शुरू करने के लिए \"restart\" लिखें।",
		msgMenuOrderFood: "खाना ऑर्डर करें",
		msgMenuParcel:    "पार्सल भेजें",
		msgMenuTrack:     "ऑर्डर ट्रैक करें",
		msgMenuWallet:    "मेरा वॉलेट",
	},
	LangMarathi: {
		msgCancelled:     "ठीक आहे, मी ते रद्द केले. आता तुम्हाला काय करायचे आहे?",
		msgReset:         "तुमचे संभाषण रीसेट झाले आहे. तुमच्या खात्याची माहिती सुरक्षित आहे.",
		msgRestarted:     "पुन्हा सुरुवात करूया! मी तुमची काय मदत करू?",
		msgMenu:          "तुम्हाला काय करायचे आहे?",
		msgCartCleared:   "तुमची कार्ट आता रिकामी आहे.",
		msgBackResumed:   "जिथे थांबलो होतो तिथून पुढे जाऊया.",
		msgBackNothing:   "मागे जाण्यासाठी काहीही नाही.",
		msgHelp:          "तुम्ही जेवण ऑर्डर करू शकता, पार्सल पाठवू शकता, ऑर्डर ट्रॅक करू शकता किंवा वॉलेट पाहू शकता.\nथांबवण्यासाठी \"cancel\", पर्यायांसाठी \"menu\", किंवा पुन्हा सुरू करण्यासाठी \"restart\" लिहा.",
		msgMenuOrderFood: "जेवण ऑर्डर करा",
		msgMenuParcel:    "पार्सल पाठवा",
		msgMenuTrack:     "ऑर्डर ट्रॅक करा",
		msgMenuWallet:    "माझे वॉलेट",
	},
}

// Text returns the localized message for key, falling back to English.
func Text(lang, key string) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return messages[LangEnglish][key]
}
