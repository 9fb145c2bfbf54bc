package intent

import (
	"regexp"
	"strings"
)

// Cart phrasing in English, Hindi and Marathi (Latin script). Order matters:
// clear before remove ("remove everything from cart"), add before view
// ("add this to my cart").
var cartPatterns = []struct {
	intent string
	re     *regexp.Regexp
}{
	{IntentClearCart, regexp.MustCompile(`\b(clear|empty|reset)\s+(my\s+|the\s+)?(cart|basket)\b|\bremove\s+(everything|all)\s+from\s+(my\s+|the\s+)?(cart|basket)\b|\bcart\s+(khali|saaf|rikami)\b`)},
	{IntentRemoveFromCart, regexp.MustCompile(`\b(remove|delete|drop|take\s+out)\b.*\b(from\s+)?(my\s+|the\s+)?(cart|basket)\b|\bcart\s+(se|madhun|madhe\s+nako)\b.*\b(hatao|nikalo|kadha|kaadha)\b|\b(hatao|nikalo|kadha|kaadha)\b.*\bcart\b`)},
	{IntentAddToCart, regexp.MustCompile(`\badd\b.*\b(to|in|into)\s+(my\s+|the\s+)?(cart|basket)\b|\bcart\s+(mein|me|madhe)\b.*\b(daalo|dalo|daal|add|taka|ghala)\b|\b(daalo|dalo|taka|ghala)\b.*\bcart\b`)},
	{IntentViewCart, regexp.MustCompile(`\b(view|show|see|check|open)\s+(my\s+|the\s+)?(cart|basket)\b|\bwhat('?s| is)\s+in\s+(my\s+|the\s+)?(cart|basket)\b|\bcart\s+(dikhao|batao|dakhva|dakhav)\b|\bmy\s+cart\b$|^cart$`)},
}

// cartWord detects an explicit mention of the cart.
var cartWord = regexp.MustCompile(`\b(cart|basket)\b`)

// cartExcluded are classifier intents that keep priority over cart phrasing
// unless the text literally says "cart".
var cartExcluded = map[string]bool{
	IntentTrackOrder:  true,
	IntentCheckWallet: true,
	IntentOrderStatus: true,
}

// matchCart returns the cart intent named by text.
func matchCart(text string) (string, bool) {
	for _, p := range cartPatterns {
		if p.re.MatchString(text) {
			return p.intent, true
		}
	}
	return "", false
}

var greetingPattern = regexp.MustCompile(`^(hi+|hello+|hey+|hiya|yo|namaste|namaskar|namaskaar|ram ram|jai shree krishna|good\s+(morning|afternoon|evening|day)|howdy|sup)\b`)

var loginKeywords = []string{
	"login", "log in", "log me in", "sign in", "signin", "sign up", "signup",
	"register", "otp", "verify my number", "my account",
}

var serviceInquiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat\s+(do|can)\s+you\s+(do|offer|provide)\b`),
	regexp.MustCompile(`\bwhat\s+(services|service)\b`),
	regexp.MustCompile(`\bhow\s+does\s+(this|it)\s+work\b`),
	regexp.MustCompile(`\bwhat\s+can\s+i\s+(order|do)\b`),
	regexp.MustCompile(`\bdo\s+you\s+(deliver|ship|serve)\b`),
	regexp.MustCompile(`\b(kya|kay)\s+(kya\s+)?(karte|karta|karto|kartat)\s+(ho|hai|hain|aahe|aahat)\b`),
	regexp.MustCompile(`\b(who|what)\s+are\s+you\b`),
}

// transactionalFlowPrefixes mark flows where "menu"/"home" may be an answer
// (e.g. picking the "home" address) rather than a navigation command.
var transactionalFlowPrefixes = []string{"food_order", "parcel", "checkout"}

// IsTransactionalFlow reports whether flowID is a transactional flow.
func IsTransactionalFlow(flowID string) bool {
	for _, p := range transactionalFlowPrefixes {
		if strings.HasPrefix(flowID, p) {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) (string, bool) {
	for _, w := range words {
		if containsWord(text, w) {
			return w, true
		}
	}
	return "", false
}

// containsWord matches w at word boundaries; w may span several words.
func containsWord(text, w string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		idx = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_')
}

// normalizeText lowercases and collapses whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// HasFoodItem reports whether text names a food item or food keyword.
func HasFoodItem(text string) bool {
	_, ok := containsAny(normalizeText(text), foodStrong)
	return ok
}

// HasTransactionalSignal reports whether text clearly asks to order food,
// send a parcel, or change the cart.
func HasTransactionalSignal(text string) bool {
	t := normalizeText(text)
	if _, ok := matchCart(t); ok {
		return true
	}
	if _, ok := containsAny(t, parcelStrong); ok {
		return true
	}
	_, ok := containsAny(t, foodStrong)
	return ok
}
