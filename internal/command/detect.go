package command

import (
	"strings"
	"unicode"
)

// keywords maps normalized phrases to commands. English, Hindi and Marathi
// (both Devanagari and Latin transliteration).
var keywords = map[string]Name{
	"cancel": Cancel, "stop": Cancel, "quit": Cancel, "exit": Cancel, "abort": Cancel,
	"cancel it": Cancel, "cancel this": Cancel, "cancel karo": Cancel, "band karo": Cancel,
	"radd karo": Cancel, "radd kara": Cancel, "ruko": Cancel, "thamba": Cancel,
	"रद्द": Cancel, "रद्द करो": Cancel, "रद्द करा": Cancel, "बंद करो": Cancel, "थांबा": Cancel,

	"reset": Reset,

	"restart": Restart, "start over": Restart, "start again": Restart, "begin again": Restart,
	"phir se shuru": Restart, "fir se shuru": Restart, "punha suru": Restart,
	"फिर से शुरू": Restart, "पुन्हा सुरू": Restart,

	"menu": Menu, "main menu": Menu, "home": Menu, "options": Menu,
	"मेनू": Menu, "मेन्यू": Menu,

	"clear cart": ClearCart, "empty cart": ClearCart, "empty my cart": ClearCart, "clear my cart": ClearCart,
	"cart khali karo": ClearCart, "cart saaf karo": ClearCart, "cart rikami kara": ClearCart,

	"back": Back, "go back": Back, "previous": Back, "peeche": Back, "piche jao": Back, "maage": Back,
	"वापस": Back, "मागे": Back,

	"help": Help, "madad": Help, "help me": Help, "what can you do": Help,
	"मदद": Help, "मदत": Help,
}

// cancelExact lists the phrases that cancel even inside a critical flow state.
var cancelExact = map[string]bool{
	"cancel": true, "stop": true, "quit": true, "exit": true, "abort": true,
	"cancel karo": true, "band karo": true, "radd karo": true, "radd kara": true,
	"रद्द": true, "रद्द करो": true, "रद्द करा": true,
}

// Normalize lowercases, trims, strips edge punctuation, and collapses spaces.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	s = strings.TrimPrefix(s, "/")
	return strings.Join(strings.Fields(s), " ")
}

// Match returns the command named by text when the whole message is a
// command keyword.
func Match(text string) (Name, bool) {
	n, ok := keywords[Normalize(text)]
	return n, ok
}

// DetectExactCancel reports whether text is exactly a cancel phrase.
// Unlike Match it ignores loose synonyms such as "ruko".
func DetectExactCancel(text string) bool {
	return cancelExact[Normalize(text)]
}

// IsDestructive reports whether cmd discards in-flight state.
func IsDestructive(cmd Name) bool {
	switch cmd {
	case Cancel, Reset, Restart:
		return true
	}
	return false
}
