// Package sessions holds conversation state keyed by canonical identifier.
//
// Every lookup (sessions, dedup keys, rate limits, flag buckets) uses the
// canonical identifier produced here:
//
//	Phone channels:    E.164, e.g. +919876543210
//	Platform channels: {channel}:{platformId}, e.g. telegram:386246614
//
// Phone channels share one identifier space so a user who writes on
// WhatsApp and then calls in by voice lands on the same session.
package sessions

import (
	"strings"
	"unicode"
)

// whatsappSuffixes are JID suffixes some bridges append to phone numbers.
var whatsappSuffixes = []string{"@s.whatsapp.net", "@c.us", "@g.us"}

// NormalizeIdentifier builds the canonical identifier for a sender.
// phoneBased selects E.164 normalization; otherwise the platform id is
// prefixed with the channel name. Returns "" for an empty sender.
func NormalizeIdentifier(channel, raw string, phoneBased bool, defaultCountryCode string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if phoneBased {
		if phone := NormalizePhone(raw, defaultCountryCode); phone != "" {
			return phone
		}
	}
	channel = strings.ToLower(strings.TrimSpace(channel))
	// Already canonical (re-normalizing a stored identifier).
	if channel != "" && strings.HasPrefix(raw, channel+":") {
		return raw
	}
	// Telegram style compound "123456|username": keep the stable numeric part.
	if idx := strings.IndexByte(raw, '|'); idx > 0 {
		raw = raw[:idx]
	}
	if channel == "" {
		return raw
	}
	return channel + ":" + raw
}

// NormalizePhone converts a phone number to E.164. Returns "" when raw does
// not look like a phone number.
//
//	"+91 98765-43210"        → "+919876543210"
//	"0091 9876543210"        → "+919876543210"
//	"9876543210" (cc "91")   → "+919876543210"
//	"09876543210" (cc "91")  → "+919876543210"
//	"whatsapp:+14155550100"  → "+14155550100"
//	"919876543210@c.us"      → "+919876543210"
func NormalizePhone(raw, defaultCountryCode string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")
	s = strings.TrimPrefix(s, "tel:")
	for _, suffix := range whatsappSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}

	plus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	d := digits.String()
	if len(d) < 7 || len(d) > 15 {
		return ""
	}

	cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
	switch {
	case plus:
		return "+" + d
	case strings.HasPrefix(d, "00"):
		return "+" + d[2:]
	case cc != "" && len(d) == 11 && d[0] == '0':
		return "+" + cc + d[1:]
	case cc != "" && len(d) == 10:
		return "+" + cc + d
	default:
		return "+" + d
	}
}

// IsPhoneIdentifier reports whether id is an E.164 canonical identifier.
func IsPhoneIdentifier(id string) bool {
	if len(id) < 8 || id[0] != '+' {
		return false
	}
	for _, r := range id[1:] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
