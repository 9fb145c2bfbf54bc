package channels

import "strings"

// Unlimited marks an uncapped numeric capability.
const Unlimited = -1

// Capabilities is the static rendering profile of a channel.
type Capabilities struct {
	MaxButtons       int  `json:"maxButtons"` // 0 = none, Unlimited = no cap
	SupportsLists    bool `json:"supportsLists"`
	SupportsImages   bool `json:"supportsImages"`
	SupportsLocation bool `json:"supportsLocation"`
	MaxTextLength    int  `json:"maxTextLength"` // Unlimited = no cap
}

// Channel names with a known profile.
const (
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelWhatsApp = "whatsapp"
	ChannelWeb      = "web"
	ChannelVoice    = "voice"
	ChannelSMS      = "sms"
)

var capabilityTable = map[string]Capabilities{
	ChannelWhatsApp: {MaxButtons: 3, SupportsLists: true, SupportsImages: true, SupportsLocation: true, MaxTextLength: 4096},
	ChannelTelegram: {MaxButtons: 8, SupportsLists: false, SupportsImages: true, SupportsLocation: true, MaxTextLength: 4096},
	ChannelDiscord:  {MaxButtons: 5, SupportsLists: false, SupportsImages: true, SupportsLocation: false, MaxTextLength: 2000},
	ChannelWeb:      {MaxButtons: Unlimited, SupportsLists: true, SupportsImages: true, SupportsLocation: true, MaxTextLength: Unlimited},
	ChannelVoice:    {MaxButtons: 0, MaxTextLength: 500},
	ChannelSMS:      {MaxButtons: 0, MaxTextLength: 1600},
}

// unknownCapabilities is the text-only profile for unlisted channels.
var unknownCapabilities = Capabilities{MaxButtons: 0, MaxTextLength: 4096}

// CapabilitiesFor returns the profile for a channel name. Unknown channels
// get a conservative text-only profile.
func CapabilitiesFor(channel string) Capabilities {
	if c, ok := capabilityTable[strings.ToLower(channel)]; ok {
		return c
	}
	return unknownCapabilities
}

// KnownChannels lists channels with a dedicated profile.
func KnownChannels() []string {
	names := make([]string, 0, len(capabilityTable))
	for name := range capabilityTable {
		names = append(names, name)
	}
	return names
}
