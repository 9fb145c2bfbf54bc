package config

import "time"

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Voice    VoiceConfig    `json:"voice"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token"`
	Proxy     string              `json:"proxy,omitempty"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

type WhatsAppConfig struct {
	Enabled   bool                `json:"enabled"`
	BridgeURL string              `json:"bridge_url"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

// VoiceConfig enables the transcript webhook and streaming bridge endpoints.
type VoiceConfig struct {
	Enabled      bool   `json:"enabled"`
	Secret       string `json:"-"`                        // shared secret from env CHATRELAY_VOICE_SECRET
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"` // per-source webhook limit (default 30)
}

// GatewayConfig controls ingress: HTTP server, dedup, rate limiting, and publish retries.
type GatewayConfig struct {
	Host               string              `json:"host"`
	Port               int                 `json:"port"`
	Token              string              `json:"token,omitempty"`                // bearer token for WS/HTTP auth
	AllowedOrigins     []string            `json:"allowed_origins,omitempty"`      // WebSocket CORS whitelist (empty = allow all)
	DefaultCountryCode string              `json:"default_country_code,omitempty"` // for local phone numbers (e.g. "91")
	PhoneChannels      FlexibleStringSlice `json:"phone_channels,omitempty"`       // channels whose sender ids are phone numbers
	SyncChannels       FlexibleStringSlice `json:"sync_channels,omitempty"`        // channels answered in the same call
	DedupWindowMs      int64               `json:"dedup_window_ms,omitempty"`      // bucket width for duplicate detection (default 5000)
	DedupTTLSec        int                 `json:"dedup_ttl_sec,omitempty"`        // dedup key lifetime (default 30)
	LockTTLSec         int                 `json:"lock_ttl_sec,omitempty"`         // consumer message lock lifetime (default 60)
	RateLimitRPM       int                 `json:"rate_limit_rpm,omitempty"`       // per identifier (0 = disabled)
	PublishAttempts    int                 `json:"publish_attempts,omitempty"`     // default 3
	PublishBaseDelayMs int                 `json:"publish_base_delay_ms,omitempty"` // default 200, doubled per attempt
	ConsumerWorkers    int                 `json:"consumer_workers,omitempty"`     // bus subscribers per process (default 4)
	MaxMessageChars    int                 `json:"max_message_chars,omitempty"`    // inbound text cap (default 4000)
}

func (g GatewayConfig) DedupTTL() time.Duration {
	if g.DedupTTLSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.DedupTTLSec) * time.Second
}

func (g GatewayConfig) LockTTL() time.Duration {
	if g.LockTTLSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(g.LockTTLSec) * time.Second
}

// ProvidersConfig holds endpoints of external collaborators.
type ProvidersConfig struct {
	NLU        ProviderConfig `json:"nlu"`         // primary intent classifier
	LLM        ProviderConfig `json:"llm"`         // OpenAI-compatible: secondary classifier + agent
	FlowEngine ProviderConfig `json:"flow_engine"` // dialogue state machine service
	Business   ProviderConfig `json:"business"`    // orders, wallet, loyalty, wishlist
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Configured reports whether the collaborator has an endpoint.
func (p ProviderConfig) Configured() bool { return p.APIBase != "" }
