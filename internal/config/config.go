package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the chatrelay gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Channels  ChannelsConfig  `json:"channels"`
	Router    RouterConfig    `json:"router"`
	Intent    IntentConfig    `json:"intent"`
	Flags     FlagsConfig     `json:"flags"`
	Providers ProvidersConfig `json:"providers"`
	Sessions  SessionsConfig  `json:"sessions"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// DatabaseConfig configures Postgres for managed mode.
// PostgresDSN is NEVER read from config.json (secret), only from env CHATRELAY_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`              // from env CHATRELAY_POSTGRES_DSN only
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"
}

// IsManagedMode returns true when sessions and trigger rules live in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// RedisConfig enables the shared dedup store and the Redis bus.
// URL comes from env CHATRELAY_REDIS_URL only.
type RedisConfig struct {
	URL    string `json:"-"`
	Prefix string `json:"prefix,omitempty"` // pub/sub channel prefix (default "chatrelay:")
}

// Enabled reports whether a Redis URL is configured.
func (r RedisConfig) Enabled() bool { return r.URL != "" }

// RouterConfig tunes the context router decision pipeline.
type RouterConfig struct {
	CollaboratorTimeoutMs     int      `json:"collaborator_timeout_ms,omitempty"`     // per-call timeout (default 8000)
	FlowSwitchThreshold       float64  `json:"flow_switch_threshold,omitempty"`       // default 0.70
	ChitchatSwitchThreshold   float64  `json:"chitchat_switch_threshold,omitempty"`   // default 0.60 (leaving chit-chat flows)
	CommandConfidenceFloor    float64  `json:"command_confidence_floor,omitempty"`    // ambiguous commands below this are ignored mid-flow (default 0.85)
	OnboardingEnabled         bool     `json:"onboarding_enabled"`
	OnboardingFlowID          string   `json:"onboarding_flow_id,omitempty"`          // default "onboarding_v1"
	NativeOnboardingPlatforms []string `json:"native_onboarding_platforms,omitempty"` // platforms with their own onboarding
	BreakerMaxFailures        int      `json:"breaker_max_failures,omitempty"`        // consecutive failures before opening (default 5)
	BreakerOpenSec            int      `json:"breaker_open_sec,omitempty"`            // open-state duration (default 30)
	FallbackText              string   `json:"fallback_text,omitempty"`               // last-resort reply
}

// CollaboratorTimeout returns the per-call timeout as a duration.
func (r RouterConfig) CollaboratorTimeout() time.Duration {
	if r.CollaboratorTimeoutMs <= 0 {
		return 8 * time.Second
	}
	return time.Duration(r.CollaboratorTimeoutMs) * time.Millisecond
}

// IntentConfig tunes the intent router.
type IntentConfig struct {
	TriggerTTLSec     int                 `json:"trigger_ttl_sec,omitempty"`    // trigger cache TTL (default 60)
	DetectorThreshold float64             `json:"detector_threshold,omitempty"` // default 0.7
	Triggers          []FlowTriggerConfig `json:"triggers,omitempty"`           // standalone-mode rules
}

// FlowTriggerConfig is one trigger rule in standalone mode.
type FlowTriggerConfig struct {
	FlowID   string              `json:"flow_id"`
	Triggers FlexibleStringSlice `json:"triggers"`
	Priority int                 `json:"priority"`
	Enabled  *bool               `json:"enabled,omitempty"` // default true
}

// IsEnabled returns the effective enabled flag.
func (t FlowTriggerConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// FlagsConfig configures new-path rollout.
type FlagsConfig struct {
	Strategy           string         `json:"strategy,omitempty"` // "hash" (default), "random", "channel"
	Percentage         int            `json:"percentage"`
	ChannelPercentages map[string]int `json:"channel_percentages,omitempty"`
	KillSwitch         bool           `json:"kill_switch,omitempty"`
	File               string         `json:"file,omitempty"` // optional JSON5 file watched for live changes
}

// SessionsConfig configures standalone session storage.
type SessionsConfig struct {
	Storage string `json:"storage,omitempty"` // directory for file-backed sessions ("" = memory only)
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP/HTTP endpoint (e.g. "localhost:4318")
	Insecure    bool              `json:"insecure,omitempty"`     // plain HTTP (local collectors)
	ServiceName string            `json:"service_name,omitempty"` // default "chatrelay-gateway"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}
