package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:               "0.0.0.0",
			Port:               18790,
			PhoneChannels:      FlexibleStringSlice{"whatsapp", "voice", "sms"},
			SyncChannels:       FlexibleStringSlice{"web", "voice"},
			DedupWindowMs:      5000,
			DedupTTLSec:        30,
			LockTTLSec:         60,
			RateLimitRPM:       30,
			PublishAttempts:    3,
			PublishBaseDelayMs: 200,
			ConsumerWorkers:    4,
			MaxMessageChars:    4000,
		},
		Channels: ChannelsConfig{
			Voice: VoiceConfig{RateLimitRPM: 30},
		},
		Router: RouterConfig{
			CollaboratorTimeoutMs:   8000,
			FlowSwitchThreshold:     0.70,
			ChitchatSwitchThreshold: 0.60,
			CommandConfidenceFloor:  0.85,
			OnboardingEnabled:       true,
			OnboardingFlowID:        "onboarding_v1",
			BreakerMaxFailures:      5,
			BreakerOpenSec:          30,
			FallbackText:            "Sorry, something went wrong on our side. Please try again in a moment.",
		},
		Intent: IntentConfig{
			TriggerTTLSec:     60,
			DetectorThreshold: 0.7,
		},
		Flags: FlagsConfig{
			Strategy:   "hash",
			Percentage: 100,
		},
		Providers: ProvidersConfig{
			LLM: ProviderConfig{
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
		},
		Sessions: SessionsConfig{
			Storage: "~/.chatrelay/sessions",
		},
		Redis: RedisConfig{Prefix: "chatrelay:"},
		Telemetry: TelemetryConfig{
			ServiceName: "chatrelay-gateway",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Collaborators
	envStr("CHATRELAY_NLU_URL", &c.Providers.NLU.APIBase)
	envStr("CHATRELAY_NLU_API_KEY", &c.Providers.NLU.APIKey)
	envStr("CHATRELAY_LLM_URL", &c.Providers.LLM.APIBase)
	envStr("CHATRELAY_LLM_API_KEY", &c.Providers.LLM.APIKey)
	envStr("CHATRELAY_LLM_MODEL", &c.Providers.LLM.Model)
	envStr("CHATRELAY_FLOW_ENGINE_URL", &c.Providers.FlowEngine.APIBase)
	envStr("CHATRELAY_FLOW_ENGINE_API_KEY", &c.Providers.FlowEngine.APIKey)
	envStr("CHATRELAY_BUSINESS_URL", &c.Providers.Business.APIBase)
	envStr("CHATRELAY_BUSINESS_API_KEY", &c.Providers.Business.APIKey)

	// Channels
	envStr("CHATRELAY_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("CHATRELAY_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("CHATRELAY_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("CHATRELAY_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("CHATRELAY_VOICE_SECRET", &c.Channels.Voice.Secret)

	// Auto-enable channels if credentials are provided via env
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Channels.WhatsApp.BridgeURL != "" {
		c.Channels.WhatsApp.Enabled = true
	}

	// Gateway
	envStr("CHATRELAY_HOST", &c.Gateway.Host)
	if v := os.Getenv("CHATRELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("CHATRELAY_DEFAULT_COUNTRY_CODE", &c.Gateway.DefaultCountryCode)
	envInt("CHATRELAY_RATE_LIMIT_RPM", &c.Gateway.RateLimitRPM)
	envInt("CHATRELAY_CONSUMER_WORKERS", &c.Gateway.ConsumerWorkers)
	if v := os.Getenv("CHATRELAY_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	// Rollout
	envStr("CHATRELAY_FLAG_STRATEGY", &c.Flags.Strategy)
	envInt("CHATRELAY_FLAG_PERCENTAGE", &c.Flags.Percentage)
	envBool("CHATRELAY_KILL_SWITCH", &c.Flags.KillSwitch)
	envStr("CHATRELAY_FLAGS_FILE", &c.Flags.File)

	// Storage
	envStr("CHATRELAY_SESSIONS_STORAGE", &c.Sessions.Storage)
	envStr("CHATRELAY_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CHATRELAY_MODE", &c.Database.Mode)
	envStr("CHATRELAY_REDIS_URL", &c.Redis.URL)
	envStr("CHATRELAY_REDIS_PREFIX", &c.Redis.Prefix)

	// Telemetry
	envStr("CHATRELAY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CHATRELAY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("CHATRELAY_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("CHATRELAY_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// SessionsPath returns the expanded session storage directory.
func (c *Config) SessionsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Sessions.Storage)
}

// IsPhoneChannel reports whether sender ids on channel are phone numbers.
func (c *Config) IsPhoneChannel(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.Gateway.PhoneChannels {
		if strings.EqualFold(ch, channel) {
			return true
		}
	}
	return false
}

// IsSyncChannel reports whether channel is answered in the same call.
func (c *Config) IsSyncChannel(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.Gateway.SyncChannels {
		if strings.EqualFold(ch, channel) {
			return true
		}
	}
	return false
}

// TriggerRules returns the enabled standalone trigger rules.
func (c *Config) TriggerRules() []FlowTriggerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FlowTriggerConfig, 0, len(c.Intent.Triggers))
	for _, t := range c.Intent.Triggers {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by the doctor command and the config dump endpoint.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Providers.NLU.APIKey)
	maskNonEmpty(&cp.Providers.LLM.APIKey)
	maskNonEmpty(&cp.Providers.FlowEngine.APIKey)
	maskNonEmpty(&cp.Providers.Business.APIKey)

	maskNonEmpty(&cp.Gateway.Token)

	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
