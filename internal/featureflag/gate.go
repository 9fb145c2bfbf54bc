// Package featureflag decides whether an inbound event takes the new routing
// path or the legacy agent-only path.
package featureflag

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

// Rollout strategies.
const (
	StrategyHash    = "hash"
	StrategyRandom  = "random"
	StrategyChannel = "channel"
)

// Config is one immutable flag snapshot.
type Config struct {
	Strategy           string         `json:"strategy"`
	Percentage         int            `json:"percentage"`
	ChannelPercentages map[string]int `json:"channel_percentages,omitempty"`
	KillSwitch         bool           `json:"kill_switch"`
}

// FromConfig converts the flags section of the app config.
func FromConfig(c config.FlagsConfig) Config {
	cfg := Config{
		Strategy:   c.Strategy,
		Percentage: c.Percentage,
		KillSwitch: c.KillSwitch,
	}
	if len(c.ChannelPercentages) > 0 {
		cfg.ChannelPercentages = make(map[string]int, len(c.ChannelPercentages))
		for ch, p := range c.ChannelPercentages {
			cfg.ChannelPercentages[strings.ToLower(ch)] = p
		}
	}
	return cfg
}

// Gate evaluates rollout decisions against the current snapshot.
// Safe for concurrent use; Update swaps the snapshot atomically.
type Gate struct {
	snap atomic.Pointer[Config]
	intn func(n int) int

	mu        sync.Mutex
	listeners []func(Config)
}

func New(cfg Config) *Gate {
	g := &Gate{intn: rand.IntN}
	g.Update(cfg)
	return g
}

// Update replaces the active snapshot.
func (g *Gate) Update(cfg Config) {
	c := cfg
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "" {
		c.Strategy = StrategyHash
	}
	g.snap.Store(&c)

	g.mu.Lock()
	listeners := g.listeners
	g.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// OnUpdate registers fn to run after every snapshot swap.
func (g *Gate) OnUpdate(fn func(Config)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

// Snapshot returns the active config.
func (g *Gate) Snapshot() Config {
	return *g.snap.Load()
}

// ShouldUseNewPath reports whether identifier on channel is inside the rollout.
func (g *Gate) ShouldUseNewPath(identifier, channel string) bool {
	c := g.snap.Load()
	if c.KillSwitch {
		return false
	}

	switch c.Strategy {
	case StrategyRandom:
		return g.intn(100) < clampPercent(c.Percentage)
	case StrategyChannel:
		pct, ok := c.ChannelPercentages[strings.ToLower(channel)]
		if !ok {
			pct = c.Percentage
		}
		return Bucket(identifier) < clampPercent(pct)
	default:
		return Bucket(identifier) < clampPercent(c.Percentage)
	}
}

// Bucket maps an identifier to a stable value in [0,100).
func Bucket(identifier string) int {
	sum := sha256.Sum256([]byte(identifier))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
