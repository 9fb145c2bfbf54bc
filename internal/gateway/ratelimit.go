package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxLimiterKeys bounds tracked identifiers; idle ones are pruned first.
	maxLimiterKeys = 10000
	limiterIdle    = 10 * time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key (canonical identifier or client id).
// rpm <= 0 disables limiting. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	enabled bool
	now     func() time.Time
}

// NewRateLimiter allows rpm requests per minute per key with the given burst.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		entries: make(map[string]*limiterEntry),
		burst:   burst,
		enabled: rpm > 0,
		now:     time.Now,
	}
	if rl.enabled {
		rl.limit = rate.Every(time.Minute / time.Duration(rpm))
	}
	return rl
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool { return r != nil && r.enabled }

// Allow consumes one token for key.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= maxLimiterKeys {
			r.prune(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (r *RateLimiter) prune(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.lastSeen) >= limiterIdle {
			delete(r.entries, k)
		}
	}
	for len(r.entries) >= maxLimiterKeys {
		for k := range r.entries {
			delete(r.entries, k)
			break
		}
	}
}
