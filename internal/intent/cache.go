package intent

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// DefaultTriggerTTL is how long a trigger snapshot is served before refresh.
const DefaultTriggerTTL = 60 * time.Second

const (
	refreshTimeout = 2 * time.Second
	refreshBackoff = 10 * time.Second
)

// TriggerRule maps intents to a flow.
type TriggerRule struct {
	FlowID   string
	Triggers []string
	Priority int
	Enabled  bool
}

// Snapshot is an immutable view of the trigger rules. Never mutated after
// construction.
type Snapshot struct {
	Rules    []TriggerRule // priority desc
	LoadedAt time.Time

	byIntent map[string]string
}

// NewSnapshot builds a snapshot from rules. Disabled rules are dropped, rules
// are ordered by priority desc, and for a trigger claimed by several rules the
// highest-priority rule registered first wins.
func NewSnapshot(rules []TriggerRule, loadedAt time.Time) *Snapshot {
	ordered := make([]TriggerRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled || r.FlowID == "" {
			continue
		}
		r.Triggers = append([]string(nil), r.Triggers...)
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	byIntent := make(map[string]string)
	for _, r := range ordered {
		for _, t := range r.Triggers {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				continue
			}
			if _, taken := byIntent[key]; !taken {
				byIntent[key] = r.FlowID
			}
		}
	}
	return &Snapshot{Rules: ordered, LoadedAt: loadedAt, byIntent: byIntent}
}

// Lookup returns the flow triggered by intent.
func (s *Snapshot) Lookup(intent string) (string, bool) {
	if s == nil {
		return "", false
	}
	flow, ok := s.byIntent[strings.ToLower(strings.TrimSpace(intent))]
	return flow, ok
}

// Len returns the number of distinct triggers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byIntent)
}

// TriggerCache serves trigger snapshots, reloading from the store when the
// current one is older than ttl. Refresh failures keep the previous snapshot
// and hold off further loads for a backoff period.
type TriggerCache struct {
	src        store.FlowTriggerStore
	ttl        time.Duration
	timeout    time.Duration
	backoff    time.Duration
	snap       atomic.Pointer[Snapshot]
	retryAfter atomic.Int64 // unix nanos; zero when healthy
	group      singleflight.Group
	now        func() time.Time
}

func NewTriggerCache(src store.FlowTriggerStore, ttl time.Duration) *TriggerCache {
	if ttl <= 0 {
		ttl = DefaultTriggerTTL
	}
	c := &TriggerCache{src: src, ttl: ttl, timeout: refreshTimeout, backoff: refreshBackoff, now: time.Now}
	c.snap.Store(NewSnapshot(nil, time.Time{}))
	return c
}

// Refresh reloads rules from the store and swaps the snapshot.
// Concurrent callers share one load.
func (c *TriggerCache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		rows, err := c.src.ListEnabled(ctx)
		if err != nil {
			c.retryAfter.Store(c.now().Add(c.backoff).UnixNano())
			return nil, err
		}
		c.retryAfter.Store(0)
		rules := make([]TriggerRule, len(rows))
		for i, r := range rows {
			rules[i] = TriggerRule{FlowID: r.FlowID, Triggers: r.Triggers, Priority: r.Priority, Enabled: r.Enabled}
		}
		snap := NewSnapshot(rules, c.now())
		c.snap.Store(snap)
		slog.Debug("trigger cache refreshed", "rules", len(snap.Rules), "triggers", snap.Len())
		return nil, nil
	})
	return err
}

// Get returns the current snapshot, refreshing first when it is stale.
func (c *TriggerCache) Get(ctx context.Context) *Snapshot {
	cur := c.snap.Load()
	now := c.now()
	if now.Sub(cur.LoadedAt) < c.ttl {
		return cur
	}
	if ra := c.retryAfter.Load(); ra != 0 && now.UnixNano() < ra {
		return cur
	}
	if err := c.Refresh(ctx); err != nil {
		slog.Warn("trigger cache refresh failed, serving previous snapshot", "error", err, "age", c.now().Sub(cur.LoadedAt))
		return cur
	}
	return c.snap.Load()
}

// Current returns the snapshot without refreshing.
func (c *TriggerCache) Current() *Snapshot { return c.snap.Load() }
