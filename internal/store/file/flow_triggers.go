package file

import (
	"context"
	"slices"
	"sync"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// StaticTriggerStore serves trigger rules from config (standalone mode).
type StaticTriggerStore struct {
	mu    sync.RWMutex
	rules []store.FlowTrigger
}

func NewStaticTriggerStore(rules []store.FlowTrigger) *StaticTriggerStore {
	return &StaticTriggerStore{rules: slices.Clone(rules)}
}

func (s *StaticTriggerStore) ListEnabled(_ context.Context) ([]store.FlowTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.FlowTrigger, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			r.Triggers = slices.Clone(r.Triggers)
			out = append(out, r)
		}
	}
	// Stable so equal priorities keep config order.
	slices.SortStableFunc(out, func(a, b store.FlowTrigger) int {
		return b.Priority - a.Priority
	})
	return out, nil
}

func (s *StaticTriggerStore) Upsert(_ context.Context, t store.FlowTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].FlowID == t.FlowID {
			s.rules[i] = t
			return nil
		}
	}
	s.rules = append(s.rules, t)
	return nil
}
