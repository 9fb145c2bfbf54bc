package store

import "context"

// FlowTrigger maps a set of intents to a flow.
type FlowTrigger struct {
	FlowID   string   `json:"flow_id"`
	Triggers []string `json:"triggers"`
	Priority int      `json:"priority"`
	Enabled  bool     `json:"enabled"`
}

// FlowTriggerStore is the backing source for the intent trigger cache.
type FlowTriggerStore interface {
	// ListEnabled returns enabled rules ordered by priority, highest first.
	ListEnabled(ctx context.Context) ([]FlowTrigger, error)
	Upsert(ctx context.Context, t FlowTrigger) error
}
