package store

import (
	"context"
	"errors"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
)

// ErrNotFound is returned when a session or row does not exist.
var ErrNotFound = errors.New("not found")

// SessionData holds conversation state for one canonical identifier.
type SessionData struct {
	Identifier string        `json:"identifier"`
	Data       sessions.Data `json:"data"`
	Channel    string        `json:"channel,omitempty"`
	Platform   string        `json:"platform,omitempty"`
	Created    time.Time     `json:"created"`
	Updated    time.Time     `json:"updated"`
}

// Clone returns a copy safe to mutate without touching store state.
func (s *SessionData) Clone() *SessionData {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = s.Data.Clone()
	return &out
}

// SessionInfo is lightweight session metadata for listing.
type SessionInfo struct {
	Identifier string    `json:"identifier"`
	ActiveFlow string    `json:"activeFlow,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// SessionStore manages per-identifier conversation state.
// Writes are last-writer-wins; no optimistic concurrency.
type SessionStore interface {
	// Get returns ErrNotFound when no session exists.
	Get(ctx context.Context, id string) (*SessionData, error)
	Create(ctx context.Context, id string) (*SessionData, error)
	GetOrCreate(ctx context.Context, id string) (*SessionData, error)
	// Save replaces the whole data map.
	Save(ctx context.Context, id string, data sessions.Data) error
	// Update merges partial into the data map in one write; nil values delete keys.
	Update(ctx context.Context, id string, partial map[string]any) error
	UpdateMetadata(ctx context.Context, id, channel, platform string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]SessionInfo, error)
}

// DurableFlowReader is implemented by stores that keep a fast cache in front
// of a durable table. The router compares the cached active flow with the
// durable one and reloads when they disagree.
type DurableFlowReader interface {
	DurableFlow(ctx context.Context, id string) (flow sessions.FlowState, updated time.Time, err error)
	Reload(ctx context.Context, id string) (*SessionData, error)
}
