package pg

import (
	"fmt"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sessions := NewPGSessionStore(db)
	return &store.Stores{
		Sessions: sessions,
		Triggers: NewPGFlowTriggerStore(db),
		Durable:  sessions,
		Close:    db.Close,
	}, nil
}
