package file

import (
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// NewFileStores creates the standalone stores: file-backed sessions and
// config-backed trigger rules.
func NewFileStores(cfg store.StoreConfig) *store.Stores {
	return &store.Stores{
		Sessions: NewFileSessionStore(sessions.NewManager(cfg.SessionsStorage)),
		Triggers: NewStaticTriggerStore(cfg.Triggers),
		Close:    func() error { return nil },
	}
}
