package file

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// FileSessionStore wraps sessions.Manager to implement store.SessionStore.
type FileSessionStore struct {
	mgr *sessions.Manager
}

func NewFileSessionStore(mgr *sessions.Manager) *FileSessionStore {
	return &FileSessionStore{mgr: mgr}
}

// Manager returns the underlying sessions.Manager.
func (f *FileSessionStore) Manager() *sessions.Manager { return f.mgr }

func (f *FileSessionStore) Get(_ context.Context, id string) (*store.SessionData, error) {
	s, ok := f.mgr.Get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return sessionToData(s), nil
}

func (f *FileSessionStore) Create(_ context.Context, id string) (*store.SessionData, error) {
	s := f.mgr.GetOrCreate(id)
	if err := f.mgr.Save(id); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sessionToData(s), nil
}

func (f *FileSessionStore) GetOrCreate(ctx context.Context, id string) (*store.SessionData, error) {
	if s, ok := f.mgr.Get(id); ok {
		return sessionToData(s), nil
	}
	return f.Create(ctx, id)
}

func (f *FileSessionStore) Save(_ context.Context, id string, data sessions.Data) error {
	f.mgr.Replace(id, data)
	return f.mgr.Save(id)
}

func (f *FileSessionStore) Update(_ context.Context, id string, partial map[string]any) error {
	f.mgr.Merge(id, partial)
	return f.mgr.Save(id)
}

func (f *FileSessionStore) UpdateMetadata(_ context.Context, id, channel, platform string) error {
	f.mgr.UpdateMetadata(id, channel, platform)
	return f.mgr.Save(id)
}

func (f *FileSessionStore) Delete(_ context.Context, id string) error {
	return f.mgr.Delete(id)
}

func (f *FileSessionStore) List(_ context.Context) ([]store.SessionInfo, error) {
	items := f.mgr.List()
	result := make([]store.SessionInfo, len(items))
	for i, item := range items {
		result[i] = store.SessionInfo{
			Identifier: item.Identifier,
			ActiveFlow: item.ActiveFlow,
			Channel:    item.Channel,
			Created:    item.Created,
			Updated:    item.Updated,
		}
	}
	return result, nil
}

func sessionToData(s *sessions.Session) *store.SessionData {
	return &store.SessionData{
		Identifier: s.Identifier,
		Data:       s.Data,
		Channel:    s.Channel,
		Platform:   s.Platform,
		Created:    s.Created,
		Updated:    s.Updated,
	}
}
