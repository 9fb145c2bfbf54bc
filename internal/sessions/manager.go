package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Session is the conversation state of one canonical identifier.
type Session struct {
	Identifier string    `json:"identifier"`
	Data       Data      `json:"data"`
	Channel    string    `json:"channel,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

func (s *Session) clone() *Session {
	out := *s
	out.Data = s.Data.Clone()
	return &out
}

// SessionInfo is the listing view of a session.
type SessionInfo struct {
	Identifier string    `json:"identifier"`
	ActiveFlow string    `json:"activeFlow,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// Manager keeps sessions in memory and, when dir is set, mirrors each one
// to dir/<identifier>.json on Save. Callers always receive copies.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	dir      string
	now      func() time.Time
}

func NewManager(dir string) *Manager {
	m := &Manager{sessions: make(map[string]*Session), dir: dir, now: time.Now}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Warn("sessions: cannot create storage dir", "dir", dir, "error", err)
		}
		m.load()
	}
	return m
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.clone(), true
	}
	return nil, false
}

func (m *Manager) GetOrCreate(id string) *Session {
	return m.update(id, false, nil)
}

// Replace swaps the whole data map. Concurrent writers: last one wins.
func (m *Manager) Replace(id string, data Data) *Session {
	return m.update(id, true, func(s *Session) { s.Data = data.Clone() })
}

// Merge applies partial; nil values remove keys.
func (m *Manager) Merge(id string, partial map[string]any) *Session {
	return m.update(id, true, func(s *Session) { s.Data.Merge(partial) })
}

// UpdateMetadata records where the user last wrote from. Empty values keep
// the previous ones.
func (m *Manager) UpdateMetadata(id, channel, platform string) {
	m.update(id, true, func(s *Session) {
		if channel != "" {
			s.Channel = channel
		}
		if platform != "" {
			s.Platform = platform
		}
	})
}

// update creates the session if missing and applies fn under the write lock.
func (m *Manager) update(id string, touch bool, fn func(*Session)) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		now := m.now()
		s = &Session{Identifier: id, Data: Data{}, Created: now, Updated: now}
		m.sessions[id] = s
	}
	if fn != nil {
		fn(s)
	}
	if touch {
		s.Updated = m.now()
	}
	return s.clone()
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.dir == "" {
		return nil
	}
	path, err := m.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, s := range m.sessions {
		out = append(out, SessionInfo{
			Identifier: id,
			ActiveFlow: s.Data.String(KeyActiveFlowID),
			Channel:    s.Channel,
			Created:    s.Created,
			Updated:    s.Updated,
		})
	}
	return out
}

// Save writes the session to disk. It is a no-op for in-memory managers
// and unknown identifiers.
func (m *Manager) Save(id string) error {
	if m.dir == "" {
		return nil
	}
	s, ok := m.Get(id)
	if !ok {
		return nil
	}
	path, err := m.path(id)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return writeFileAtomic(m.dir, path, body)
}

func (m *Manager) path(id string) (string, error) {
	stem := fileStem(id)
	if stem == "" || stem == "." || !filepath.IsLocal(stem) {
		return "", fmt.Errorf("session id %q: %w", id, os.ErrInvalid)
	}
	return filepath.Join(m.dir, stem+".json"), nil
}

// writeFileAtomic writes through a temp file in dir so readers never see a
// partial session.
func writeFileAtomic(dir, path string, body []byte) error {
	tmp, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (m *Manager) load() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		slog.Warn("sessions: cannot read storage dir", "dir", m.dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			slog.Warn("sessions: skipping unreadable file", "file", e.Name(), "error", err)
			continue
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil || s.Identifier == "" {
			slog.Warn("sessions: skipping malformed file", "file", e.Name(), "error", err)
			continue
		}
		if s.Data == nil {
			s.Data = Data{}
		}
		m.sessions[s.Identifier] = &s
	}
	slog.Debug("sessions loaded", "dir", m.dir, "count", len(m.sessions))
}

// fileStem maps an identifier to a file name: "+9198..." and
// "telegram:123" carry characters kept off disk.
func fileStem(id string) string {
	return strings.NewReplacer(":", "_", "+", "p", "/", "_", `\`, "_").Replace(id)
}
