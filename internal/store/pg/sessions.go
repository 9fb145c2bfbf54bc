package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// PGSessionStore implements store.SessionStore backed by Postgres.
// Reads are served from an in-memory cache; every write goes to the table.
// With several consumer instances the cache can lag behind another
// instance's writes, which store.DurableFlowReader lets callers detect.
type PGSessionStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]*store.SessionData
}

func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{
		db:    db,
		cache: make(map[string]*store.SessionData),
	}
}

func (s *PGSessionStore) Get(ctx context.Context, id string) (*store.SessionData, error) {
	s.mu.RLock()
	if cached, ok := s.cache[id]; ok {
		out := cached.Clone()
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	data, err := s.loadFromDB(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[id] = data
	s.mu.Unlock()
	return data.Clone(), nil
}

func (s *PGSessionStore) Create(ctx context.Context, id string) (*store.SessionData, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, identifier, data, created_at, updated_at)
		 VALUES ($1, $2, '{}'::jsonb, $3, $4) ON CONFLICT (identifier) DO NOTHING`,
		uuid.Must(uuid.NewV7()), id, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	// A concurrent creator may have won; read back whatever is stored.
	return s.Reload(ctx, id)
}

func (s *PGSessionStore) GetOrCreate(ctx context.Context, id string) (*store.SessionData, error) {
	data, err := s.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return s.Create(ctx, id)
	}
	return data, err
}

func (s *PGSessionStore) Save(ctx context.Context, id string, data sessions.Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET data = $1, updated_at = $2 WHERE identifier = $3`,
		raw, now, id,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	s.mu.Lock()
	if cached, ok := s.cache[id]; ok {
		cached.Data = data.Clone()
		cached.Updated = now
	}
	s.mu.Unlock()
	return nil
}

// Update applies the merge in a single statement: set keys are merged with
// jsonb ||, nil keys are removed with jsonb - text[].
func (s *PGSessionStore) Update(ctx context.Context, id string, partial map[string]any) error {
	set := make(map[string]any, len(partial))
	var remove []string
	for k, v := range partial {
		if v == nil {
			remove = append(remove, k)
			continue
		}
		set[k] = v
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal session patch: %w", err)
	}
	if remove == nil {
		remove = []string{}
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET data = (data || $1::jsonb) - $2::text[], updated_at = $3
		 WHERE identifier = $4`,
		raw, pq.Array(remove), now, id,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	s.mu.Lock()
	if cached, ok := s.cache[id]; ok {
		cached.Data.Merge(partial)
		cached.Updated = now
	}
	s.mu.Unlock()
	return nil
}

func (s *PGSessionStore) UpdateMetadata(ctx context.Context, id, channel, platform string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET channel = COALESCE($1, channel), platform = COALESCE($2, platform), updated_at = $3
		 WHERE identifier = $4`,
		nilStr(channel), nilStr(platform), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update session metadata: %w", err)
	}

	s.mu.Lock()
	if cached, ok := s.cache[id]; ok {
		if channel != "" {
			cached.Channel = channel
		}
		if platform != "" {
			cached.Platform = platform
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *PGSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE identifier = $1", id)
	return err
}

func (s *PGSessionStore) List(ctx context.Context) ([]store.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, data->>'activeFlowId', channel, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.SessionInfo
	for rows.Next() {
		var id string
		var flow, channel *string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &flow, &channel, &createdAt, &updatedAt); err != nil {
			continue
		}
		result = append(result, store.SessionInfo{
			Identifier: id,
			ActiveFlow: derefStr(flow),
			Channel:    derefStr(channel),
			Created:    createdAt,
			Updated:    updatedAt,
		})
	}
	return result, rows.Err()
}

// DurableFlow reads the active flow straight from the table, bypassing the cache.
func (s *PGSessionStore) DurableFlow(ctx context.Context, id string) (sessions.FlowState, time.Time, error) {
	var raw []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT jsonb_build_object(
			'activeFlowId', data->'activeFlowId',
			'flowRunId', data->'flowRunId',
			'flowContext', data->'flowContext'), updated_at
		 FROM sessions WHERE identifier = $1`, id,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sessions.FlowState{}, time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return sessions.FlowState{}, time.Time{}, err
	}

	var d sessions.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return sessions.FlowState{}, time.Time{}, fmt.Errorf("decode flow fields: %w", err)
	}
	flow, _ := d.ActiveFlow()
	return flow, updatedAt, nil
}

// Reload drops the cached copy and reads the session from the table.
func (s *PGSessionStore) Reload(ctx context.Context, id string) (*store.SessionData, error) {
	data, err := s.loadFromDB(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[id] = data
	s.mu.Unlock()
	return data.Clone(), nil
}

// --- helpers ---

func (s *PGSessionStore) loadFromDB(ctx context.Context, id string) (*store.SessionData, error) {
	var identifier string
	var raw []byte
	var channel, platform *string
	var createdAt, updatedAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT identifier, data, channel, platform, created_at, updated_at
		 FROM sessions WHERE identifier = $1`, id,
	).Scan(&identifier, &raw, &channel, &platform, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	data := sessions.Data{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode session data: %w", err)
		}
	}

	return &store.SessionData{
		Identifier: identifier,
		Data:       data,
		Channel:    derefStr(channel),
		Platform:   derefStr(platform),
		Created:    createdAt,
		Updated:    updatedAt,
	}, nil
}
