// Package upgrade gates startup on the database schema and runs the data
// hooks that follow SQL migrations.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the newest file in migrations/.
const RequiredSchemaVersion uint = 2

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// SchemaState classifies a database against RequiredSchemaVersion.
type SchemaState string

const (
	StateCurrent  SchemaState = "current"
	StateFresh    SchemaState = "fresh" // no schema_migrations table yet
	StateOutdated SchemaState = "outdated"
	StateDirty    SchemaState = "dirty"
	StateAhead    SchemaState = "ahead"
)

// SchemaStatus is the outcome of CheckSchema.
type SchemaStatus struct {
	State           SchemaState
	CurrentVersion  uint
	RequiredVersion uint
}

// Compatible reports whether the gateway may start on this schema.
func (s *SchemaStatus) Compatible() bool { return s.State == StateCurrent }

// CheckSchema reads the golang-migrate bookkeeping row.
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	var table sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('schema_migrations')::text").Scan(&table); err != nil {
		return nil, fmt.Errorf("look up schema_migrations: %w", err)
	}
	if !table.Valid {
		s.State = StateFresh
		return s, nil
	}

	var dirty bool
	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&s.CurrentVersion, &dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.State = StateFresh
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	switch {
	case dirty:
		s.State = StateDirty
	case s.CurrentVersion > s.RequiredVersion:
		s.State = StateAhead
	case s.CurrentVersion < s.RequiredVersion:
		s.State = StateOutdated
	default:
		s.State = StateCurrent
	}
	return s, nil
}

// Err maps the state to its sentinel; fresh databases count as outdated.
func (s *SchemaStatus) Err() error {
	switch s.State {
	case StateDirty:
		return ErrSchemaDirty
	case StateAhead:
		return ErrSchemaAhead
	case StateOutdated, StateFresh:
		return ErrSchemaOutdated
	}
	return nil
}

// Advice tells an operator how to get from s to a startable schema.
func (s *SchemaStatus) Advice() string {
	switch s.State {
	case StateCurrent:
		return ""
	case StateDirty:
		prev := uint(0)
		if s.CurrentVersion > 0 {
			prev = s.CurrentVersion - 1
		}
		return fmt.Sprintf("migration %d failed partway; inspect it, then run:\n"+
			"  chatrelay migrate force %d\n  chatrelay migrate up", s.CurrentVersion, prev)
	case StateAhead:
		return fmt.Sprintf("schema v%d was written by a newer chatrelay; this build needs v%d",
			s.CurrentVersion, s.RequiredVersion)
	}
	return fmt.Sprintf("schema v%d, need v%d; run:\n  chatrelay migrate up\n"+
		"or start with CHATRELAY_AUTO_UPGRADE=true", s.CurrentVersion, s.RequiredVersion)
}
