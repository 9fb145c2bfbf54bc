package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DataHookFunc rewrites rows after the SQL migration for its schema version.
// It runs inside the transaction that also records it as applied.
type DataHookFunc func(ctx context.Context, tx *sql.Tx) error

type dataHook struct {
	version uint
	name    string
	fn      DataHookFunc
}

var registry []dataHook

// RegisterDataHook adds a hook for schemaVersion. Names are unique; hooks run
// in version order, then registration order.
func RegisterDataHook(schemaVersion uint, name string, fn DataHookFunc) {
	for _, h := range registry {
		if h.name == name {
			panic("upgrade: duplicate data hook " + name)
		}
	}
	registry = append(registry, dataHook{version: schemaVersion, name: name, fn: fn})
	sort.SliceStable(registry, func(i, j int) bool { return registry[i].version < registry[j].version })
}

// PendingHooks lists hooks not yet recorded in data_migrations.
func PendingHooks(ctx context.Context, db *sql.DB) ([]string, error) {
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, h := range registry {
		if !applied[h.name] {
			pending = append(pending, h.name)
		}
	}
	return pending, nil
}

// RunPendingHooks applies every unrecorded hook, each in its own
// transaction. It stops at the first failure; earlier hooks stay applied.
func RunPendingHooks(ctx context.Context, db *sql.DB) (int, error) {
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, h := range registry {
		if applied[h.name] {
			continue
		}
		start := time.Now()
		if err := runHook(ctx, db, h); err != nil {
			return count, err
		}
		slog.Info("data hook applied", "name", h.name, "schema_version", h.version, "duration", time.Since(start))
		count++
	}
	return count, nil
}

func runHook(ctx context.Context, db *sql.DB, h dataHook) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("data hook %q: begin: %w", h.name, err)
	}
	defer tx.Rollback()

	if err := h.fn(ctx, tx); err != nil {
		return fmt.Errorf("data hook %q: %w", h.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO data_migrations (name, version) VALUES ($1, $2)", h.name, h.version,
	); err != nil {
		return fmt.Errorf("data hook %q: record: %w", h.name, err)
	}
	return tx.Commit()
}

// loadApplied creates the bookkeeping table on first use.
func loadApplied(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS data_migrations (
			name       TEXT PRIMARY KEY,
			version    INT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("ensure data_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM data_migrations")
	if err != nil {
		return nil, fmt.Errorf("query data_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
