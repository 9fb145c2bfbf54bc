package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// PGFlowTriggerStore implements store.FlowTriggerStore backed by Postgres.
type PGFlowTriggerStore struct {
	db *sql.DB
}

func NewPGFlowTriggerStore(db *sql.DB) *PGFlowTriggerStore {
	return &PGFlowTriggerStore{db: db}
}

const triggerSelectCols = `flow_id, triggers, priority, enabled`

func (s *PGFlowTriggerStore) ListEnabled(ctx context.Context) ([]store.FlowTrigger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+triggerSelectCols+` FROM flow_triggers
		 WHERE enabled = true
		 ORDER BY priority DESC, flow_id`)
	if err != nil {
		return nil, fmt.Errorf("list flow triggers: %w", err)
	}
	defer rows.Close()

	var result []store.FlowTrigger
	for rows.Next() {
		var t store.FlowTrigger
		if err := rows.Scan(&t.FlowID, pq.Array(&t.Triggers), &t.Priority, &t.Enabled); err != nil {
			return nil, fmt.Errorf("scan flow trigger: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *PGFlowTriggerStore) Upsert(ctx context.Context, t store.FlowTrigger) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flow_triggers (flow_id, triggers, priority, enabled, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (flow_id) DO UPDATE SET
			triggers = EXCLUDED.triggers,
			priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`,
		t.FlowID, pq.Array(t.Triggers), t.Priority, t.Enabled, time.Now(),
	)
	return err
}
