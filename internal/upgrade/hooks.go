package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

func init() {
	RegisterDataHook(2, "002_normalize_trigger_phrases", normalizeTriggerRows)
}

// normalizeTriggerRows lower-cases, trims, and de-duplicates the trigger
// phrases of every flow_triggers row. Rows written by hand before the intent
// cache normalized on load still carry mixed-case duplicates.
func normalizeTriggerRows(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "SELECT flow_id, triggers FROM flow_triggers")
	if err != nil {
		return fmt.Errorf("select flow_triggers: %w", err)
	}
	type row struct {
		flowID   string
		triggers []string
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.flowID, pq.Array(&r.triggers)); err != nil {
			rows.Close()
			return err
		}
		if norm := NormalizeTriggers(r.triggers); !equalStrings(norm, r.triggers) {
			pending = append(pending, row{flowID: r.flowID, triggers: norm})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range pending {
		if _, err := tx.ExecContext(ctx,
			"UPDATE flow_triggers SET triggers = $1, updated_at = NOW() WHERE flow_id = $2",
			pq.Array(r.triggers), r.flowID,
		); err != nil {
			return fmt.Errorf("update %s: %w", r.flowID, err)
		}
	}
	return nil
}

// NormalizeTriggers returns phrases lower-cased and trimmed, first
// occurrence kept, empties dropped.
func NormalizeTriggers(phrases []string) []string {
	seen := make(map[string]bool, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.Join(strings.Fields(p), " "))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
