package checkpoint

import (
	"context"
	"encoding/json"

	"github.com/bmad-run/overseer/ent"
)

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// toMap round-trips a WorkState through JSON into the map[string]any shape
// the ent.Checkpoint.work_state JSON column expects.
func toMap(state WorkState) map[string]any {
	b, err := json.Marshal(state)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func fromMap(m map[string]any) (WorkState, error) {
	var state WorkState
	b, err := json.Marshal(m)
	if err != nil {
		return state, err
	}
	err = json.Unmarshal(b, &state)
	return state, err
}

// withTx runs fn inside an ent transaction, committing on success and
// rolling back on any error (fn's or commit's), matching the
// nextSequenceNum-then-insert pattern used by pkg/lineage.
func withTx(ctx context.Context, client *ent.Client, fn func(tx *ent.Tx) error) error {
	tx, err := client.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
