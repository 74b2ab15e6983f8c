package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// EventPublisher broadcasts event.appended notices for WebSocket delivery.
// The events-table row itself is written by the Event Lineage Store (C1,
// pkg/lineage); this publisher only runs the pg_notify half of that same
// transaction, so the caller must supply the *sql.Tx the row was inserted on.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a new EventPublisher.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// PublishAppended broadcasts an event.appended notice on the owning
// instance's channel within tx, so the NOTIFY only fires if the insert's
// transaction commits (pg_notify is transactional — held until COMMIT). Call
// this after the events-table insert and before tx.Commit().
func (p *EventPublisher) PublishAppended(ctx context.Context, tx *sql.Tx, payload EventAppendedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal EventAppendedPayload: %w", err)
	}

	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", InstanceChannel(payload.InstanceID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// PublishAppendedNow broadcasts an event.appended notice directly on p.db,
// outside any caller transaction. Used when the inserting transaction is an
// ent.Tx the caller cannot hand us a raw *sql.Tx for (pkg/lineage.Store):
// the notice fires just after commit instead of inside it, trading strict
// atomicity for decoupling from ent's transaction internals — acceptable
// since NOTIFY delivery is already best-effort and catchup covers the gap.
func (p *EventPublisher) PublishAppendedNow(ctx context.Context, payload EventAppendedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal EventAppendedPayload: %w", err)
	}
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", InstanceChannel(payload.InstanceID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// PublishInstanceStatus broadcasts a transient instance.status notice to both
// the instance's own channel and the supervisor-wide dashboard channel. Not
// persisted — lost if no subscriber is listening at the time, which is
// acceptable since instance status is also derivable from the Instance
// Registry (C3) on demand.
func (p *EventPublisher) PublishInstanceStatus(ctx context.Context, payload InstanceStatusPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal InstanceStatusPayload: %w", err)
	}
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", InstanceChannel(payload.InstanceID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", GlobalInstancesChannel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields, so the client knows to
// re-fetch the full row from the Event Lineage Store instead of trusting the
// NOTIFY payload.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs to
// fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type        string `json:"type"`
		EventID     string `json:"event_id"`
		InstanceID  string `json:"instance_id"`
		SequenceNum *int   `json:"sequence_num,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":        routing.Type,
		"event_id":    routing.EventID,
		"instance_id": routing.InstanceID,
		"truncated":   true,
	}
	if routing.SequenceNum != nil {
		truncated["sequence_num"] = *routing.SequenceNum
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
