// Package lineage implements the Event Lineage Store (C1): an append-only
// causal event log with recursive parent-chain queries and cycle-safe
// depth/root maintenance (spec §4.1).
//
// depth and root_uuid are derived by a BEFORE INSERT trigger
// (database.EnsureEventLineageTrigger), not by this package — Append sends
// placeholder values for those two immutable ent fields and re-reads the row
// after insert to pick up what Postgres actually computed. Cycle rejection
// is the trigger's job too (spec §9's resolved open question: "the trigger
// must reject insertions that would create a cycle; the walk function is a
// query helper only").
package lineage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/event"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/masking"
	"github.com/google/uuid"
)

// MaxParentChainDepth bounds the recursive parent-chain walk (spec §4.1).
const MaxParentChainDepth = 1000

// MaxSubtreeDepth bounds get_subtree (spec §4.1).
const MaxSubtreeDepth = 10

// MaxRecentLimit is the hard cap on get_recent (spec §4.1, §6 "limit≤1000").
const MaxRecentLimit = 1000

// Publisher is the subset of *events.EventPublisher the store needs, so the
// live-tail NOTIFY broadcast can be exercised with a fake in tests without
// pkg/lineage importing pkg/events' websocket machinery.
type Publisher interface {
	PublishAppendedNow(ctx context.Context, payload EventAppendedPayload) error
}

// EventAppendedPayload mirrors events.EventAppendedPayload's shape without
// importing it, avoiding a dependency cycle (pkg/events already depends on
// this package's GetEventsSince for catchup replay).
type EventAppendedPayload struct {
	EventID     string
	InstanceID  string
	EventType   string
	ParentUUID  *string
	RootUUID    string
	Depth       int
	SequenceNum int
	EventData   map[string]any
	Timestamp   time.Time
}

// Store is the Event Lineage Store.
type Store struct {
	client    *ent.Client
	db        *sql.DB
	publisher Publisher
}

// New creates a Store backed by the shared ent client and the raw *sql.DB
// it was opened from (needed for transactions and recursive CTEs that ent's
// fluent API cannot express).
func New(client *ent.Client, db *sql.DB) *Store {
	return &Store{client: client, db: db}
}

// SetPublisher wires the live-tail NOTIFY broadcast in (spec §9: additive,
// optional — a supervisor runtime with no dashboard attached runs
// unaffected). Safe to leave unset.
func (s *Store) SetPublisher(p Publisher) {
	s.publisher = p
}

// Record is the store's representation of one event row.
type Record struct {
	ID          string
	InstanceID  string
	EventType   string
	SequenceNum int
	Timestamp   time.Time
	EventData   map[string]any
	ParentUUID  *string
	RootUUID    string
	Depth       int
}

// Append assigns a fresh event_id, computes sequence_num as
// MAX(sequence_num)+1 within the instance, sanitizes the payload (spec §4.2,
// delegated here since C2 always calls through this store and there is no
// other insert path), and inserts. If parent is non-nil and missing, or the
// insert would close a cycle, the trigger raises and this returns a
// translated *errs.Error.
func (s *Store) Append(ctx context.Context, instanceID, eventType string, payload map[string]any, parent *string) (*Record, error) {
	if instanceID == "" || eventType == "" {
		return nil, errs.New(errs.Validation, "instance_id and event_type are required", nil)
	}

	sanitized := masking.SanitizeEventData(payload)
	id := uuid.NewString()

	rec, err := s.appendInTx(ctx, id, instanceID, eventType, sanitized, parent)
	if err != nil {
		return nil, err
	}

	slog.Debug("event appended", "event_id", rec.ID, "instance_id", instanceID, "event_type", eventType, "depth", rec.Depth)
	return rec, nil
}

// appendInTx runs the sequence-number read and the insert in one ent
// transaction so sequence_num assignment is linearizable with respect to
// insertion (spec §5: "the store assigns sequence_num under the same
// transaction that writes the row").
func (s *Store) appendInTx(ctx context.Context, id, instanceID, eventType string, sanitized map[string]any, parent *string) (*Record, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to start transaction", err)
	}

	seq, err := s.nextSequenceNum(ctx, tx, instanceID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	create := tx.Event.Create().
		SetID(id).
		SetInstanceID(instanceID).
		SetEventType(eventType).
		SetSequenceNum(seq).
		SetEventData(sanitized).
		// Placeholders — overwritten by the BEFORE INSERT trigger.
		SetRootUUID(id).
		SetDepth(0)
	if parent != nil {
		create = create.SetParentUUID(*parent)
	}

	row, err := create.Save(ctx)
	if err != nil {
		_ = tx.Rollback()
		return nil, translateInsertErr(err, parent)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.New(errs.Internal, "failed to commit event insert", err)
	}

	rec := toRecord(row)
	s.publish(ctx, rec)
	return rec, nil
}

// publish broadcasts the just-committed row over NOTIFY. Best-effort: a
// publish failure never fails the Append call, since the events table is
// the source of truth and a missed notice is recoverable via catchup.
func (s *Store) publish(ctx context.Context, rec *Record) {
	if s.publisher == nil {
		return
	}
	payload := EventAppendedPayload{
		EventID:     rec.ID,
		InstanceID:  rec.InstanceID,
		EventType:   rec.EventType,
		ParentUUID:  rec.ParentUUID,
		RootUUID:    rec.RootUUID,
		Depth:       rec.Depth,
		SequenceNum: rec.SequenceNum,
		EventData:   rec.EventData,
		Timestamp:   rec.Timestamp,
	}
	if err := s.publisher.PublishAppendedNow(ctx, payload); err != nil {
		slog.Error("failed to publish event.appended notice", "event_id", rec.ID, "error", err)
	}
}

func (s *Store) nextSequenceNum(ctx context.Context, tx *ent.Tx, instanceID string) (int, error) {
	last, err := tx.Event.Query().
		Where(event.InstanceID(instanceID)).
		Order(ent.Desc(event.FieldSequenceNum)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return 1, nil
		}
		return 0, errs.New(errs.Internal, "failed to determine next sequence_num", err)
	}
	return last.SequenceNum + 1, nil
}

func translateInsertErr(err error, parent *string) error {
	msg := err.Error()
	switch {
	case parent != nil && strings.Contains(msg, "parent not found"):
		return errs.New(errs.NotFound, fmt.Sprintf("parent event %q not found", *parent), err)
	case strings.Contains(msg, "cycle detected"):
		return errs.New(errs.Validation, "insert would close a cycle in the event tree", err)
	case strings.Contains(msg, "foreign key"):
		return errs.New(errs.NotFound, "instance not found", err)
	default:
		return errs.New(errs.Internal, "failed to append event", err)
	}
}

// GetParentChain returns the ordered sequence from root down to eventUUID,
// via a depth-bounded recursive CTE (spec §4.1: "must complete in <50ms for
// depth 100").
func (s *Store) GetParentChain(ctx context.Context, eventUUID string, maxDepth int) ([]Record, error) {
	if maxDepth <= 0 || maxDepth > MaxParentChainDepth {
		maxDepth = MaxParentChainDepth
	}

	const q = `
WITH RECURSIVE chain AS (
	SELECT event_id, instance_id, event_type, sequence_num, "timestamp", event_data,
	       parent_uuid, root_uuid, depth, 0 AS walk
	FROM events WHERE event_id = $1
	UNION ALL
	SELECT e.event_id, e.instance_id, e.event_type, e.sequence_num, e."timestamp", e.event_data,
	       e.parent_uuid, e.root_uuid, e.depth, c.walk + 1
	FROM events e JOIN chain c ON e.event_id = c.parent_uuid
	WHERE c.walk < $2
)
SELECT event_id, instance_id, event_type, sequence_num, "timestamp", event_data,
       parent_uuid, root_uuid, depth
FROM chain ORDER BY depth ASC`

	rows, err := s.db.QueryContext(ctx, q, eventUUID, maxDepth)
	if err != nil {
		return nil, errs.New(errs.Internal, "get_parent_chain query failed", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetChildren returns the immediate children of eventUUID, ordered by
// timestamp (spec §4.1).
func (s *Store) GetChildren(ctx context.Context, eventUUID string) ([]Record, error) {
	rows, err := s.client.Event.Query().
		Where(event.ParentUUID(eventUUID)).
		Order(ent.Asc(event.FieldTimestamp)).
		All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "get_children query failed", err)
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = *toRecord(r)
	}
	return out, nil
}

// GetSubtree returns all descendants of rootUUID, ordered by (depth,
// timestamp), bounded to maxDepth additional levels below the root (spec
// §4.1: "must complete in <200ms for 100 descendants").
func (s *Store) GetSubtree(ctx context.Context, rootUUID string, maxDepth int) ([]Record, error) {
	if maxDepth <= 0 || maxDepth > MaxSubtreeDepth {
		maxDepth = MaxSubtreeDepth
	}

	const q = `
WITH RECURSIVE subtree AS (
	SELECT event_id, instance_id, event_type, sequence_num, "timestamp", event_data,
	       parent_uuid, root_uuid, depth, 0 AS rel_depth
	FROM events WHERE event_id = $1
	UNION ALL
	SELECT e.event_id, e.instance_id, e.event_type, e.sequence_num, e."timestamp", e.event_data,
	       e.parent_uuid, e.root_uuid, e.depth, s.rel_depth + 1
	FROM events e JOIN subtree s ON e.parent_uuid = s.event_id
	WHERE s.rel_depth < $2
)
SELECT event_id, instance_id, event_type, sequence_num, "timestamp", event_data,
       parent_uuid, root_uuid, depth
FROM subtree WHERE event_id <> $1 ORDER BY depth ASC, "timestamp" ASC`

	rows, err := s.db.QueryContext(ctx, q, rootUUID, maxDepth)
	if err != nil {
		return nil, errs.New(errs.Internal, "get_subtree query failed", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetRecent returns the most recent limit events for instance, newest last
// (matching §8's "events.recent(i, n) equals the suffix of events.recent(i,
// m>=n)" round-trip property).
func (s *Store) GetRecent(ctx context.Context, instanceID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	rows, err := s.client.Event.Query().
		Where(event.InstanceID(instanceID)).
		Order(ent.Desc(event.FieldSequenceNum)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "get_recent query failed", err)
	}
	out := make([]Record, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = *toRecord(rows[i])
	}
	return out, nil
}

// GetEventsSince returns events for instanceID with sequence_num > sinceSeq,
// oldest first, capped at limit. Used by the live-tail stream's catchup
// replay (pkg/events.EventServiceAdapter) when a subscriber reconnects after
// missing some NOTIFY window.
func (s *Store) GetEventsSince(ctx context.Context, instanceID string, sinceSeq, limit int) ([]*ent.Event, error) {
	if limit <= 0 || limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	rows, err := s.client.Event.Query().
		Where(event.InstanceID(instanceID), event.SequenceNumGT(sinceSeq)).
		Order(ent.Asc(event.FieldSequenceNum)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "get_events_since query failed", err)
	}
	return rows, nil
}

func toRecord(r *ent.Event) *Record {
	return &Record{
		ID:          r.ID,
		InstanceID:  r.InstanceID,
		EventType:   r.EventType,
		SequenceNum: r.SequenceNum,
		Timestamp:   r.Timestamp,
		EventData:   r.EventData,
		ParentUUID:  r.ParentUUID,
		RootUUID:    r.RootUUID,
		Depth:       r.Depth,
	}
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var data []byte
		if err := rows.Scan(&r.ID, &r.InstanceID, &r.EventType, &r.SequenceNum, &r.Timestamp,
			&data, &r.ParentUUID, &r.RootUUID, &r.Depth); err != nil {
			return nil, errs.New(errs.Internal, "failed to scan event row", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &r.EventData); err != nil {
				return nil, errs.New(errs.Internal, "failed to decode event_data", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.Internal, "row iteration failed", err)
	}
	return out, nil
}
