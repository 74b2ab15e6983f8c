// Package checkpoint implements the Checkpoint Engine (C4): immutable work-
// state snapshots plus resume-instruction generation, and a retention
// cleanup operation (spec §4.4).
package checkpoint

import (
	"context"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/checkpoint"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/google/uuid"
)

// Kind mirrors the ent enum (spec §3).
type Kind string

const (
	KindContextWindow  Kind = "context_window"
	KindEpicCompletion Kind = "epic_completion"
	KindManual         Kind = "manual"
)

// Engine is the Checkpoint Engine.
type Engine struct {
	client *ent.Client
}

// New creates an Engine.
func New(client *ent.Client) *Engine {
	return &Engine{client: client}
}

// Checkpoint is the engine's view of one row, plus its derived resume
// document.
type Checkpoint struct {
	ID                   string
	InstanceID           string
	Kind                 Kind
	SequenceNum          int
	ContextWindowPercent float64
	SnapshotAt           time.Time
	WorkState            WorkState
	Metadata             map[string]any
	ResumeMarkdown       string
}

// Create captures trigger's WorkState as a new immutable checkpoint row
// (spec §4.4). sequence_num is computed as MAX(sequence_num)+1 per instance.
func (e *Engine) Create(ctx context.Context, instanceID string, kind Kind, pct float64, state WorkState, trigger TriggerInfo) (*Checkpoint, error) {
	if instanceID == "" {
		return nil, errs.New(errs.Validation, "instance_id is required", nil)
	}
	if pct < 0 || pct > 100 {
		return nil, errs.New(errs.Validation, "context_window_percent must be in [0,100]", nil)
	}

	workState := toMap(state)
	meta := map[string]any{"trigger_reason": trigger.Reason}

	var row *ent.Checkpoint
	err := withTx(ctx, e.client, func(tx *ent.Tx) error {
		last, err := tx.Checkpoint.Query().
			Where(checkpoint.InstanceID(instanceID)).
			Order(ent.Desc(checkpoint.FieldSequenceNum)).
			First(ctx)
		seq := 1
		if err == nil {
			seq = last.SequenceNum + 1
		} else if !ent.IsNotFound(err) {
			return errs.New(errs.Internal, "failed to determine next sequence_num", err)
		}

		row, err = tx.Checkpoint.Create().
			SetID(uuid.NewString()).
			SetInstanceID(instanceID).
			SetKind(checkpoint.Kind(kind)).
			SetSequenceNum(seq).
			SetContextWindowPercent(pct).
			SetWorkState(workState).
			SetMetadata(meta).
			Save(ctx)
		if err != nil {
			return errs.New(errs.Internal, "failed to create checkpoint", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toCheckpoint(row, state)
}

// Get retrieves a checkpoint by id, along with its generated resume
// instructions (spec §6 "checkpoint.get(id) -> {state, resume_markdown}").
func (e *Engine) Get(ctx context.Context, id string) (*Checkpoint, error) {
	row, err := e.client.Checkpoint.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, errs.New(errs.NotFound, "checkpoint not found", err)
		}
		return nil, errs.New(errs.Internal, "failed to get checkpoint", err)
	}
	state, err := fromMap(row.WorkState)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to decode work_state", err)
	}
	return toCheckpoint(row, state)
}

// List returns checkpoints for instance, optionally filtered by kind.
func (e *Engine) List(ctx context.Context, instanceID string, kind *Kind, limit, offset int) ([]Checkpoint, error) {
	q := e.client.Checkpoint.Query().Where(checkpoint.InstanceID(instanceID))
	if kind != nil {
		q = q.Where(checkpoint.KindEQ(checkpoint.Kind(*kind)))
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.Order(ent.Desc(checkpoint.FieldSequenceNum)).Limit(limit).Offset(offset).All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to list checkpoints", err)
	}
	out := make([]Checkpoint, 0, len(rows))
	for _, row := range rows {
		state, err := fromMap(row.WorkState)
		if err != nil {
			return nil, errs.New(errs.Internal, "failed to decode work_state", err)
		}
		cp, err := toCheckpoint(row, state)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

// CleanupResult reports the outcome of a retention sweep.
type CleanupResult struct {
	Deleted    int
	FreedBytes int64
}

// Cleanup removes checkpoints older than retentionDays (spec §4.4's
// "cleanup operation removes checkpoints older than N days"); manual-kind
// checkpoints are kept regardless of age.
func (e *Engine) Cleanup(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if retentionDays <= 0 {
		return nil, errs.New(errs.Validation, "retention_days must be positive", nil)
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	victims, err := e.client.Checkpoint.Query().
		Where(checkpoint.SnapshotAtLT(cutoff), checkpoint.KindNEQ(checkpoint.KindManual)).
		All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to query expired checkpoints", err)
	}

	var freed int64
	for _, v := range victims {
		freed += estimateSize(v)
	}

	n, err := e.client.Checkpoint.Delete().
		Where(checkpoint.SnapshotAtLT(cutoff), checkpoint.KindNEQ(checkpoint.KindManual)).
		Exec(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to delete expired checkpoints", err)
	}

	return &CleanupResult{Deleted: n, FreedBytes: freed}, nil
}

func estimateSize(row *ent.Checkpoint) int64 {
	b, err := jsonMarshal(row.WorkState)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

func toCheckpoint(row *ent.Checkpoint, state WorkState) (*Checkpoint, error) {
	cp := &Checkpoint{
		ID:                   row.ID,
		InstanceID:           row.InstanceID,
		Kind:                 Kind(row.Kind),
		SequenceNum:          row.SequenceNum,
		ContextWindowPercent: row.ContextWindowPercent,
		SnapshotAt:           row.SnapshotAt,
		WorkState:            state,
		Metadata:             row.Metadata,
	}
	cp.ResumeMarkdown = buildResumeMarkdown(cp)
	return cp, nil
}
