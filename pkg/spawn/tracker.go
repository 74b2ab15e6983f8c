// Package spawn implements the Spawn Tracker (C5): lifecycle rows for child
// agent runs, with non-invasive stall detection via output-file mtime
// polling (spec §4.5).
package spawn

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/spawn"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/google/uuid"
)

// Status mirrors the ent enum (spec §4.5: "running -> {completed|failed|stalled|abandoned}").
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStalled   Status = "stalled"
	StatusAbandoned Status = "abandoned"
)

// Tracker is the Spawn Tracker.
type Tracker struct {
	client             *ent.Client
	stallThreshold     time.Duration
	abandonedThreshold time.Duration
	statFile           func(path string) (os.FileInfo, error)
}

// New creates a Tracker. stallThreshold/abandonedThreshold come from
// config.SpawnConfig (spec §4.5 defaults: 15min stalled, long-threshold
// abandoned).
func New(client *ent.Client, stallThreshold, abandonedThreshold time.Duration) *Tracker {
	return &Tracker{
		client:             client,
		stallThreshold:     stallThreshold,
		abandonedThreshold: abandonedThreshold,
		statFile:           os.Stat,
	}
}

// Spawn is the tracker's view of one row.
type Spawn struct {
	ID               string
	Project          string
	TaskID           string
	TaskType         string
	Description      string
	SpawnTime        time.Time
	LastOutputChange time.Time
	OutputFile       string
	Status           Status
	ExitCode         *int
	ErrorMessage     *string
	CompletedAt      *time.Time
}

// Register inserts a new row in the running state. Fails with errs.Conflict
// if (project, task_id) already exists (spec §4.1/§3 uniqueness invariant).
func (t *Tracker) Register(ctx context.Context, project, taskID, taskType, description, outputFile string) (*Spawn, error) {
	if project == "" || taskID == "" || outputFile == "" {
		return nil, errs.New(errs.Validation, "project, task_id, and output_file are required", nil)
	}

	row, err := t.client.Spawn.Create().
		SetID(uuid.NewString()).
		SetProject(project).
		SetTaskID(taskID).
		SetTaskType(taskType).
		SetDescription(description).
		SetOutputFile(outputFile).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, errs.New(errs.Conflict, "duplicate (project, task_id)", err).
				Remediate("choose a different task_id or wait for the existing spawn to finish")
		}
		return nil, errs.New(errs.Internal, "failed to register spawn", err)
	}
	return toSpawn(row), nil
}

// Touch updates last_output_change when the output file's mtime has
// advanced past what is currently recorded — non-invasive, reads only file
// metadata (spec §4.5).
func (t *Tracker) Touch(ctx context.Context, project, taskID string) error {
	row, err := t.client.Spawn.Query().Where(spawn.Project(project), spawn.TaskID(taskID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return errs.New(errs.NotFound, "spawn not found", err)
		}
		return errs.New(errs.Internal, "failed to look up spawn", err)
	}

	info, err := t.statFile(row.OutputFile)
	if err != nil {
		return errs.New(errs.External, "failed to stat output file", err)
	}
	if !info.ModTime().After(row.LastOutputChange) {
		return nil
	}

	_, err = t.client.Spawn.UpdateOne(row).SetLastOutputChange(info.ModTime()).Save(ctx)
	if err != nil {
		return errs.New(errs.Internal, "failed to update last_output_change", err)
	}
	return nil
}

// Complete transitions a running spawn to completed (exitCode==0) or
// failed.
func (t *Tracker) Complete(ctx context.Context, project, taskID string, exitCode int, errMsg *string) error {
	row, err := t.client.Spawn.Query().Where(spawn.Project(project), spawn.TaskID(taskID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return errs.New(errs.NotFound, "spawn not found", err)
		}
		return errs.New(errs.Internal, "failed to look up spawn", err)
	}
	if spawn.Status(row.Status) != spawn.StatusRunning {
		return errs.New(errs.Validation, "status transitions are only valid from running", nil)
	}

	status := spawn.StatusCompleted
	if exitCode != 0 {
		status = spawn.StatusFailed
	}

	update := t.client.Spawn.UpdateOne(row).
		SetStatus(status).
		SetExitCode(exitCode).
		SetCompletedAt(time.Now())
	if errMsg != nil {
		update = update.SetErrorMessage(*errMsg)
	}
	if _, err := update.Save(ctx); err != nil {
		return errs.New(errs.Internal, "failed to complete spawn", err)
	}
	return nil
}

// List returns spawns for project, optionally filtered by status.
func (t *Tracker) List(ctx context.Context, project string, status *Status) ([]Spawn, error) {
	q := t.client.Spawn.Query().Where(spawn.Project(project))
	if status != nil {
		q = q.Where(spawn.StatusEQ(spawn.Status(*status)))
	}
	rows, err := q.Order(ent.Desc(spawn.FieldSpawnTime)).All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to list spawns", err)
	}
	out := make([]Spawn, len(rows))
	for i, row := range rows {
		out[i] = *toSpawn(row)
	}
	return out, nil
}

// SweepResult reports how many rows the sweep transitioned.
type SweepResult struct {
	Stalled   []Spawn
	Abandoned []Spawn
}

// Sweep marks running rows stalled or abandoned based on last_output_change
// age (spec §4.5). cmd/overseer's background worker calls it on the spawn
// sweep interval; pkg/healthmon only reads the statuses it sets.
func (t *Tracker) Sweep(ctx context.Context) (*SweepResult, error) {
	now := time.Now()
	running, err := t.client.Spawn.Query().Where(spawn.StatusEQ(spawn.StatusRunning)).All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to query running spawns", err)
	}

	result := &SweepResult{}
	for _, row := range running {
		age := now.Sub(row.LastOutputChange)
		var newStatus spawn.Status
		switch {
		case age >= t.abandonedThreshold:
			newStatus = spawn.StatusAbandoned
		case age >= t.stallThreshold:
			newStatus = spawn.StatusStalled
		default:
			continue
		}

		updated, err := t.client.Spawn.UpdateOne(row).SetStatus(newStatus).Save(ctx)
		if err != nil {
			slog.Error("spawn sweep: failed to transition spawn", "spawn_id", row.ID, "error", err)
			continue
		}
		if newStatus == spawn.StatusAbandoned {
			result.Abandoned = append(result.Abandoned, *toSpawn(updated))
		} else {
			result.Stalled = append(result.Stalled, *toSpawn(updated))
		}
	}
	return result, nil
}

// GetStalledSpawns returns current stalled rows for project (spec §6
// "health.stalled_spawns(project)").
func (t *Tracker) GetStalledSpawns(ctx context.Context, project string) ([]Spawn, error) {
	status := StatusStalled
	return t.List(ctx, project, &status)
}

func toSpawn(row *ent.Spawn) *Spawn {
	return &Spawn{
		ID:               row.ID,
		Project:          row.Project,
		TaskID:           row.TaskID,
		TaskType:         row.TaskType,
		Description:      row.Description,
		SpawnTime:        row.SpawnTime,
		LastOutputChange: row.LastOutputChange,
		OutputFile:       row.OutputFile,
		Status:           Status(row.Status),
		ExitCode:         row.ExitCode,
		ErrorMessage:     row.ErrorMessage,
		CompletedAt:      row.CompletedAt,
	}
}
