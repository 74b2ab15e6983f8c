// Package registry implements the Instance Registry (C3): the single
// `supervisor_sessions` table keyed by instance_id, with a project-unique
// constraint over live rows, liveness heartbeats, and context-usage
// tracking (spec §4.3).
package registry

import (
	"context"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/session"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/google/uuid"
)

// InstanceType mirrors the ent enum (spec §3: "PS"|"MS").
type InstanceType string

const (
	InstanceTypePS InstanceType = "PS"
	InstanceTypeMS InstanceType = "MS"
)

// Transport mirrors the ent enum (spec §3: "cli"|"sdk").
type Transport string

const (
	TransportCLI Transport = "cli"
	TransportSDK Transport = "sdk"
)

// Registry is the Instance Registry.
type Registry struct {
	client     *ent.Client
	staleAfter time.Duration
}

// New creates a Registry. staleAfter is the TTL after which a row with no
// recent last_activity is considered stale and ignored by the Health
// Monitor (spec §4.3 default 1h, see config.InstanceRegistryConfig).
func New(client *ent.Client, staleAfter time.Duration) *Registry {
	return &Registry{client: client, staleAfter: staleAfter}
}

// Instance is the registry's view of one supervisor_sessions row.
type Instance struct {
	InstanceID            string
	Project               string
	InstanceType          InstanceType
	Transport             Transport
	ExternalHandle         string
	StartedAt             time.Time
	LastActivity          time.Time
	LastContextCheck      *time.Time
	ContextUsage          float64
	EstimatedTokensUsed   int64
	EstimatedTokensTotal  int64
	ClosedAt              *time.Time
}

// Register creates a new live session row. Fails with errs.Conflict if the
// project already has a live (not-closed) row, enforced by the
// supervisor_sessions_project_live_key partial unique index.
func (r *Registry) Register(ctx context.Context, project string, instanceType InstanceType, transport Transport, externalHandle string) (*Instance, error) {
	if project == "" || externalHandle == "" {
		return nil, errs.New(errs.Validation, "project and external_handle are required", nil)
	}

	row, err := r.client.Session.Create().
		SetID(uuid.NewString()).
		SetProject(project).
		SetInstanceType(session.InstanceType(instanceType)).
		SetTransport(session.Transport(transport)).
		SetExternalHandle(externalHandle).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, errs.New(errs.Conflict, "project already has a live session", err).
				Remediate("close the existing session before starting a new one")
		}
		return nil, errs.New(errs.Internal, "failed to register session", err)
	}
	return toInstance(row), nil
}

// Heartbeat bumps last_activity to now, keeping the row live.
func (r *Registry) Heartbeat(ctx context.Context, instanceID string) error {
	n, err := r.client.Session.Update().
		Where(session.ID(instanceID), session.ClosedAtIsNil()).
		SetLastActivity(time.Now()).
		Save(ctx)
	if err != nil {
		return errs.New(errs.Internal, "failed to heartbeat session", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "instance not found or already closed", nil)
	}
	return nil
}

// UpdateContextUsage records a context-usage reading. Per spec §9's resolved
// open question, percent is authoritative when present; used/total are
// stored for display only. If percent is nil, it is derived from used/total.
func (r *Registry) UpdateContextUsage(ctx context.Context, instanceID string, percent *float64, used, total *int64) error {
	now := time.Now()
	update := r.client.Session.Update().
		Where(session.ID(instanceID), session.ClosedAtIsNil()).
		SetLastContextCheck(now)

	var frac float64
	switch {
	case percent != nil:
		frac = *percent
	case used != nil && total != nil && *total > 0:
		frac = float64(*used) / float64(*total)
	default:
		return errs.New(errs.Validation, "either percent or {used,total} must be provided", nil)
	}
	update = update.SetContextUsage(frac)

	if used != nil {
		update = update.SetEstimatedTokensUsed(*used)
	}
	if total != nil {
		update = update.SetEstimatedTokensTotal(*total)
	}

	n, err := update.Save(ctx)
	if err != nil {
		return errs.New(errs.Internal, "failed to update context usage", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "instance not found or already closed", nil)
	}
	return nil
}

// GetByInstance returns the row for instanceID.
func (r *Registry) GetByInstance(ctx context.Context, instanceID string) (*Instance, error) {
	row, err := r.client.Session.Get(ctx, instanceID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, errs.New(errs.NotFound, "instance not found", err)
		}
		return nil, errs.New(errs.Internal, "failed to get instance", err)
	}
	return toInstance(row), nil
}

// GetByProject returns the live row for project, if any.
func (r *Registry) GetByProject(ctx context.Context, project string) (*Instance, error) {
	row, err := r.client.Session.Query().
		Where(session.Project(project), session.ClosedAtIsNil()).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, errs.New(errs.NotFound, "no live session for project", err)
		}
		return nil, errs.New(errs.Internal, "failed to query project session", err)
	}
	return toInstance(row), nil
}

// ListActive returns all live rows whose last_activity is within
// staleAfter, i.e. excluding stale sessions (spec §4.3).
func (r *Registry) ListActive(ctx context.Context) ([]Instance, error) {
	cutoff := time.Now().Add(-r.staleAfter)
	rows, err := r.client.Session.Query().
		Where(session.ClosedAtIsNil(), session.LastActivityGTE(cutoff)).
		Order(ent.Asc(session.FieldLastActivity)).
		All(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to list active sessions", err)
	}
	out := make([]Instance, len(rows))
	for i, row := range rows {
		out[i] = *toInstance(row)
	}
	return out, nil
}

// IsStale reports whether inst's last_activity is older than the
// configured TTL (spec §4.3: "stale rows are ignored by the health
// monitor").
func (r *Registry) IsStale(inst *Instance) bool {
	return time.Since(inst.LastActivity) > r.staleAfter
}

// Close marks a session closed; the row is retained for audit until TTL
// cleanup (spec §3).
func (r *Registry) Close(ctx context.Context, instanceID string) error {
	n, err := r.client.Session.Update().
		Where(session.ID(instanceID), session.ClosedAtIsNil()).
		SetClosedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return errs.New(errs.Internal, "failed to close session", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "instance not found or already closed", nil)
	}
	return nil
}

func toInstance(row *ent.Session) *Instance {
	return &Instance{
		InstanceID:           row.ID,
		Project:              row.Project,
		InstanceType:         InstanceType(row.InstanceType),
		Transport:            Transport(row.Transport),
		ExternalHandle:       row.ExternalHandle,
		StartedAt:            row.StartedAt,
		LastActivity:         row.LastActivity,
		LastContextCheck:     row.LastContextCheck,
		ContextUsage:         row.ContextUsage,
		EstimatedTokensUsed:  row.EstimatedTokensUsed,
		EstimatedTokensTotal: row.EstimatedTokensTotal,
		ClosedAt:             row.ClosedAt,
	}
}
