// Package healthmon implements the Health Monitor (C6): three periodic
// probes per live session (spawn sweep, context probe, orphaned work),
// each recording a health_checks row, with per-session probe serialization
// and handoff preemption (spec §4.6).
package healthmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/healthcheck"
	"github.com/bmad-run/overseer/pkg/checkpoint"
	"github.com/bmad-run/overseer/pkg/handoff"
	"github.com/bmad-run/overseer/pkg/registry"
	"github.com/bmad-run/overseer/pkg/spawn"
	"github.com/google/uuid"
)

// HandoffTrigger is the subset of *handoff.Orchestrator the monitor needs,
// so the Mandatory-zone action can be exercised with a fake in tests.
type HandoffTrigger interface {
	Trigger(ctx context.Context, inst *registry.Instance, handoffsDir string) error
}

// Monitor runs the three probes on a schedule independent of any PS (spec
// §4.6: "Runs independently of any PS").
type Monitor struct {
	client      *ent.Client
	registry    *registry.Registry
	spawns      *spawn.Tracker
	checkpoints *checkpoint.Engine
	handoff     HandoffTrigger
	handoffsDir string

	mu      sync.Mutex
	locked  map[string]bool
	preempt map[string]bool
}

// New creates a Monitor.
func New(client *ent.Client, reg *registry.Registry, spawns *spawn.Tracker, checkpoints *checkpoint.Engine, ho HandoffTrigger, handoffsDir string) *Monitor {
	return &Monitor{
		client:      client,
		registry:    reg,
		spawns:      spawns,
		checkpoints: checkpoints,
		handoff:     ho,
		handoffsDir: handoffsDir,
		locked:      make(map[string]bool),
		preempt:     make(map[string]bool),
	}
}

// RunOnce runs all three probes for every active session, each session in
// its own goroutine: one session's probes run in sequence under a
// per-session lock, while different sessions are probed concurrently
// (spec §4.6 "Ordering"). A session under handoff preemption is skipped
// entirely.
func (m *Monitor) RunOnce(ctx context.Context) {
	instances, err := m.registry.ListActive(ctx)
	if err != nil {
		slog.Error("healthmon: failed to list active instances", "error", err)
		return
	}

	var wg sync.WaitGroup
	for i := range instances {
		inst := instances[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.probeSession(ctx, &inst)
		}()
	}
	wg.Wait()
}

func (m *Monitor) probeSession(ctx context.Context, inst *registry.Instance) {
	if !m.acquire(inst.InstanceID) {
		return
	}
	defer m.release(inst.InstanceID)

	m.probeSpawns(ctx, inst.Project)
	preempted := m.probeContext(ctx, inst)
	if preempted {
		return
	}
	m.probeOrphanedWork(ctx, inst)
}

func (m *Monitor) acquire(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.preempt[instanceID] || m.locked[instanceID] {
		return false
	}
	m.locked[instanceID] = true
	return true
}

func (m *Monitor) release(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, instanceID)
}

// probeSpawns finds stalled spawns and records a health_checks row,
// escalating to critical when the owning PS should inspect (spec §4.6.1).
func (m *Monitor) probeSpawns(ctx context.Context, project string) {
	stalled, err := m.spawns.GetStalledSpawns(ctx, project)
	if err != nil {
		slog.Error("healthmon: spawn probe failed", "project", project, "error", err)
		return
	}

	status := healthcheck.StatusOk
	if len(stalled) > 0 {
		status = healthcheck.StatusWarning
	}
	if len(stalled) >= 3 {
		status = healthcheck.StatusCritical
	}

	m.record(ctx, project, healthcheck.CheckTypeSpawn, status, map[string]any{"stalled_count": len(stalled)}, nil)
}

// probeContext classifies the session's current context usage into a zone
// and, in the Mandatory zone, triggers the handoff cycle — which preempts
// this session's subsequent probes until the cycle completes (spec §4.6
// "preempts").
func (m *Monitor) probeContext(ctx context.Context, inst *registry.Instance) (preempted bool) {
	zone := handoff.Classify(inst.ContextUsage)

	status := healthcheck.StatusOk
	switch zone {
	case handoff.ZoneWarning:
		status = healthcheck.StatusWarning
	case handoff.ZoneCritical, handoff.ZoneMandatory:
		status = healthcheck.StatusCritical
	}

	m.record(ctx, inst.Project, healthcheck.CheckTypeContext, status,
		map[string]any{"zone": string(zone), "usage": inst.ContextUsage}, nil)

	if zone != handoff.ZoneMandatory {
		return false
	}

	m.mu.Lock()
	m.preempt[inst.InstanceID] = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.preempt, inst.InstanceID)
			m.mu.Unlock()
		}()
		if err := m.handoff.Trigger(context.Background(), inst, m.handoffsDir); err != nil {
			slog.Error("healthmon: handoff trigger failed", "instance_id", inst.InstanceID, "error", err)
		}
	}()

	return true
}

// probeOrphanedWork flags projects with recent spawns but no current epic
// recorded in their most recent checkpoint (spec §4.6.3).
func (m *Monitor) probeOrphanedWork(ctx context.Context, inst *registry.Instance) {
	recent, err := m.spawns.List(ctx, inst.Project, nil)
	if err != nil || len(recent) == 0 {
		return
	}

	hasRecent := false
	for _, sp := range recent {
		if time.Since(sp.SpawnTime) < 24*time.Hour {
			hasRecent = true
			break
		}
	}
	if !hasRecent {
		return
	}

	cps, err := m.checkpoints.List(ctx, inst.InstanceID, nil, 1, 0)
	if err != nil {
		slog.Error("healthmon: orphaned-work probe failed to load checkpoint", "instance_id", inst.InstanceID, "error", err)
		return
	}

	hasEpic := len(cps) > 0 && cps[0].WorkState.CurrentEpic != nil
	if hasEpic {
		m.record(ctx, inst.Project, healthcheck.CheckTypeOrphanedWork, healthcheck.StatusOk, nil, nil)
		return
	}

	m.record(ctx, inst.Project, healthcheck.CheckTypeOrphanedWork, healthcheck.StatusWarning,
		map[string]any{"reason": "recent spawns with no current epic"}, nil)
}

func (m *Monitor) record(ctx context.Context, project string, checkType healthcheck.CheckType, status healthcheck.Status, details map[string]any, actionTaken *string) {
	create := m.client.HealthCheck.Create().
		SetID(uuid.NewString()).
		SetProject(project).
		SetCheckType(checkType).
		SetStatus(status)
	if details != nil {
		create = create.SetDetails(details)
	}
	if actionTaken != nil {
		create = create.SetActionTaken(*actionTaken)
	}
	if _, err := create.Save(ctx); err != nil {
		slog.Error("healthmon: failed to record health check", "project", project, "check_type", checkType, "error", err)
	}
}
