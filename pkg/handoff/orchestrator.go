// Package handoff implements the Handoff Orchestrator (C7): the fixed
// context-usage threshold policy (spec §4.7) and the five-step automated
// handoff cycle driven externally over a PS's tmux-attached session.
package handoff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/healthcheck"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/registry"
	"github.com/google/uuid"
)

// Tmux abstracts the keystrokes the orchestrator sends to a PS's
// tmux-attached session, grounded on the teacher's exec.Command-based
// subprocess transport (pkg/mcp/transport.go).
type Tmux interface {
	SendKeys(ctx context.Context, target, text string) error
	Interrupt(ctx context.Context, target string) error
	ClearContext(ctx context.Context, target, clearCommand string) error
}

// FileWaiter polls a directory for a file newer than since, per spec §4.7
// step 2 ("poll the handoffs directory every 30s").
type FileWaiter interface {
	WaitForNewFile(ctx context.Context, dir string, since time.Time, timeout, pollEvery time.Duration) (string, error)
}

// Orchestrator runs the five-step handoff cycle.
type Orchestrator struct {
	client   *ent.Client
	registry *registry.Registry
	tmux     Tmux
	waiter   FileWaiter

	waitTimeout  time.Duration
	pollEvery    time.Duration
	interruptWait time.Duration
	clearWait    time.Duration
	verifyWait   time.Duration
	clearCommand string

	mu         sync.Mutex
	inProgress map[string]bool

	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator with spec §4.7's default step timings.
func New(client *ent.Client, reg *registry.Registry, tmux Tmux, waiter FileWaiter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		registry:      reg,
		tmux:          tmux,
		waiter:        waiter,
		waitTimeout:   5 * time.Minute,
		pollEvery:     30 * time.Second,
		interruptWait: 2 * time.Second,
		clearWait:     3 * time.Second,
		verifyWait:    60 * time.Second,
		clearCommand:  "/clear",
		inProgress:    make(map[string]bool),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Trigger runs the five-step cycle for inst. Idempotent: a second call for
// the same instance while a cycle is already running is a no-op (spec §4.7
// "Cancellation").
func (o *Orchestrator) Trigger(ctx context.Context, inst *registry.Instance, handoffsDir string) error {
	if !o.begin(inst.InstanceID) {
		return nil
	}
	defer o.end(inst.InstanceID)

	stage, err := o.run(ctx, inst, handoffsDir)
	if err != nil {
		o.recordFailure(ctx, inst.Project, stage, err)
		return errs.New(errs.External, fmt.Sprintf("handoff failed at stage %s", stage), err).
			Remediate("manual intervention required")
	}

	if rerr := o.registry.UpdateContextUsage(ctx, inst.InstanceID, floatPtr(0), nil, nil); rerr != nil {
		return errs.New(errs.Internal, "handoff succeeded but failed to reset context usage", rerr)
	}
	o.recordSuccess(ctx, inst.Project)
	return nil
}

func (o *Orchestrator) begin(instanceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inProgress[instanceID] {
		return false
	}
	o.inProgress[instanceID] = true
	return true
}

func (o *Orchestrator) end(instanceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inProgress, instanceID)
}

// run executes the five steps and returns the stage name on failure.
func (o *Orchestrator) run(ctx context.Context, inst *registry.Instance, handoffsDir string) (string, error) {
	target := inst.ExternalHandle

	// Step 1: trigger, retried once (spec §4.7).
	triggerAt := o.now()
	handoffPath := filepath.Join(handoffsDir, fmt.Sprintf("handoff-%d.md", triggerAt.Unix()))
	triggerPrompt := fmt.Sprintf("Please create a handoff file at %s summarizing current work state.", handoffPath)

	if err := o.tmux.SendKeys(ctx, target, triggerPrompt); err != nil {
		if err2 := o.tmux.SendKeys(ctx, target, triggerPrompt); err2 != nil {
			return "trigger", err2
		}
	}

	// Step 2: wait for the handoff file.
	foundPath, err := o.waiter.WaitForNewFile(ctx, handoffsDir, triggerAt, o.waitTimeout, o.pollEvery)
	if err != nil {
		return "wait", err
	}

	// Step 3: clear.
	if err := o.tmux.Interrupt(ctx, target); err != nil {
		return "clear", err
	}
	if err := sleepCtx(ctx, o.interruptWait); err != nil {
		return "clear", err
	}
	if err := o.tmux.ClearContext(ctx, target, o.clearCommand); err != nil {
		return "clear", err
	}
	if err := sleepCtx(ctx, o.clearWait); err != nil {
		return "clear", err
	}

	// Step 4: resume.
	resumePrompt := fmt.Sprintf("Read %s and continue from where you left off.", foundPath)
	if err := o.tmux.SendKeys(ctx, target, resumePrompt); err != nil {
		return "resume", err
	}

	// Step 5: verify.
	if err := sleepCtx(ctx, o.verifyWait); err != nil {
		return "verify", err
	}
	if err := o.tmux.SendKeys(ctx, target, "Briefly confirm you have resumed and what you are working on."); err != nil {
		return "verify", err
	}

	return "", nil
}

func (o *Orchestrator) recordSuccess(ctx context.Context, project string) {
	_, _ = o.client.HealthCheck.Create().
		SetID(uuid.NewString()).
		SetProject(project).
		SetCheckType(healthcheck.CheckTypeHandoff).
		SetStatus(healthcheck.StatusOk).
		SetDetails(map[string]any{"cycle": "completed"}).
		Save(ctx)
}

func (o *Orchestrator) recordFailure(ctx context.Context, project, stage string, err error) {
	action := "manual intervention required"
	_, _ = o.client.HealthCheck.Create().
		SetID(uuid.NewString()).
		SetProject(project).
		SetCheckType(healthcheck.CheckTypeHandoff).
		SetStatus(healthcheck.StatusCritical).
		SetDetails(map[string]any{"stage": stage, "error": err.Error()}).
		SetActionTaken(action).
		Save(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func floatPtr(f float64) *float64 { return &f }

// ExecTmux is the real Tmux implementation, shelling out to the tmux CLI
// (grounded on the teacher's exec.Command-based subprocess transport,
// pkg/mcp/transport.go).
type ExecTmux struct {
	runner func(ctx context.Context, name string, args ...string) error
}

// NewExecTmux creates an ExecTmux using os/exec.
func NewExecTmux() *ExecTmux {
	return &ExecTmux{runner: runCommand}
}

func (e *ExecTmux) SendKeys(ctx context.Context, target, text string) error {
	return e.runner(ctx, "tmux", "send-keys", "-t", target, text, "Enter")
}

func (e *ExecTmux) Interrupt(ctx context.Context, target string) error {
	return e.runner(ctx, "tmux", "send-keys", "-t", target, "C-c")
}

func (e *ExecTmux) ClearContext(ctx context.Context, target, clearCommand string) error {
	return e.runner(ctx, "tmux", "send-keys", "-t", target, clearCommand, "Enter")
}

// DirFileWaiter polls a directory on disk, per spec §4.7 step 2.
type DirFileWaiter struct{}

func (DirFileWaiter) WaitForNewFile(ctx context.Context, dir string, since time.Time, timeout, pollEvery time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		entries, err := os.ReadDir(dir)
		if err == nil {
			var candidates []string
			for _, e := range entries {
				info, ierr := e.Info()
				if ierr != nil {
					continue
				}
				if info.ModTime().After(since) {
					candidates = append(candidates, filepath.Join(dir, e.Name()))
				}
			}
			if len(candidates) > 0 {
				sort.Strings(candidates)
				return candidates[len(candidates)-1], nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("handoff: no new file appeared in %s within %s", dir, timeout)
		}
		if err := sleepCtx(ctx, pollEvery); err != nil {
			return "", err
		}
	}
}
