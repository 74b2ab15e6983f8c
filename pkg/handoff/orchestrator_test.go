package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type fakeTmux struct {
	mu       sync.Mutex
	sent     []string
	failOnce map[string]bool
}

func (f *fakeTmux) SendKeys(ctx context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce["trigger"] && len(f.sent) == 0 {
		f.failOnce["trigger"] = false
		f.sent = append(f.sent, "FAILED:"+text)
		return errors.New("simulated trigger failure")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTmux) Interrupt(ctx context.Context, target string) error { return nil }

func (f *fakeTmux) ClearContext(ctx context.Context, target, clearCommand string) error { return nil }

type fakeWaiter struct {
	path string
	err  error
}

func (f *fakeWaiter) WaitForNewFile(ctx context.Context, dir string, since time.Time, timeout, pollEvery time.Duration) (string, error) {
	return f.path, f.err
}

func newTestDeps(t *testing.T) (*ent.Client, *registry.Registry) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgContainer) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv, err := sql.Open(dialect.Postgres, connStr)
	require.NoError(t, err)

	entClient := ent.NewClient(ent.Driver(drv))
	require.NoError(t, entClient.Schema.Create(ctx))
	t.Cleanup(func() { _ = entClient.Close() })

	reg := registry.New(entClient, time.Hour)
	return entClient, reg
}

func withFastTimings() Option {
	return func(o *Orchestrator) {
		o.interruptWait = time.Millisecond
		o.clearWait = time.Millisecond
		o.verifyWait = time.Millisecond
		o.waitTimeout = time.Second
		o.pollEvery = time.Millisecond
	}
}

func TestTrigger_SuccessResetsContextAndRecordsOK(t *testing.T) {
	client, reg := newTestDeps(t)
	ctx := context.Background()

	inst, err := reg.Register(ctx, "proj-1", registry.InstanceTypePS, registry.TransportCLI, "tmux:proj-1")
	require.NoError(t, err)
	pct := 0.9
	require.NoError(t, reg.UpdateContextUsage(ctx, inst.InstanceID, &pct, nil, nil))

	tmux := &fakeTmux{failOnce: map[string]bool{}}
	waiter := &fakeWaiter{path: "/tmp/handoffs/handoff-1.md"}
	o := New(client, reg, tmux, waiter, withFastTimings())

	err = o.Trigger(ctx, inst, "/tmp/handoffs")
	require.NoError(t, err)

	got, err := reg.GetByInstance(ctx, inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ContextUsage)

	checks, err := client.HealthCheck.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "ok", string(checks[0].Status))
}

func TestTrigger_RetriesOnceOnTriggerFailure(t *testing.T) {
	client, reg := newTestDeps(t)
	ctx := context.Background()

	inst, err := reg.Register(ctx, "proj-1", registry.InstanceTypePS, registry.TransportCLI, "tmux:proj-1")
	require.NoError(t, err)

	tmux := &fakeTmux{failOnce: map[string]bool{"trigger": true}}
	waiter := &fakeWaiter{path: "/tmp/handoffs/handoff-1.md"}
	o := New(client, reg, tmux, waiter, withFastTimings())

	err = o.Trigger(ctx, inst, "/tmp/handoffs")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tmux.sent), 2)
}

func TestTrigger_WaitFailureRecordsCritical(t *testing.T) {
	client, reg := newTestDeps(t)
	ctx := context.Background()

	inst, err := reg.Register(ctx, "proj-1", registry.InstanceTypePS, registry.TransportCLI, "tmux:proj-1")
	require.NoError(t, err)

	tmux := &fakeTmux{failOnce: map[string]bool{}}
	waiter := &fakeWaiter{err: errors.New("no handoff file appeared")}
	o := New(client, reg, tmux, waiter, withFastTimings())

	err = o.Trigger(ctx, inst, "/tmp/handoffs")
	require.Error(t, err)

	checks, err := client.HealthCheck.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "critical", string(checks[0].Status))
}

func TestTrigger_ConcurrentCallsForSameInstanceAreIdempotent(t *testing.T) {
	client, reg := newTestDeps(t)
	ctx := context.Background()

	inst, err := reg.Register(ctx, "proj-1", registry.InstanceTypePS, registry.TransportCLI, "tmux:proj-1")
	require.NoError(t, err)

	tmux := &fakeTmux{failOnce: map[string]bool{}}
	waiter := &fakeWaiter{path: "/tmp/handoffs/handoff-1.md"}
	o := New(client, reg, tmux, waiter, withFastTimings())

	o.mu.Lock()
	o.inProgress[inst.InstanceID] = true
	o.mu.Unlock()

	require.NoError(t, o.Trigger(ctx, inst, "/tmp/handoffs"))
	assert.Empty(t, tmux.sent)
}

func TestClassify_MatchesThresholdTable(t *testing.T) {
	assert.Equal(t, ZoneNormal, Classify(0.10))
	assert.Equal(t, ZoneMonitoring, Classify(0.30))
	assert.Equal(t, ZoneWarning, Classify(0.50))
	assert.Equal(t, ZoneCritical, Classify(0.70))
	assert.Equal(t, ZoneMandatory, Classify(0.85))
	assert.Equal(t, ZoneMandatory, Classify(0.99))
}
