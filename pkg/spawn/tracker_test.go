package spawn

import (
	"context"
	"os"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestTracker(t *testing.T) *Tracker {
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

	return New(entClient, 15*time.Minute, 2*time.Hour)
}

func TestRegister_DuplicateProjectTaskConflicts(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Register(ctx, "proj-1", "task-1", "implement", "desc", "/tmp/out1.log")
	require.NoError(t, err)

	_, err = tr.Register(ctx, "proj-1", "task-1", "implement", "desc", "/tmp/out2.log")
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestTouch_AdvancesLastOutputChangeOnNewerMtime(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	sp, err := tr.Register(ctx, "proj-1", "task-1", "implement", "desc", f.Name())
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(f.Name(), future, future))

	require.NoError(t, tr.Touch(ctx, "proj-1", "task-1"))

	rows, err := tr.List(ctx, "proj-1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].LastOutputChange.After(sp.LastOutputChange))
}

func TestTouch_StaleFileIsNoOp(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	_, err = tr.Register(ctx, "proj-1", "task-1", "implement", "desc", f.Name())
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(f.Name(), past, past))

	require.NoError(t, tr.Touch(ctx, "proj-1", "task-1"))
}

func TestComplete_SetsStatusByExitCode(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Register(ctx, "proj-1", "task-ok", "implement", "desc", "/tmp/ok.log")
	require.NoError(t, err)
	_, err = tr.Register(ctx, "proj-1", "task-fail", "implement", "desc", "/tmp/fail.log")
	require.NoError(t, err)

	require.NoError(t, tr.Complete(ctx, "proj-1", "task-ok", 0, nil))
	msg := "boom"
	require.NoError(t, tr.Complete(ctx, "proj-1", "task-fail", 1, &msg))

	rows, err := tr.List(ctx, "proj-1", nil)
	require.NoError(t, err)
	byTask := map[string]Spawn{}
	for _, r := range rows {
		byTask[r.TaskID] = r
	}
	assert.Equal(t, StatusCompleted, byTask["task-ok"].Status)
	assert.Equal(t, StatusFailed, byTask["task-fail"].Status)
	assert.NotNil(t, byTask["task-fail"].ErrorMessage)
}

func TestComplete_RejectsNonRunningTransition(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Register(ctx, "proj-1", "task-1", "implement", "desc", "/tmp/out.log")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, "proj-1", "task-1", 0, nil))

	err = tr.Complete(ctx, "proj-1", "task-1", 0, nil)
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestSweep_TransitionsByAge(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	fresh, err := tr.Register(ctx, "proj-1", "fresh", "implement", "desc", "/tmp/fresh.log")
	require.NoError(t, err)
	stalling, err := tr.Register(ctx, "proj-1", "stalling", "implement", "desc", "/tmp/stalling.log")
	require.NoError(t, err)
	abandoning, err := tr.Register(ctx, "proj-1", "abandoning", "implement", "desc", "/tmp/abandoning.log")
	require.NoError(t, err)

	entClient := tr.client
	_, err = entClient.Spawn.UpdateOneID(stalling.ID).SetLastOutputChange(time.Now().Add(-20 * time.Minute)).Save(ctx)
	require.NoError(t, err)
	_, err = entClient.Spawn.UpdateOneID(abandoning.ID).SetLastOutputChange(time.Now().Add(-3 * time.Hour)).Save(ctx)
	require.NoError(t, err)

	result, err := tr.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, result.Stalled, 1)
	require.Len(t, result.Abandoned, 1)
	assert.Equal(t, stalling.ID, result.Stalled[0].ID)
	assert.Equal(t, abandoning.ID, result.Abandoned[0].ID)

	stalled, err := tr.GetStalledSpawns(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, stalling.ID, stalled[0].ID)

	_ = fresh
}
