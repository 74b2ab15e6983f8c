package lineage

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestStore(t *testing.T) *Store {
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
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv, err := sql.Open(dialect.Postgres, connStr)
	require.NoError(t, err)

	entClient := ent.NewClient(ent.Driver(drv))
	require.NoError(t, entClient.Schema.Create(ctx))
	require.NoError(t, database.EnsureEventLineageTrigger(ctx, drv))

	t.Cleanup(func() { _ = entClient.Close() })

	_, err = entClient.Session.Create().
		SetID("inst-1").
		SetProject("proj-1").
		SetExternalHandle("tmux:proj-1").
		Save(ctx)
	require.NoError(t, err)

	return New(entClient, drv.DB())
}

func TestAppend_RootEventHasZeroDepthAndSelfRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Append(ctx, "inst-1", "user_message", map[string]any{"text": "deploy"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Depth)
	assert.Equal(t, rec.ID, rec.RootUUID)
	assert.Nil(t, rec.ParentUUID)
}

func TestAppend_CascadingLineage(t *testing.T) {
	// Spec §8 scenario 1.
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Append(ctx, "inst-1", "user_message", map[string]any{"text": "deploy"}, nil)
	require.NoError(t, err)

	a, err := s.Append(ctx, "inst-1", "assistant_start", nil, &u.ID)
	require.NoError(t, err)

	sp, err := s.Append(ctx, "inst-1", "spawn_decision", map[string]any{"reason": "complex"}, &a.ID)
	require.NoError(t, err)

	tu, err := s.Append(ctx, "inst-1", "tool_use", map[string]any{"tool": "Task"}, &sp.ID)
	require.NoError(t, err)

	e, err := s.Append(ctx, "inst-1", "error", map[string]any{"port_in_use": true}, &tu.ID)
	require.NoError(t, err)

	chain, err := s.GetParentChain(ctx, e.ID, 0)
	require.NoError(t, err)
	require.Len(t, chain, 5)

	wantTypes := []string{"user_message", "assistant_start", "spawn_decision", "tool_use", "error"}
	for i, rec := range chain {
		assert.Equal(t, wantTypes[i], rec.EventType)
		assert.Equal(t, i, rec.Depth)
		assert.Equal(t, u.ID, rec.RootUUID)
	}
}

func TestAppend_MissingParentIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing := "does-not-exist"
	_, err := s.Append(ctx, "inst-1", "tool_use", nil, &missing)
	require.Error(t, err)
}

func TestAppend_SanitizesSecretsBeforeInsert(t *testing.T) {
	// Spec §8 scenario 6.
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Append(ctx, "inst-1", "tool_use", map[string]any{
		"tool": "Task", "api_key": "sk-abc", "ok": true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", rec.EventData["api_key"])
	assert.NotEqual(t, "sk-abc", rec.EventData["api_key"])
}

func TestGetChildren_OrderedByTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.Append(ctx, "inst-1", "user_message", nil, nil)
	require.NoError(t, err)

	c1, err := s.Append(ctx, "inst-1", "child_one", nil, &root.ID)
	require.NoError(t, err)
	c2, err := s.Append(ctx, "inst-1", "child_two", nil, &root.ID)
	require.NoError(t, err)

	children, err := s.GetChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, c1.ID, children[0].ID)
	assert.Equal(t, c2.ID, children[1].ID)
}

func TestGetRecent_IsSuffixStableAcrossLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := s.Append(ctx, "inst-1", "tick", nil, nil)
		require.NoError(t, err)
	}

	small, err := s.GetRecent(ctx, "inst-1", 3)
	require.NoError(t, err)
	big, err := s.GetRecent(ctx, "inst-1", 5)
	require.NoError(t, err)

	require.Len(t, small, 3)
	require.Len(t, big, 5)
	assert.Equal(t, big[2:], small)
}

func TestGetSubtree_OrderedByDepthThenTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.Append(ctx, "inst-1", "root", nil, nil)
	require.NoError(t, err)
	child, err := s.Append(ctx, "inst-1", "child", nil, &root.ID)
	require.NoError(t, err)
	_, err = s.Append(ctx, "inst-1", "grandchild", nil, &child.ID)
	require.NoError(t, err)

	sub, err := s.GetSubtree(ctx, root.ID, 10)
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "child", sub[0].EventType)
	assert.Equal(t, "grandchild", sub[1].EventType)
}

func TestGetEventsSince_ReturnsOnlyNewerSequenceNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "inst-1", "event", nil, nil)
		require.NoError(t, err)
	}

	since, err := s.GetEventsSince(ctx, "inst-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, 2, since[0].SequenceNum)
	assert.Equal(t, 3, since[1].SequenceNum)
}

type fakePublisher struct {
	calls []EventAppendedPayload
}

func (f *fakePublisher) PublishAppendedNow(_ context.Context, payload EventAppendedPayload) error {
	f.calls = append(f.calls, payload)
	return nil
}

func TestAppend_PublishesToWiredPublisher(t *testing.T) {
	s := newTestStore(t)
	pub := &fakePublisher{}
	s.SetPublisher(pub)
	ctx := context.Background()

	rec, err := s.Append(ctx, "inst-1", "event", nil, nil)
	require.NoError(t, err)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, rec.ID, pub.calls[0].EventID)
}

func TestAppend_WithoutPublisherStillSucceeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "inst-1", "event", nil, nil)
	require.NoError(t, err)
}
