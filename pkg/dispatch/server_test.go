package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/pkg/checkpoint"
	"github.com/bmad-run/overseer/pkg/lineage"
	"github.com/bmad-run/overseer/pkg/ports"
	"github.com/bmad-run/overseer/pkg/registry"
	"github.com/bmad-run/overseer/pkg/secrets"
	"github.com/bmad-run/overseer/pkg/spawn"
)

func newTestServer(t *testing.T) (*Server, *echo.Echo) {
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

	deps := Dependencies{
		Registry:    registry.New(entClient, time.Hour),
		Lineage:     lineage.New(entClient, nil),
		Checkpoints: checkpoint.New(entClient),
		Spawns:      spawn.New(entClient, 15*time.Minute, 2*time.Hour),
		Ports:       ports.NewFakeDirectory(),
		Secrets:     secrets.NewFakeStore(map[string]string{"meta/cloudflare/dns_edit_token": "tok"}),
	}
	srv := New(deps)
	return srv, srv.echo
}

func doJSON(e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSessionInitializeAndHeartbeat(t *testing.T) {
	_, e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/session/initialize", map[string]any{
		"project": "proj-1", "instance_type": "PS", "transport": "cli", "external_handle": "tmux:proj-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	instanceID := data["instance_id"].(string)

	rec = doJSON(e, http.MethodPost, "/api/v1/session/"+instanceID+"/heartbeat", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsLogAndRecent(t *testing.T) {
	_, e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/session/initialize", map[string]any{
		"project": "proj-1", "instance_type": "PS", "transport": "cli", "external_handle": "tmux:proj-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var initResp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))
	instanceID := initResp.Data.(map[string]any)["instance_id"].(string)

	rec = doJSON(e, http.MethodPost, "/api/v1/events/log", map[string]any{
		"instance_id": instanceID, "event_type": "user_prompt", "payload": map[string]any{"text": "hi"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/events/recent/"+instanceID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var listResp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.True(t, listResp.Success)
}

func TestCheckpointCreateAndGet(t *testing.T) {
	_, e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/session/initialize", map[string]any{
		"project": "proj-1", "instance_type": "PS", "transport": "cli", "external_handle": "tmux:proj-1",
	})
	var initResp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))
	instanceID := initResp.Data.(map[string]any)["instance_id"].(string)

	rec = doJSON(e, http.MethodPost, "/api/v1/checkpoint", map[string]any{
		"instance_id": instanceID, "kind": "manual", "context_window_percent": 20,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var cpResp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cpResp))
	cpID := cpResp.Data.(map[string]any)["ID"].(string)

	rec = doJSON(e, http.MethodGet, "/api/v1/checkpoint/"+cpID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSpawnRegisterAndComplete(t *testing.T) {
	_, e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/spawn/register", map[string]any{
		"project": "proj-1", "task_id": "task-1", "task_type": "implement", "output_file": "/tmp/out.log",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/spawn/complete", map[string]any{
		"project": "proj-1", "task_id": "task-1", "exit_code": 0,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsLog_UnknownInstanceReturnsNotFoundEnvelope(t *testing.T) {
	_, e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/events/log", map[string]any{
		"instance_id": "does-not-exist", "event_type": "x", "payload": map[string]any{},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "not_found", resp.ErrorKind)
}
