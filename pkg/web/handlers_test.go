package web_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/gridfn/pkg/catalog"
	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/persistence"
	"github.com/dukex/gridfn/pkg/registry"
	"github.com/dukex/gridfn/pkg/server"
	"github.com/dukex/gridfn/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sumFunction struct{}

func (sumFunction) Descriptor() models.FunctionDescriptor {
	return models.FunctionDescriptor{ID: "sum", HA: true, HasResult: true}
}

func (sumFunction) Execute(context.Context, *models.FunctionContext) error {
	return nil
}

func (sumFunction) ArgsSchema() map[string]any {
	return map[string]any{"type": "array"}
}

type fakeStats struct{}

func (fakeStats) Stats() server.Stats {
	return server.Stats{Active: 2, Accepted: 5, Processed: 40}
}

func (fakeStats) Connections() []server.Info {
	return []server.Info{{ID: "conn-1", RemoteAddr: "127.0.0.1:5000", ClientVersion: "9.0"}}
}

func setupTestApp(t *testing.T) (*fiber.App, *persistence.Memory) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	functions := registry.NewRegistry(logger)
	require.NoError(t, functions.Register(sumFunction{}))

	regions := catalog.NewMemory(logger)
	_, err := regions.Add(catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 16, Members: []string{"m1"}})
	require.NoError(t, err)

	history := persistence.NewMemory(0)

	return web.NewApp(web.NewAPIHandlers(functions, regions, history, fakeStats{})), history
}

func doGet(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := doGet(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	srv, ok := body["server"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2, srv["active"], 0)
}

func TestAPIHandlers_Functions(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := doGet(t, app, "/functions")
	assert.Equal(t, http.StatusOK, status)

	list, ok := body["functions"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)

	status, body = doGet(t, app, "/functions/sum")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "sum", body["id"])
	assert.Equal(t, true, body["ha"])
	assert.NotNil(t, body["args_schema"])

	status, body = doGet(t, app, "/functions/missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "function_not_found", body["type"])
}

func TestAPIHandlers_Region(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := doGet(t, app, "/regions/orders")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/orders", body["path"])
	assert.Equal(t, "partitioned", body["topology"])
	assert.InDelta(t, 16, body["bucket_count"], 0)

	status, body = doGet(t, app, "/regions/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "region_not_found", body["type"])
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	app, history := setupTestApp(t)

	started := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, history.Save(context.Background(), models.ExecutionRecord{
		ID:          "exec-1",
		FunctionID:  "sum",
		RegionName:  "orders",
		Status:      models.ExecutionStatusFailed,
		FailureKind: "user-visible",
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
	}))

	status, body := doGet(t, app, "/executions?limit=10")
	assert.Equal(t, http.StatusOK, status)

	list, ok := body["executions"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	status, body = doGet(t, app, "/executions/exec-1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "failed", body["status"])

	status, body = doGet(t, app, "/executions/other")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "execution_not_found", body["type"])

	status, _ = doGet(t, app, "/executions?limit=abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Connections(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := doGet(t, app, "/connections")
	assert.Equal(t, http.StatusOK, status)

	list, ok := body["connections"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}
