package functions

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/dukex/gridfn/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	results []any
}

func (c *collector) SendResult(v any) error {
	c.results = append(c.results, v)

	return nil
}

func (c *collector) LastResult(v any) error {
	return c.SendResult(v)
}

func invocation(args any) (*models.FunctionContext, *collector) {
	results := &collector{}

	return &models.FunctionContext{
		RegionName: "orders",
		MemberID:   "m1",
		Bucket:     2,
		Args:       args,
		Filter:     models.MustIDSet("k1"),
		Results:    results,
	}, results
}

func TestBuiltins_Register(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.MustRegister(Builtins(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)...)

	ids := make([]string, 0, 3)
	for _, d := range reg.List() {
		ids = append(ids, d.ID)
	}

	assert.Equal(t, []string{HTTPRequestID, LogID, TransformID}, ids)
}

func TestTransform(t *testing.T) {
	t.Parallel()

	fn := NewTransform()
	fc, results := invocation(map[string]any{
		"expression": `{"key": "{{ index .filter 0 }}", "bucket": {{ .bucket }}, "total": {{ .args.total }}}`,
		"data":       map[string]any{"total": uint64(7)},
	})

	require.NoError(t, registry.ValidateArgs(fn, fc.Args))
	require.NoError(t, fn.Execute(context.Background(), fc))
	require.Len(t, results.results, 1)
	assert.Equal(t, map[string]any{"key": "k1", "bucket": 2.0, "total": 7.0}, results.results[0])
}

func TestTransform_InvalidArgs(t *testing.T) {
	t.Parallel()

	fn := NewTransform()

	require.ErrorIs(t, registry.ValidateArgs(fn, map[string]any{"data": 1}), registry.ErrInvalidArguments)

	fc, _ := invocation(nil)
	require.ErrorIs(t, fn.Execute(context.Background(), fc), ErrInvalidArgs)
}

func TestLog(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	fn := NewLog(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.False(t, fn.Descriptor().HasResult)

	fc, results := invocation(map[string]any{"message": "hello from {{ .member }}", "level": "warn"})

	require.NoError(t, fn.Execute(context.Background(), fc))
	assert.Empty(t, results.results)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), `msg="hello from m1"`)
	assert.Contains(t, logs.String(), "bucket=2")
}

func TestHTTPRequest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path": "` + r.URL.Path + `", "method": "` + r.Method + `", "trace": "` + r.Header.Get("X-Trace") + `", "body": ` + string(body) + `}`))
	}))
	defer server.Close()

	fn := NewHTTPRequest(server.Client())
	assert.True(t, fn.Descriptor().HA)

	fc, results := invocation(map[string]any{
		"url":     server.URL + "/{{ .region }}/{{ .bucket }}",
		"method":  "post",
		"body":    `{"member": "{{ .member }}"}`,
		"headers": map[string]any{"X-Trace": "t-{{ .bucket }}"},
	})

	require.NoError(t, registry.ValidateArgs(fn, fc.Args))
	require.NoError(t, fn.Execute(context.Background(), fc))
	require.Len(t, results.results, 1)

	result, ok := results.results[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, map[string]any{
		"path":   "/orders/2",
		"method": "POST",
		"trace":  "t-2",
		"body":   map[string]any{"member": "m1"},
	}, result["json"])
}

func TestHTTPRequest_Failures(t *testing.T) {
	t.Parallel()

	t.Run("client errors are not retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "missing", http.StatusNotFound)
		}))
		defer server.Close()

		fc, _ := invocation(map[string]any{"url": server.URL, "retries": map[string]any{"attempts": 3}})

		err := NewHTTPRequest(server.Client()).Execute(context.Background(), fc)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
		assert.NotErrorIs(t, err, protocol.ErrTargetInvocation)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors become target failures", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		fc, _ := invocation(map[string]any{"url": server.URL, "retries": map[string]any{"attempts": 2, "delay": 1}})

		err := NewHTTPRequest(server.Client()).Execute(context.Background(), fc)
		require.ErrorIs(t, err, protocol.ErrTargetInvocation)
		assert.Equal(t, int32(2), calls.Load())
	})
}
