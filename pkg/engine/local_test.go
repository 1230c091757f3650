package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/dukex/gridfn/pkg/catalog"
	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFunction struct {
	id   string
	fail func(fc *models.FunctionContext) error

	mu    sync.Mutex
	calls []*models.FunctionContext
}

func (f *recordingFunction) Descriptor() models.FunctionDescriptor {
	return models.FunctionDescriptor{ID: f.id, HasResult: true}
}

func (f *recordingFunction) Execute(_ context.Context, fc *models.FunctionContext) error {
	f.mu.Lock()
	f.calls = append(f.calls, fc)
	f.mu.Unlock()

	if f.fail != nil {
		return f.fail(fc)
	}

	return fc.Results.SendResult(fc.Bucket)
}

func (f *recordingFunction) buckets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]int, 0, len(f.calls))
	for _, fc := range f.calls {
		out = append(out, fc.Bucket)
	}

	slices.Sort(out)

	return out
}

func (f *recordingFunction) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = nil
}

type collector struct {
	mu      sync.Mutex
	results []any
	lasts   int
}

func (c *collector) SendResult(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, v)

	return nil
}

func (c *collector) LastResult(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, v)
	c.lasts++

	return nil
}

func newEngine() *Local {
	return NewLocal("m1", slog.New(slog.NewTextHandler(io.Discard, nil)), WithWorkers(3))
}

func newRegion(t *testing.T, spec catalog.RegionSpec) *catalog.Region {
	t.Helper()

	region, err := catalog.NewRegion(spec)
	require.NoError(t, err)

	return region
}

func contextFor(region *catalog.Region, fn models.Function) *models.ExecutionContext {
	ec := &models.ExecutionContext{
		ID:         "e1",
		RegionName: region.Name(),
		RegionPath: region.FullPath(),
		Topology:   region.Topology(),
		Function:   fn.Descriptor(),
	}

	if ec.Topology == models.TopologyPartitioned {
		ec.Scope = models.ScopeAllBuckets
	}

	return ec
}

func TestLocal_Replicated(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "config", Topology: "replicated", Members: []string{"m1"}})
	fn := &recordingFunction{id: "f"}

	ec := contextFor(region, fn)
	ec.Args = "general"
	ec.MemberArgs = &models.MemberMappedArgument{Default: "fallback", PerMember: map[string]any{"m1": "mine"}}
	ec.Filter = models.MustIDSet("k1")

	results := &collector{}

	err := newEngine().Execute(context.Background(), region, fn, ec, results)
	require.NoError(t, err)

	require.Len(t, fn.calls, 1)
	assert.Equal(t, -1, fn.calls[0].Bucket)
	assert.Equal(t, "mine", fn.calls[0].Args)
	assert.Equal(t, "m1", fn.calls[0].MemberID)
	assert.True(t, fn.calls[0].Filter.Contains("k1"))
	assert.Equal(t, []any{-1}, results.results)
}

func TestLocal_ReplicatedExcludedMember(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "config", Topology: "replicated", Members: []string{"m1"}})
	fn := &recordingFunction{id: "f"}

	ec := contextFor(region, fn)
	ec.ExcludedMembers = models.MustIDSet("m1")

	err := newEngine().Execute(context.Background(), region, fn, ec, &collector{})

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.CauseInternalTargetInvocation, execErr.Cause)
	assert.Equal(t, []string{"m1"}, execErr.FailedMembers)
	assert.Empty(t, fn.calls)
}

func TestLocal_PartitionedScopes(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 6, Members: []string{"m1", "m2"}})

	tests := []struct {
		name     string
		scope    models.TargetScope
		targets  models.IDSet
		excluded models.IDSet
		want     []int
	}{
		{name: "all buckets", scope: models.ScopeAllBuckets, want: []int{0, 1, 2, 3, 4, 5}},
		{name: "all buckets without excluded member", scope: models.ScopeAllBuckets, excluded: models.MustIDSet("m2"), want: []int{0, 2, 4}},
		{name: "all buckets without excluded bucket", scope: models.ScopeAllBuckets, excluded: models.MustIDSet(4), want: []int{0, 1, 2, 3, 5}},
		{name: "explicit buckets", scope: models.ScopeBuckets, targets: models.MustIDSet(5, 1, 5), want: []int{1, 5}},
		{name: "keys", scope: models.ScopeKeys, targets: models.MustIDSet("a"), want: []int{BucketFor("a", 6)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fn := &recordingFunction{id: "f"}

			ec := contextFor(region, fn)
			ec.Scope = tt.scope
			ec.Targets = tt.targets
			ec.ExcludedMembers = tt.excluded

			results := &collector{}

			err := newEngine().Execute(context.Background(), region, fn, ec, results)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fn.buckets())
			assert.Len(t, results.results, len(tt.want))
		})
	}
}

func TestLocal_BucketOutOfRange(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 4, Members: []string{"m1"}})
	fn := &recordingFunction{id: "f"}

	ec := contextFor(region, fn)
	ec.Scope = models.ScopeBuckets
	ec.Targets = models.MustIDSet(9)

	err := newEngine().Execute(context.Background(), region, fn, ec, &collector{})

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.CauseInternalTargetInvocation, execErr.Cause)
	assert.Empty(t, fn.calls)
}

func TestLocal_BucketLastResultsKeepStreamOpen(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 12, Members: []string{"m1"}})

	fn := &recordingFunction{id: "f"}
	fn.fail = func(fc *models.FunctionContext) error {
		return fc.Results.LastResult(fc.Bucket)
	}

	ec := contextFor(region, fn)
	ec.Scope = models.ScopeBuckets
	ec.Targets = models.MustIDSet(3, 7)

	results := &collector{}

	require.NoError(t, newEngine().Execute(context.Background(), region, fn, ec, results))
	assert.ElementsMatch(t, []any{3, 7}, results.results)
	assert.Zero(t, results.lasts)
}

func TestLocal_ReExecuteRunsEveryTarget(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 12, Members: []string{"m1"}})

	fn := &recordingFunction{id: "sum"}
	fn.fail = func(fc *models.FunctionContext) error {
		if fc.Args == "client-a" && fc.Bucket == 5 {
			return protocol.ErrTargetInvocation
		}

		return fc.Results.SendResult(fc.Bucket)
	}

	eng := newEngine()

	first := contextFor(region, fn)
	first.Args = "client-a"

	err := eng.Execute(context.Background(), region, fn, first, &collector{})

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Len(t, fn.buckets(), 12)

	fn.reset()

	second := contextFor(region, fn)
	second.ID = "e2"
	second.Args = "client-b"
	second.IsReExecute = true

	results := &collector{}

	require.NoError(t, eng.Execute(context.Background(), region, fn, second, results))
	assert.Len(t, fn.buckets(), 12)
	assert.Len(t, results.results, 12)

	for _, fc := range fn.calls {
		assert.True(t, fc.IsReExecute)
	}
}

func TestLocal_PrefersInternalFailure(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 3, Members: []string{"m1"}})

	fn := &recordingFunction{id: "f"}
	fn.fail = func(fc *models.FunctionContext) error {
		if fc.Bucket == 1 {
			return models.NewInternalTargetInvocationError("moved", []string{"m9"})
		}

		return errors.New("plain")
	}

	err := newEngine().Execute(context.Background(), region, fn, contextFor(region, fn), &collector{})

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []string{"m9"}, execErr.FailedMembers)
}

func TestLocal_Timeout(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "config", Topology: "replicated", Members: []string{"m1"}})

	fn := &recordingFunction{id: "f"}
	fn.fail = func(*models.FunctionContext) error {
		return context.DeadlineExceeded
	}

	ec := contextFor(region, fn)
	ec.TimeoutMillis = 10

	err := newEngine().Execute(context.Background(), region, fn, ec, &collector{})

	var execErr *models.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.CauseTargetInvocation, execErr.Cause)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal_PanicInBucket(t *testing.T) {
	t.Parallel()

	region := newRegion(t, catalog.RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 2, Members: []string{"m1"}})

	fn := &recordingFunction{id: "f"}
	fn.fail = func(*models.FunctionContext) error {
		panic("boom")
	}

	err := newEngine().Execute(context.Background(), region, fn, contextFor(region, fn), &collector{})
	require.ErrorContains(t, err, "panicked")
}

func TestBucketFor(t *testing.T) {
	t.Parallel()

	for _, key := range []any{"a", "order-17", 42, int64(-3)} {
		b := BucketFor(key, 13)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 13)
		assert.Equal(t, b, BucketFor(key, 13))
	}

	assert.Equal(t, BucketFor(int32(9), 7), BucketFor(uint64(9), 7))
}
