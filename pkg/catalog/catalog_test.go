package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRegion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    RegionSpec
		wantErr bool
	}{
		{name: "replicated", spec: RegionSpec{Name: "config", Topology: "replicated"}},
		{name: "partitioned", spec: RegionSpec{Name: "orders", Topology: "PARTITIONED", Buckets: 8}},
		{name: "missing name", spec: RegionSpec{Topology: "replicated"}, wantErr: true},
		{name: "unknown topology", spec: RegionSpec{Name: "x", Topology: "mesh"}, wantErr: true},
		{name: "partitioned without buckets", spec: RegionSpec{Name: "x", Topology: "partitioned"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			region, err := NewRegion(tt.spec)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRegion)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "/"+tt.spec.Name, region.FullPath())
		})
	}
}

func TestRegion_BucketOwner(t *testing.T) {
	t.Parallel()

	region, err := NewRegion(RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 5, Members: []string{"m1", "m2"}})
	require.NoError(t, err)

	assert.Equal(t, "m1", region.BucketOwner(0))
	assert.Equal(t, "m2", region.BucketOwner(1))
	assert.Equal(t, "m1", region.BucketOwner(4))
	assert.Empty(t, region.BucketOwner(5))
	assert.Empty(t, region.BucketOwner(-1))

	replicated, err := NewRegion(RegionSpec{Name: "config", Topology: "replicated", Buckets: 9})
	require.NoError(t, err)
	assert.Zero(t, replicated.BucketCount())
	assert.Equal(t, models.TopologyReplicated, replicated.Topology())
}

func TestMemory(t *testing.T) {
	t.Parallel()

	m := NewMemory(discardLogger())

	_, err := m.Add(RegionSpec{Name: "orders", Topology: "partitioned", Buckets: 4})
	require.NoError(t, err)
	_, err = m.Add(RegionSpec{Name: "config", Topology: "replicated", Path: "/root/config"})
	require.NoError(t, err)

	region, err := m.Region(context.Background(), "config")
	require.NoError(t, err)
	assert.Equal(t, "/root/config", region.FullPath())

	specs, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "config", specs[0].Name)
	assert.Equal(t, "orders", specs[1].Name)

	m.Remove("config")

	_, err = m.Region(context.Background(), "config")
	require.ErrorIs(t, err, protocol.ErrRegionNotFound)
}

const catalogYAML = `
regions:
  - name: orders
    topology: partitioned
    buckets: 16
    members: [m1, m2]
  - name: config
    topology: replicated
`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	f, err := ParseYAML([]byte(catalogYAML))
	require.NoError(t, err)
	require.Len(t, f.Regions, 2)
	assert.Equal(t, 16, f.Regions[0].Buckets)
	assert.Equal(t, []string{"m1", "m2"}, f.Regions[0].Members)

	_, err = ParseYAML([]byte("regions:\n  - name: x\n    shards: 3\n"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	m, err := LoadFile(discardLogger(), path)
	require.NoError(t, err)

	region, err := m.Region(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, 16, region.BucketCount())

	_, err = LoadFile(discardLogger(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
