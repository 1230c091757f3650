package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/gridfn/pkg/protocol"
)

// Memory is a catalog held in process.
type Memory struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	regions map[string]*Region
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger:  logger.With("module", "memory_catalog"),
		regions: make(map[string]*Region),
	}
}

// Add registers or replaces a region.
func (m *Memory) Add(spec RegionSpec) (*Region, error) {
	region, err := NewRegion(spec)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.regions[region.Name()] = region
	m.mu.Unlock()

	m.logger.Debug("Region added", "region", region.Name(), "topology", region.Topology().String())

	return region, nil
}

func (m *Memory) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.regions, name)
}

// nolint:ireturn // satisfies protocol.RegionLookup
func (m *Memory) Region(_ context.Context, name string) (protocol.Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	region, ok := m.regions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrRegionNotFound, name)
	}

	return region, nil
}

// List returns the specs of every region, sorted by name.
func (m *Memory) List(context.Context) ([]RegionSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	specs := make([]RegionSpec, 0, len(m.regions))
	for _, r := range m.regions {
		specs = append(specs, r.Spec())
	}

	slices.SortFunc(specs, func(a, b RegionSpec) int {
		return strings.Compare(a.Name, b.Name)
	})

	return specs, nil
}
