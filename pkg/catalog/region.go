// Package catalog resolves region names to regions hosted by this member.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/gridfn/pkg/models"
)

var ErrInvalidRegion = errors.New("invalid region definition")

// RegionSpec is the stored description of a region.
type RegionSpec struct {
	Name     string   `json:"name"              yaml:"name"`
	Path     string   `json:"path,omitempty"    yaml:"path,omitempty"`
	Topology string   `json:"topology"          yaml:"topology"`
	Buckets  int      `json:"buckets,omitempty" yaml:"buckets,omitempty"`
	Members  []string `json:"members,omitempty" yaml:"members,omitempty"`
}

// Region is an immutable protocol.Region built from a RegionSpec.
type Region struct {
	name     string
	path     string
	topology models.Topology
	buckets  int
	members  []string
}

// NewRegion validates spec. A missing path defaults to "/" + name.
func NewRegion(spec RegionSpec) (*Region, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRegion)
	}

	topology, err := models.ParseTopology(strings.ToLower(spec.Topology))
	if err != nil {
		return nil, fmt.Errorf("%w: region %s: %w", ErrInvalidRegion, spec.Name, err)
	}

	if topology == models.TopologyPartitioned && spec.Buckets <= 0 {
		return nil, fmt.Errorf("%w: partitioned region %s needs a bucket count", ErrInvalidRegion, spec.Name)
	}

	if topology == models.TopologyReplicated {
		spec.Buckets = 0
	}

	path := spec.Path
	if path == "" {
		path = "/" + spec.Name
	}

	return &Region{
		name:     spec.Name,
		path:     path,
		topology: topology,
		buckets:  spec.Buckets,
		members:  append([]string(nil), spec.Members...),
	}, nil
}

func (r *Region) Name() string              { return r.name }
func (r *Region) FullPath() string          { return r.path }
func (r *Region) Topology() models.Topology { return r.topology }
func (r *Region) BucketCount() int          { return r.buckets }

func (r *Region) Members() []string {
	return append([]string(nil), r.members...)
}

// BucketOwner spreads buckets round robin over the members.
func (r *Region) BucketOwner(bucket int) string {
	if len(r.members) == 0 || bucket < 0 || bucket >= r.buckets {
		return ""
	}

	return r.members[bucket%len(r.members)]
}

// Spec returns the description r was built from.
func (r *Region) Spec() RegionSpec {
	return RegionSpec{
		Name:     r.name,
		Path:     r.path,
		Topology: r.topology.String(),
		Buckets:  r.buckets,
		Members:  r.Members(),
	}
}
