// Package protocol defines the collaborators the function execution command
// depends on but does not implement: region catalog, execution engine and
// authorization.
package protocol

import (
	"context"
	"errors"

	"github.com/dukex/gridfn/pkg/models"
)

var ErrRegionNotFound = errors.New("region not found")

// Region is a handle on a region hosted by this member.
type Region interface {
	Name() string
	FullPath() string
	Topology() models.Topology
	// Members lists the hosting members, local member first.
	Members() []string
	// BucketCount is zero for replicated regions.
	BucketCount() int
	// BucketOwner returns the member hosting bucket, or "" when unknown.
	BucketOwner(bucket int) string
}

// RegionLookup resolves region names. A missing region yields an error
// wrapping ErrRegionNotFound.
type RegionLookup interface {
	Region(ctx context.Context, name string) (Region, error)
}
