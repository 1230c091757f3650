package command

import (
	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
)

// BuildExecutionContext decides which members or buckets a call targets.
// It cannot fail; a stale region surfaces when the engine dispatches.
func BuildExecutionContext(id string, region protocol.Region, fn models.Function, req *models.ExecutionRequest) *models.ExecutionContext {
	ec := &models.ExecutionContext{
		ID:              id,
		RegionName:      region.Name(),
		RegionPath:      region.FullPath(),
		Topology:        region.Topology(),
		Function:        fn.Descriptor(),
		Filter:          req.Filter,
		ExcludedMembers: req.ExcludedMembers,
		Args:            req.Args,
		MemberArgs:      req.MemberArgs,
		IsReExecute:     req.IsReExecute,
		TimeoutMillis:   req.TimeoutMillis,
	}

	if ec.Topology != models.TopologyPartitioned {
		ec.Scope = models.ScopeAllMembers

		return ec
	}

	switch {
	case req.Filter.Empty():
		ec.Scope = models.ScopeAllBuckets
	case req.BucketsAsFilter:
		ec.Scope = models.ScopeBuckets
		ec.Targets = req.Filter.Minus(req.ExcludedMembers)
	default:
		ec.Scope = models.ScopeKeys
		ec.Targets = req.Filter.Minus(req.ExcludedMembers)
	}

	ec.LocalOnly = req.HasResult && req.Filter.Len() == 1

	return ec
}
