package models

import (
	"fmt"
	"time"
)

// Topology is how a region's data is spread over its members.
type Topology int

const (
	TopologyReplicated Topology = iota
	TopologyPartitioned
)

func (t Topology) String() string {
	switch t {
	case TopologyReplicated:
		return "replicated"
	case TopologyPartitioned:
		return "partitioned"
	default:
		return fmt.Sprintf("Topology(%d)", int(t))
	}
}

// ParseTopology accepts the names produced by String.
func ParseTopology(s string) (Topology, error) {
	switch s {
	case "replicated", "distributed":
		return TopologyReplicated, nil
	case "partitioned":
		return TopologyPartitioned, nil
	default:
		return 0, fmt.Errorf("unknown topology %q", s)
	}
}

// TargetScope tells the engine how to read Targets.
type TargetScope int

const (
	// ScopeAllMembers runs on every hosting member (replicated regions).
	ScopeAllMembers TargetScope = iota
	// ScopeAllBuckets runs on every bucket of a partitioned region.
	ScopeAllBuckets
	// ScopeBuckets runs on exactly the bucket ids in Targets.
	ScopeBuckets
	// ScopeKeys runs on the buckets owning the keys in Targets.
	ScopeKeys
)

func (s TargetScope) String() string {
	switch s {
	case ScopeAllMembers:
		return "all-members"
	case ScopeAllBuckets:
		return "all-buckets"
	case ScopeBuckets:
		return "buckets"
	case ScopeKeys:
		return "keys"
	default:
		return fmt.Sprintf("TargetScope(%d)", int(s))
	}
}

// ExecutionContext describes where one call runs. It is built per call and
// owned by the command for the duration of that call.
type ExecutionContext struct {
	ID         string
	RegionName string
	RegionPath string
	Topology   Topology
	Function   FunctionDescriptor

	Scope TargetScope
	// Targets is the filter minus excluded members on partitioned regions.
	Targets IDSet
	// Filter is the decoded filter; on replicated regions it only scopes keys.
	Filter          IDSet
	ExcludedMembers IDSet

	Args        any
	MemberArgs  *MemberMappedArgument
	IsReExecute bool
	// LocalOnly marks a single-key call with a result as eligible to run
	// on this member without hopping.
	LocalOnly     bool
	TimeoutMillis int32
}

// Timeout is zero when the client did not ask for one.
func (ec *ExecutionContext) Timeout() time.Duration {
	if ec.TimeoutMillis <= 0 {
		return 0
	}

	return time.Duration(ec.TimeoutMillis) * time.Millisecond
}
