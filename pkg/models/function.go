// Package models defines the data exchanged between the function execution
// command, the function registry and the execution engine.
package models

import (
	"context"
	"errors"
	"fmt"
)

// FunctionState packs the three function attributes into one byte:
// bit0 isHA, bit1 hasResult, bit2 optimizeForWrite.
type FunctionState byte

const (
	StateNoHANoResultNoOptimize FunctionState = 0
	// StateUnset is the legacy sentinel a client sends when it does not know
	// the function attributes. It doubles as "HA without result", which is
	// never a valid registration.
	StateUnset                FunctionState = 1
	StateNoHAResultNoOptimize FunctionState = 2
	StateHAResultNoOptimize   FunctionState = 3
	StateNoHANoResultOptimize FunctionState = 4
	StateHANoResultOptimize   FunctionState = 5
	StateNoHAResultOptimize   FunctionState = 6
	StateHAResultOptimize     FunctionState = 7
)

const (
	stateHABit       = 1 << 0
	stateResultBit   = 1 << 1
	stateOptimizeBit = 1 << 2
)

// NewFunctionState is the canonical mapping shared by client and server.
func NewFunctionState(isHA, hasResult, optimizeForWrite bool) FunctionState {
	var s FunctionState
	if isHA {
		s |= stateHABit
	}

	if hasResult {
		s |= stateResultBit
	}

	if optimizeForWrite {
		s |= stateOptimizeBit
	}

	return s
}

// HasResult applies the wire rule: the sentinel counts as having a result,
// otherwise bit1 decides.
func (s FunctionState) HasResult() bool {
	if s == StateUnset {
		return true
	}

	return s&stateResultBit != 0
}

func (s FunctionState) IsHA() bool {
	return s&stateHABit != 0
}

func (s FunctionState) OptimizeForWrite() bool {
	return s&stateOptimizeBit != 0
}

func (s FunctionState) String() string {
	return fmt.Sprintf("%d(ha=%t,result=%t,optimizeForWrite=%t)", byte(s), s.IsHA(), s&stateResultBit != 0, s.OptimizeForWrite())
}

var (
	ErrFunctionIDRequired = errors.New("function id is required")
	ErrHAWithoutResult    = errors.New("an HA function must return a result")
)

// FunctionDescriptor holds the server-side attributes of a function.
type FunctionDescriptor struct {
	ID               string `json:"id"                 cbor:"id"`
	HA               bool   `json:"ha"                 cbor:"ha"`
	HasResult        bool   `json:"has_result"         cbor:"has_result"`
	OptimizeForWrite bool   `json:"optimize_for_write" cbor:"optimize_for_write"`
}

func (d FunctionDescriptor) State() FunctionState {
	return NewFunctionState(d.HA, d.HasResult, d.OptimizeForWrite)
}

func (d FunctionDescriptor) Validate() error {
	if d.ID == "" {
		return ErrFunctionIDRequired
	}

	if d.HA && !d.HasResult {
		return fmt.Errorf("function %s: %w", d.ID, ErrHAWithoutResult)
	}

	return nil
}

// Function is user code the engine runs on each target.
type Function interface {
	Descriptor() FunctionDescriptor
	Execute(ctx context.Context, fc *FunctionContext) error
}

// PermissionProvider is implemented by functions that need more than the
// default execute permission on the region.
type PermissionProvider interface {
	RequiredPermissions(regionName string) []Permission
}

// SchemaProvider is implemented by functions that describe their arguments
// with a JSON schema.
type SchemaProvider interface {
	ArgsSchema() map[string]any
}

// Permission is a resource/operation pair checked by the authorizer.
type Permission struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
}

func (p Permission) String() string {
	if p.Target == "" {
		return p.Resource + ":" + p.Operation
	}

	return p.Resource + ":" + p.Operation + ":" + p.Target
}

// ResultSender receives the results a function produces on one target.
type ResultSender interface {
	SendResult(v any) error
	LastResult(v any) error
}

// FunctionContext is what a single invocation of a function sees.
type FunctionContext struct {
	RegionName  string
	MemberID    string
	Bucket      int // -1 on replicated regions
	Args        any
	Filter      IDSet
	IsReExecute bool
	Results     ResultSender
}
