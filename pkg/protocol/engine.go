package protocol

import (
	"context"
	"errors"

	"github.com/dukex/gridfn/pkg/models"
)

// ErrTargetInvocation is wrapped by functions to report that their target
// could not serve the call, as opposed to failing on its own.
var ErrTargetInvocation = errors.New("target invocation failed")

// Engine runs a function against the targets described by an execution
// context. It blocks until every target finished; results stream through
// results as they arrive. Failures are reported as *models.ExecutionError
// when the engine can tell why a target failed.
type Engine interface {
	Execute(ctx context.Context, region Region, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, region Region, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) error

func (f EngineFunc) Execute(ctx context.Context, region Region, fn models.Function, ec *models.ExecutionContext, results models.ResultSender) error {
	return f(ctx, region, fn, ec, results)
}
