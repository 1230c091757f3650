package command

import (
	"errors"

	"github.com/dukex/gridfn/pkg/models"
)

// Classify maps an execution failure onto the handling it gets. Only the
// cause tag reported by the engine and the function's HA attribute decide.
func Classify(err error, isHA bool) models.FailureKind {
	var transportErr *models.TransportError
	if errors.As(err, &transportErr) {
		return models.FailureTransport
	}

	var execErr *models.ExecutionError
	if !errors.As(err, &execErr) || !execErr.Cause.IsTargetInvocation() {
		return models.FailureGeneric
	}

	switch {
	case execErr.Cause == models.CauseInternalTargetInvocation:
		return models.FailureInternalRetryable
	case isHA:
		return models.FailureHARetryable
	default:
		return models.FailureUserVisible
	}
}
