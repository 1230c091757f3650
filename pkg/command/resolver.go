package command

import (
	"github.com/dukex/gridfn/pkg/models"
)

// FunctionLookup finds registered functions by ID.
type FunctionLookup interface {
	Lookup(id string) (models.Function, bool)
}

// Resolver maps a function reference onto the function to run.
type Resolver struct {
	functions FunctionLookup
}

func NewResolver(functions FunctionLookup) *Resolver {
	return &Resolver{functions: functions}
}

// Resolve looks named functions up and checks that the attributes the
// client declared match the registered ones. Inline functions are taken as
// they are; the client built them.
func (r *Resolver) Resolve(req *models.ExecutionRequest) (models.Function, error) {
	if req.Function.IsInline() {
		return req.Function.Inline, nil
	}

	fn, ok := r.functions.Lookup(req.Function.ID)
	if !ok {
		return nil, &FunctionError{FunctionID: req.Function.ID, Err: ErrUnregisteredFunction}
	}

	if fn.Descriptor().State() != req.State {
		return nil, &FunctionError{FunctionID: req.Function.ID, Err: ErrAttributeMismatch}
	}

	return fn, nil
}
