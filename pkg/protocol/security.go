package protocol

import (
	"context"
	"errors"

	"github.com/dukex/gridfn/pkg/models"
)

var ErrNotAuthorized = errors.New("not authorized")

// AuthorizeRequest carries what an execute authorization decision needs.
type AuthorizeRequest struct {
	Principal        string
	FunctionID       string
	RegionPath       string
	Filter           models.IDSet
	Args             any
	OptimizeForWrite bool
}

// Authorizer evaluates security policy.
type Authorizer interface {
	Authorize(ctx context.Context, principal string, permission models.Permission) error
	AuthorizeExecute(ctx context.Context, req AuthorizeRequest) error
}

// AllowAll grants everything.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, models.Permission) error {
	return nil
}

func (AllowAll) AuthorizeExecute(context.Context, AuthorizeRequest) error {
	return nil
}

// DefaultPermissions is what a function needs when it does not say
// otherwise: execute on the data of the region.
func DefaultPermissions(regionName string) []models.Permission {
	return []models.Permission{{Resource: "DATA", Operation: "WRITE", Target: regionName}}
}
