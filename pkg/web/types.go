package web

import (
	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
)

// FunctionResponse describes a registered function.
type FunctionResponse struct {
	models.FunctionDescriptor

	State       string              `json:"state"`
	Permissions []models.Permission `json:"permissions,omitempty"`
	ArgsSchema  map[string]any      `json:"args_schema,omitempty"`
}

func newFunctionResponse(fn models.Function) FunctionResponse {
	descriptor := fn.Descriptor()

	resp := FunctionResponse{
		FunctionDescriptor: descriptor,
		State:              descriptor.State().String(),
	}

	if p, ok := fn.(models.PermissionProvider); ok {
		resp.Permissions = p.RequiredPermissions("*")
	}

	if s, ok := fn.(models.SchemaProvider); ok {
		resp.ArgsSchema = s.ArgsSchema()
	}

	return resp
}

// RegionResponse describes a region as resolved by this member.
type RegionResponse struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Topology    string   `json:"topology"`
	BucketCount int      `json:"bucket_count"`
	Members     []string `json:"members"`
}

func newRegionResponse(r protocol.Region) RegionResponse {
	members := r.Members()
	if members == nil {
		members = []string{}
	}

	return RegionResponse{
		Name:        r.Name(),
		Path:        r.FullPath(),
		Topology:    r.Topology().String(),
		BucketCount: r.BucketCount(),
		Members:     members,
	}
}
