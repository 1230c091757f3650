package functions

import (
	"context"
	"fmt"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/template"
)

const TransformID = "gridfn.transform"

type transformArgs struct {
	Expression string `cbor:"expression"`
	Data       any    `cbor:"data"`
}

// Transform renders a template expression on every target and sends what
// it produced.
type Transform struct{}

func NewTransform() *Transform {
	return &Transform{}
}

func (f *Transform) Descriptor() models.FunctionDescriptor {
	return models.FunctionDescriptor{ID: TransformID, HasResult: true}
}

func (f *Transform) ArgsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"expression"},
		"properties": map[string]any{
			"expression": map[string]any{"type": "string", "minLength": 1},
		},
	}
}

func (f *Transform) Execute(_ context.Context, fc *models.FunctionContext) error {
	var args transformArgs

	err := decodeArgs(TransformID, fc.Args, &args)
	if err != nil {
		return err
	}

	result, err := template.RenderForFunction(args.Expression, fc, args.Data)
	if err != nil {
		return fmt.Errorf("transformation failed: %w", err)
	}

	return fc.Results.SendResult(result)
}
