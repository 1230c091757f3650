package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidArguments = errors.New("invalid function arguments")

// ValidateArgs checks args against the function's argument schema. Functions
// without a schema accept anything.
func ValidateArgs(fn models.Function, args any) error {
	provider, ok := fn.(models.SchemaProvider)
	if !ok {
		return nil
	}

	schema := provider.ArgsSchema()
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("failed to validate arguments of %s: %w", fn.Descriptor().ID, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}

	return fmt.Errorf("%w for %s: %s", ErrInvalidArguments, fn.Descriptor().ID, strings.Join(problems, "; "))
}
