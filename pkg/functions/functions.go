// Package functions provides the built-in functions every member registers.
package functions

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/fxamacker/cbor/v2"
)

var ErrInvalidArgs = errors.New("invalid arguments")

var argsDecoder, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// Builtins returns every built-in function. client is used by the HTTP
// request function; nil selects http.DefaultClient.
func Builtins(logger *slog.Logger, client *http.Client) []models.Function {
	if client == nil {
		client = http.DefaultClient
	}

	return []models.Function{
		NewTransform(),
		NewHTTPRequest(client),
		NewLog(logger),
	}
}

// decodeArgs converts the generic decoded argument value into out.
func decodeArgs(id string, args any, out any) error {
	if args == nil {
		return fmt.Errorf("%w for %s: arguments are required", ErrInvalidArgs, id)
	}

	data, err := cbor.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidArgs, id, err)
	}

	err = argsDecoder.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidArgs, id, err)
	}

	return nil
}
