package command

import (
	"errors"
	"fmt"

	"github.com/dukex/gridfn/pkg/protocol"
)

var (
	ErrMissingPart          = errors.New("message part is missing")
	ErrNegativeSize         = errors.New("negative set size")
	ErrUnsupportedFunction  = errors.New("unsupported function reference")
	ErrMissingRequiredField = errors.New("required input for the execute function request is missing")
	ErrUnregisteredFunction = errors.New("function has not been registered")
	ErrAttributeMismatch    = errors.New("function attributes do not match between client and server")
	ErrRegionNotFound       = protocol.ErrRegionNotFound
)

// DecodeError aborts decoding. It keeps what was learned before the
// failure: whether the client expects a chunked reply and, for logging, the
// function reference.
type DecodeError struct {
	HasResult bool
	Function  string
	Part      int
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode execute function request at part %d: %v", e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FieldError reports a missing required input by name.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("the input %s for the execute function request is null", e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrMissingRequiredField
}

// FunctionError is a resolution failure for a named function.
type FunctionError struct {
	FunctionID string
	Err        error
}

func (e *FunctionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnregisteredFunction):
		return fmt.Sprintf("the function %s has not been registered", e.FunctionID)
	case errors.Is(e.Err, ErrAttributeMismatch):
		return fmt.Sprintf("function attributes at client and server do not match for %s", e.FunctionID)
	default:
		return fmt.Sprintf("function %s: %v", e.FunctionID, e.Err)
	}
}

func (e *FunctionError) Unwrap() error {
	return e.Err
}
