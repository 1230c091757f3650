// Package persistence stores the history of function executions.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionNotFound indicates no execution record has the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInvalidRecord indicates a record is missing its identity.
	ErrInvalidRecord = errors.New("invalid execution record")
)

// RecordError wraps history errors with the operation and execution id.
type RecordError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *RecordError) Error() string {
	if e.ExecutionID == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRecordError(op, executionID string, err error) *RecordError {
	return &RecordError{Op: op, ExecutionID: executionID, Err: err}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
