package models

import (
	"errors"
	"fmt"
	"strings"
)

// CauseKind is the engine's tag on why an execution failed.
type CauseKind int

const (
	CauseUnknown CauseKind = iota
	// CauseTargetInvocation means a target could not run the function
	// (member crashed, bucket unavailable).
	CauseTargetInvocation
	// CauseQueryTargetInvocation is the query flavour of the above.
	CauseQueryTargetInvocation
	// CauseInternalTargetInvocation is a routing-level condition the client
	// recovers from on its own (bucket moved, member departed, several
	// candidates for a single hop). Never user visible.
	CauseInternalTargetInvocation
)

func (k CauseKind) String() string {
	switch k {
	case CauseTargetInvocation:
		return "target-invocation"
	case CauseQueryTargetInvocation:
		return "query-target-invocation"
	case CauseInternalTargetInvocation:
		return "internal-target-invocation"
	default:
		return "unknown"
	}
}

// IsTargetInvocation covers every target-invocation flavour.
func (k CauseKind) IsTargetInvocation() bool {
	return k == CauseTargetInvocation || k == CauseQueryTargetInvocation || k == CauseInternalTargetInvocation
}

// ExecutionError is the failure an engine reports for a call.
type ExecutionError struct {
	Cause   CauseKind
	Message string
	// FailedMembers is nil when the cause does not expose a failed set.
	FailedMembers []string
	Err           error
}

func (e *ExecutionError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Cause.String() + " failure"
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ExposesFailedMembers reports whether the client gets a failed member set.
func (e *ExecutionError) ExposesFailedMembers() bool {
	return e.Cause == CauseInternalTargetInvocation && e.FailedMembers != nil
}

func NewTargetInvocationError(message string, err error) *ExecutionError {
	return &ExecutionError{Cause: CauseTargetInvocation, Message: message, Err: err}
}

func NewInternalTargetInvocationError(message string, failedMembers []string) *ExecutionError {
	if failedMembers == nil {
		failedMembers = []string{}
	}

	return &ExecutionError{Cause: CauseInternalTargetInvocation, Message: message, FailedMembers: failedMembers}
}

// TransportError is a failure writing to the client connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FailureKind is the classification the command acts on.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureInternalRetryable
	FailureHARetryable
	FailureUserVisible
	FailureTransport
)

func (k FailureKind) String() string {
	switch k {
	case FailureGeneric:
		return "generic"
	case FailureInternalRetryable:
		return "internal-retryable"
	case FailureHARetryable:
		return "ha-retryable"
	case FailureUserVisible:
		return "user-visible"
	case FailureTransport:
		return "transport"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// RemoteException is the serialized exception object sent to clients.
type RemoteException struct {
	Type    string           `cbor:"type"    json:"type"`
	Message string           `cbor:"message" json:"message"`
	Cause   *RemoteException `cbor:"cause,omitempty"   json:"cause,omitempty"`
}

func (e *RemoteException) Error() string {
	return e.Message
}

// NewRemoteException captures err and its chain.
func NewRemoteException(err error) *RemoteException {
	if err == nil {
		return nil
	}

	ex := &RemoteException{Type: fmt.Sprintf("%T", err), Message: err.Error()}
	if cause := errors.Unwrap(err); cause != nil {
		ex.Cause = NewRemoteException(cause)
	}

	return ex
}

// FailureEnvelope is what a client receives for a failed call.
type FailureEnvelope struct {
	Kind       FailureKind
	Exception  *RemoteException
	StackTrace string
	// FailedMembers is sent as a third part when non-nil.
	FailedMembers []string
}

// NewFailureEnvelope renders err; the failed member set is carried only
// when the cause exposes one.
func NewFailureEnvelope(kind FailureKind, err error) FailureEnvelope {
	env := FailureEnvelope{
		Kind:       kind,
		Exception:  NewRemoteException(err),
		StackTrace: RenderTrace(err),
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.ExposesFailedMembers() {
		env.FailedMembers = append([]string{}, execErr.FailedMembers...)
	}

	return env
}

func (f FailureEnvelope) HasFailedMembers() bool {
	return f.FailedMembers != nil
}

// RenderTrace prints an error and every cause on its own line.
func RenderTrace(err error) string {
	var b strings.Builder

	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			b.WriteString("\ncaused by: ")
		}

		fmt.Fprintf(&b, "%T: %s", err, err.Error())
		err = errors.Unwrap(err)
	}

	return b.String()
}
