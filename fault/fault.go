// Package fault defines the invocation error taxonomy shared by the host.
//
// Every failure a caller can observe is one of the kinds below. Loading
// failures (dependency, contract) are scoped to one function; per-invocation
// failures (payload, execution, timeout, serialization) are scoped to one
// request. None of them are host faults.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDependencyResolution Kind = "DependencyResolutionError"
	KindContractViolation    Kind = "ContractViolationError"
	KindMalformedPayload     Kind = "MalformedPayloadError"
	KindHandlerExecution     Kind = "HandlerExecutionError"
	KindTimeout              Kind = "TimeoutError"
	KindSerialization        Kind = "SerializationError"
)

// Error is a classified host error. Cause, when set, preserves the underlying
// error for unwrapping; Message is what goes on the wire.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it as the cause.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == kind {
		return fe
	}
	return &Error{Kind: kind, Message: err.Error(), Cause: err}
}

// As extracts a classified error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf reports the kind of err, or false if err carries no classification.
func KindOf(err error) (Kind, bool) {
	if fe, ok := As(err); ok {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
