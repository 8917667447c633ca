// Package errors provides the error taxonomy shared by the convostream engine.
//
// ContextualError records which component failed, what it was doing, and a
// Kind that consumers switch on to decide how to react (prompt for
// reauthorization, offer a new connection, ignore). It implements Unwrap so
// it composes with the standard errors package.
//
// Usage:
//
//	err := errors.New("stream", "Open", cause).WithKind(errors.KindChannelError)
//	if errors.KindOf(err) == errors.KindUnauthorized { ... }
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind string

const (
	// KindNone means the error carries no classification.
	KindNone Kind = ""

	// KindUnauthorized means no usable credential was available when opening a channel,
	// or the server rejected the one presented.
	KindUnauthorized Kind = "unauthorized"

	// KindRefreshFailed means the refresh exchange failed. The refresh token is retained.
	KindRefreshFailed Kind = "refresh_failed"

	// KindChannelError is a transport failure after (or during) the handshake.
	KindChannelError Kind = "channel_error"

	// KindProtocolViolation is a frame the protocol does not allow at this point.
	// It is never fatal.
	KindProtocolViolation Kind = "protocol_violation"
)

// ContextualError is a structured error carrying the component, operation,
// classification and optional status code of a failure.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "auth", "stream", "api").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Kind classifies the failure.
	Kind Kind

	// StatusCode is an optional HTTP status or WebSocket close code.
	StatusCode int

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.Kind != KindNone {
		base += " <" + string(e.Kind) + ">"
	}

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithKind sets the classification and returns the error.
func (e *ContextualError) WithKind(kind Kind) *ContextualError {
	e.Kind = kind
	return e
}

// WithStatusCode sets the status code and returns the error.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithDetails sets the details map and returns the error.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// KindOf returns the Kind of the first ContextualError in err's chain
// that carries one, or KindNone.
func KindOf(err error) Kind {
	for err != nil {
		var ce *ContextualError
		if !stderrors.As(err, &ce) {
			return KindNone
		}
		if ce.Kind != KindNone {
			return ce.Kind
		}
		err = ce.Cause
	}
	return KindNone
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
