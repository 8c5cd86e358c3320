package provider

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every *Error wraps exactly one of them so callers can branch
// with errors.Is.
var (
	// ErrConfiguration indicates an unsupported or malformed base address.
	ErrConfiguration = errors.New("invalid provider configuration")

	// ErrTransport indicates the remote service could not be reached.
	ErrTransport = errors.New("provider unreachable")

	// ErrProtocol indicates a non-success status or a response that does
	// not have the expected shape.
	ErrProtocol = errors.New("unexpected provider response")

	// ErrStream indicates a failure surfaced while reading an event stream.
	ErrStream = errors.New("provider stream failed")

	// ErrCancelled indicates the caller aborted the request.
	ErrCancelled = errors.New("request cancelled")
)

// Error is a completion failure with the diagnostics the remote side gave us.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Body is the raw response body, truncated to a diagnostic size.
	Body string

	// Diagnostic is Body decoded as JSON, when it parses.
	Diagnostic any

	// Err is the underlying cause, if any.
	Err error

	// Op names the failed operation, e.g. "workersai: chat completion".
	Op string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsCancelled reports whether err stems from the caller ending the request
// rather than from the provider.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}
