// Package streamerr defines the taxonomy of errors shared across the
// capture, protocol and streaming subsystems.
//
// Every error raised by the CORE fits one of five kinds: a malformed frame
// (ProtocolError), a failed socket read/write (IoError), a capture device
// failure (DeviceError), a rate renegotiation trigger (RateMismatch), or a
// dropped chunk under backpressure (ResourceExhausted). Handlers translate
// lower-level errors into one of these via the New* constructors so callers
// can dispatch with errors.As without caring which subsystem raised it.
package streamerr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the five sanctioned error categories an error
// belongs to.
type Kind int

const (
	// KindProtocol marks a malformed frame, unexpected opcode or short payload.
	KindProtocol Kind = iota
	// KindIO marks a socket read/write failure.
	KindIO
	// KindDevice marks a capture device failure.
	KindDevice
	// KindRateMismatch marks an observed sampling-rate mismatch during streaming.
	KindRateMismatch
	// KindResourceExhausted marks a lossy drop (pool or writer queue full).
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindIO:
		return "IoError"
	case KindDevice:
		return "DeviceError"
	case KindRateMismatch:
		return "RateMismatch"
	case KindResourceExhausted:
		return "ResourceExhausted"
	default:
		return "UnknownError"
	}
}

// Error is a taxonomy-tagged error. Component is the subsystem that raised
// it (e.g. "slimproto", "httpsession", "pipeline"); it is informational only.
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Component, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, streamerr.Protocol) style matching against a
// bare Kind sentinel by comparing kinds, not identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, component string, err error) *Error {
	return &Error{Kind: kind, Component: component, Err: err}
}

// Protocol wraps err as a ProtocolError raised by component.
func Protocol(component string, err error) *Error { return newErr(KindProtocol, component, err) }

// IO wraps err as an IoError raised by component.
func IO(component string, err error) *Error { return newErr(KindIO, component, err) }

// Device wraps err as a DeviceError raised by component.
func Device(component string, err error) *Error { return newErr(KindDevice, component, err) }

// RateMismatch wraps err as a RateMismatch raised by component.
func RateMismatch(component string, err error) *Error {
	return newErr(KindRateMismatch, component, err)
}

// ResourceExhausted wraps err as a ResourceExhausted raised by component.
// Callers must treat this kind as non-fatal: log at WARNING and drop.
func ResourceExhausted(component string, err error) *Error {
	return newErr(KindResourceExhausted, component, err)
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
