// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "time"

type (
	// Error represents a structured client error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		// NativeCall names the native SDK entry point that failed.
		NativeCall string

		TimeoutName  string
		TimeoutValue time.Duration

		PropertyName  string
		PropertyValue any
	}

	// Kind defines the type of error being returned.
	Kind int
)

// The following are the defined error kinds.
const (
	UnknownError Kind = iota
	ArgumentInvalid
	ConfigurationInvalid
	StateInvalid
	PayloadInvalid
	NativeCallFailed
	Timeout
	Cancellation
)

// Error returns the error as a string.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}

func (k Kind) String() string {
	switch k {
	case ArgumentInvalid:
		return "argument invalid"
	case ConfigurationInvalid:
		return "configuration invalid"
	case StateInvalid:
		return "state invalid"
	case PayloadInvalid:
		return "payload invalid"
	case NativeCallFailed:
		return "native call failed"
	case Timeout:
		return "timeout"
	case Cancellation:
		return "cancellation"
	default:
		return "unknown error"
	}
}
