// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Normalize well-known errors into client errors.
func Normalize(err error, msg string) error {
	if e, ok := err.(*Error); ok {
		return e
	}

	switch {
	case err == nil:
		return nil

	case os.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return &Error{
			Message:     fmt.Sprintf("%s timed out", msg),
			Kind:        Timeout,
			TimeoutName: msg,
			NestedError: err,
		}

	case errors.Is(err, context.Canceled):
		return &Error{
			Message:     fmt.Sprintf("%s cancelled", msg),
			Kind:        Cancellation,
			NestedError: err,
		}

	default:
		return &Error{
			Message:     fmt.Sprintf("%s error: %s", msg, err.Error()),
			Kind:        UnknownError,
			NestedError: err,
		}
	}
}

// Context extracts the timeout or cancellation error from a context.
func Context(ctx context.Context, msg string) error {
	if err := context.Cause(ctx); err != nil && err != ctx.Err() {
		return err
	}
	return Normalize(ctx.Err(), msg)
}

// Native reports a failed native SDK call.
func Native(call string, nested error) *Error {
	msg := fmt.Sprintf("%s failed", call)
	if nested != nil {
		msg = fmt.Sprintf("%s: %s", msg, nested.Error())
	}
	return &Error{
		Message:     msg,
		Kind:        NativeCallFailed,
		NativeCall:  call,
		NestedError: nested,
	}
}

// Is reports whether err is a client error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
