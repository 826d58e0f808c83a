// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "log/slog"

// Attrs returns additional error attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 4)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.NestedError != nil {
		a = append(a, slog.Any("nested_error", e.NestedError))
	}

	switch e.Kind {
	case NativeCallFailed:
		a = append(a, slog.String("native_call", e.NativeCall))
	case Timeout:
		a = append(a,
			slog.String("timeout_name", e.TimeoutName),
			slog.Duration("timeout_value", e.TimeoutValue),
		)
	case ConfigurationInvalid, ArgumentInvalid:
		a = append(a,
			slog.String("property_name", e.PropertyName),
			slog.Any("property_value", e.PropertyValue),
		)
	case StateInvalid, PayloadInvalid:
		if e.PropertyName != "" {
			a = append(a, slog.String("property_name", e.PropertyName))
		}
	}

	return a
}
