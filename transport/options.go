// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"log/slog"

	"github.com/Azure/iothub-client-go/internal/options"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// TwinOptions are the resolved transport options.
	TwinOptions struct {
		Protocol native.Protocol
		Input    string
		Logger   *slog.Logger
	}

	// TwinOption represents a single transport option.
	TwinOption interface{ twin(*TwinOptions) }

	// WithProtocol selects the native transport. MQTT is the default.
	WithProtocol native.Protocol

	// WithInput names the module input that incoming messages are read from.
	WithInput string

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// DefaultInput is the module input registered for incoming messages.
const DefaultInput = "input"

func (o WithProtocol) twin(opt *TwinOptions) {
	opt.Protocol = native.Protocol(o)
}

func (o WithInput) twin(opt *TwinOptions) {
	opt.Input = string(o)
}

// WithLogger enables logging of native client calls.
func WithLogger(logger *slog.Logger) TwinOption {
	return withLogger{logger}
}

func (o withLogger) twin(opt *TwinOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *TwinOptions) Apply(opts []TwinOption, rest ...TwinOption) {
	for opt := range options.Apply[TwinOption](opts, rest...) {
		opt.twin(o)
	}
}
