// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dispatch

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/options"
)

type (
	// RegistryOptions are the resolved registry options.
	RegistryOptions struct {
		Observers         Observers
		Capacity          int
		Backpressure      Backpressure
		MessageProperties []string
		Logger            *slog.Logger
	}

	// RegistryOption represents a single registry option.
	RegistryOption interface{ registry(*RegistryOptions) }

	// Observers is a set of event kinds the application consumes.
	Observers uint8

	// Backpressure decides what a native callback does when an observer
	// channel is full.
	Backpressure int

	// WithObservers selects the observer channels to create. Events of
	// other kinds get their fail-safe default.
	WithObservers Observers

	// WithCapacity sets the buffer size of every observer channel.
	WithCapacity int

	// WithBackpressure selects the behavior on a full observer channel.
	WithBackpressure Backpressure

	withMessageProperties []string

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	ObserveConnectionStatus Observers = 1 << iota
	ObserveTwin
	ObserveMethods
	ObserveMessages

	ObserveAll = ObserveConnectionStatus | ObserveTwin |
		ObserveMethods | ObserveMessages
)

const (
	// Block stalls the native callback goroutine until the observer has
	// room or the registry is closed.
	Block Backpressure = iota
	// Drop discards the event and counts it.
	Drop
)

// DefaultCapacity is the observer channel buffer size used when none is
// given.
const DefaultCapacity = 100

func (o WithObservers) registry(opt *RegistryOptions) {
	opt.Observers |= Observers(o)
}

func (o WithCapacity) registry(opt *RegistryOptions) {
	opt.Capacity = int(o)
}

func (o WithBackpressure) registry(opt *RegistryOptions) {
	opt.Backpressure = Backpressure(o)
}

// WithIncomingMessageProperties selects the application property keys read
// from every incoming message.
func WithIncomingMessageProperties(keys ...string) RegistryOption {
	return withMessageProperties(keys)
}

func (o withMessageProperties) registry(opt *RegistryOptions) {
	opt.MessageProperties = append(opt.MessageProperties, o...)
}

// WithLogger enables logging of dispatched and dropped events.
func WithLogger(logger *slog.Logger) RegistryOption {
	return withLogger{logger}
}

func (o withLogger) registry(opt *RegistryOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *RegistryOptions) Apply(opts []RegistryOption, rest ...RegistryOption) {
	for opt := range options.Apply[RegistryOption](opts, rest...) {
		opt.registry(o)
	}
}

func (o *RegistryOptions) validate() error {
	switch {
	case o.Capacity < 0:
		return &errors.Error{
			Message:       "observer capacity cannot be negative",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "Capacity",
			PropertyValue: o.Capacity,
		}
	case o.Backpressure != Block && o.Backpressure != Drop:
		return &errors.Error{
			Message:       "unknown backpressure mode",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "Backpressure",
			PropertyValue: o.Backpressure,
		}
	}
	if i := slices.IndexFunc(o.MessageProperties, func(k string) bool {
		return strings.ContainsRune(k, 0)
	}); i >= 0 {
		return &errors.Error{
			Message:       "message property key contains a null byte",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "MessageProperties",
			PropertyValue: o.MessageProperties[i],
		}
	}
	return nil
}

func (b Backpressure) String() string {
	switch b {
	case Block:
		return "block"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}
