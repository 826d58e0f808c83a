// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package confirm

import (
	"log/slog"
	"time"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/options"
)

type (
	// TrackerOptions are the resolved tracker options.
	TrackerOptions struct {
		Timeout         time.Duration
		ShutdownTimeout time.Duration
		OnResult        func(Result)
		Logger          *slog.Logger
	}

	// TrackerOption represents a single tracker option.
	TrackerOption interface{ tracker(*TrackerOptions) }

	// WithTimeout bounds how long each confirmation is awaited.
	WithTimeout time.Duration

	// WithShutdownTimeout bounds how long Shutdown drains in-flight
	// confirmations when its context has no deadline.
	WithShutdownTimeout time.Duration

	// WithResultHandler is called with every confirmation outcome, on the
	// goroutine that awaited it.
	WithResultHandler func(Result)

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	// DefaultTimeout is the confirmation timeout used when none is given.
	DefaultTimeout = 5 * time.Second

	// DefaultShutdownTimeout is the drain timeout used when none is given.
	DefaultShutdownTimeout = 30 * time.Second
)

func (o WithTimeout) tracker(opt *TrackerOptions) {
	opt.Timeout = time.Duration(o)
}

func (o WithShutdownTimeout) tracker(opt *TrackerOptions) {
	opt.ShutdownTimeout = time.Duration(o)
}

func (o WithResultHandler) tracker(opt *TrackerOptions) {
	opt.OnResult = o
}

// WithLogger enables logging of confirmation outcomes.
func WithLogger(logger *slog.Logger) TrackerOption {
	return withLogger{logger}
}

func (o withLogger) tracker(opt *TrackerOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *TrackerOptions) Apply(opts []TrackerOption, rest ...TrackerOption) {
	for opt := range options.Apply[TrackerOption](opts, rest...) {
		opt.tracker(o)
	}
}

func (o *TrackerOptions) validate() error {
	for name, d := range map[string]time.Duration{
		"Timeout":         o.Timeout,
		"ShutdownTimeout": o.ShutdownTimeout,
	} {
		if d < 0 {
			return &errors.Error{
				Message:       "timeout cannot be negative",
				Kind:          errors.ConfigurationInvalid,
				PropertyName:  name,
				PropertyValue: d,
			}
		}
	}
	return nil
}
