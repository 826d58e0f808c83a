// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub

import (
	"log/slog"
	"time"

	"github.com/Azure/iothub-client-go/confirm"
	"github.com/Azure/iothub-client-go/dispatch"
	"github.com/Azure/iothub-client-go/internal/options"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// ClientOptions are the resolved client options.
	ClientOptions struct {
		Library native.Library

		Observers         dispatch.Observers
		Capacity          int
		Backpressure      dispatch.Backpressure
		MessageProperties []string

		ConfirmationTimeout time.Duration
		ShutdownTimeout     time.Duration
		OnConfirmation      func(confirm.Result)

		// DoWorkFrequency is the native pump interval, if configured. Values
		// above MaxDoWorkFrequency are ignored.
		DoWorkFrequency *time.Duration
		SDKLogs         bool
		ModelID         string
		MessageTimeout  time.Duration
		RetryPolicy     *RetryPolicy
		Protocol        native.Protocol
		Input           string

		Logger *slog.Logger

		// Unparseable DO_WORK_FREQUENCY_IN_MS value, logged at setup.
		invalidDoWork string
	}

	// ClientOption represents a single client option.
	ClientOption interface{ client(*ClientOptions) }

	// RetryPolicy is the reconnect policy handed to the native client.
	RetryPolicy struct {
		Policy native.RetryPolicy
		// Timeout bounds reconnection; zero retries forever.
		Timeout time.Duration
	}

	// WithObservers selects the observer channels the application reads.
	WithObservers dispatch.Observers

	// WithCapacity sets the buffer size of every observer channel.
	WithCapacity int

	// WithBackpressure selects what happens when an observer is full.
	WithBackpressure dispatch.Backpressure

	// WithConfirmationTimeout bounds how long each send confirmation is
	// awaited.
	WithConfirmationTimeout time.Duration

	// WithShutdownTimeout bounds how long Shutdown drains confirmations when
	// its context has no deadline.
	WithShutdownTimeout time.Duration

	// WithConfirmationHandler receives every confirmation outcome.
	WithConfirmationHandler func(confirm.Result)

	// WithDoWorkFrequency sets the native pump interval, at most
	// MaxDoWorkFrequency.
	WithDoWorkFrequency time.Duration

	// WithSDKLogs enables the native SDK's own verbose logging.
	WithSDKLogs bool

	// WithModelID announces a plug-and-play model id.
	WithModelID string

	// WithMessageTimeout sets the native per-message send timeout.
	WithMessageTimeout time.Duration

	// WithProtocol selects the native transport.
	WithProtocol native.Protocol

	// WithInput names the module input incoming messages are read from.
	WithInput string

	withRetryPolicy       RetryPolicy
	withLibrary           struct{ native.Library }
	withMessageProperties []string

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// MaxDoWorkFrequency is the largest accepted native pump interval.
const MaxDoWorkFrequency = 100 * time.Millisecond

func (o WithObservers) client(opt *ClientOptions) {
	opt.Observers |= dispatch.Observers(o)
}

func (o WithCapacity) client(opt *ClientOptions) {
	opt.Capacity = int(o)
}

func (o WithBackpressure) client(opt *ClientOptions) {
	opt.Backpressure = dispatch.Backpressure(o)
}

func (o WithConfirmationTimeout) client(opt *ClientOptions) {
	opt.ConfirmationTimeout = time.Duration(o)
}

func (o WithShutdownTimeout) client(opt *ClientOptions) {
	opt.ShutdownTimeout = time.Duration(o)
}

func (o WithConfirmationHandler) client(opt *ClientOptions) {
	opt.OnConfirmation = o
}

func (o WithDoWorkFrequency) client(opt *ClientOptions) {
	d := time.Duration(o)
	opt.DoWorkFrequency = &d
}

func (o WithSDKLogs) client(opt *ClientOptions) {
	opt.SDKLogs = bool(o)
}

func (o WithModelID) client(opt *ClientOptions) {
	opt.ModelID = string(o)
}

func (o WithMessageTimeout) client(opt *ClientOptions) {
	opt.MessageTimeout = time.Duration(o)
}

func (o WithProtocol) client(opt *ClientOptions) {
	opt.Protocol = native.Protocol(o)
}

func (o WithInput) client(opt *ClientOptions) {
	opt.Input = string(o)
}

// WithRetryPolicy sets the native reconnect policy. A zero timeout retries
// forever.
func WithRetryPolicy(p native.RetryPolicy, timeout time.Duration) ClientOption {
	return withRetryPolicy{p, timeout}
}

func (o withRetryPolicy) client(opt *ClientOptions) {
	p := RetryPolicy(o)
	opt.RetryPolicy = &p
}

// WithLibrary selects the native SDK. The pure-Go MQTT implementation is
// used by default.
func WithLibrary(lib native.Library) ClientOption {
	return withLibrary{lib}
}

func (o withLibrary) client(opt *ClientOptions) {
	opt.Library = o.Library
}

// WithIncomingMessageProperties selects the application property keys read
// from every incoming message.
func WithIncomingMessageProperties(keys ...string) ClientOption {
	return withMessageProperties(keys)
}

func (o withMessageProperties) client(opt *ClientOptions) {
	opt.MessageProperties = append(opt.MessageProperties, o...)
}

// WithLogger enables logging throughout the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return withLogger{logger}
}

func (o withLogger) client(opt *ClientOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for opt := range options.Apply[ClientOption](opts, rest...) {
		opt.client(o)
	}
}

func (o *ClientOptions) registry() []dispatch.RegistryOption {
	return []dispatch.RegistryOption{
		dispatch.WithObservers(o.Observers),
		dispatch.WithCapacity(o.Capacity),
		dispatch.WithBackpressure(o.Backpressure),
		dispatch.WithIncomingMessageProperties(o.MessageProperties...),
		dispatch.WithLogger(o.Logger),
	}
}

func (o *ClientOptions) tracker() []confirm.TrackerOption {
	opts := []confirm.TrackerOption{
		confirm.WithTimeout(o.ConfirmationTimeout),
		confirm.WithShutdownTimeout(o.ShutdownTimeout),
		confirm.WithLogger(o.Logger),
	}
	if o.OnConfirmation != nil {
		opts = append(opts, confirm.WithResultHandler(o.OnConfirmation))
	}
	return opts
}
