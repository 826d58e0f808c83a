// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package hubmqtt implements the native hub SDK in Go on top of MQTT, so the
// client runs without cgo. Connections are opened lazily once callbacks are
// registered, kept up according to the configured retry policy, and every
// callback runs on one dispatcher goroutine per client.
package hubmqtt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Azure/iothub-client-go/internal/handle"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/internal/options"
	"github.com/Azure/iothub-client-go/native"
)

// Version is reported by VersionString.
const Version = "hubmqtt/1.0.0"

type (
	// Library is an MQTT-backed native.Library.
	Library struct {
		options LibraryOptions
		msgs    *messages
		clients *handle.Table[*client]
		inits   atomic.Int32
	}

	// LibraryOptions are the resolved library options.
	LibraryOptions struct {
		ConnectionProvider ConnectionProvider
		Logger             *slog.Logger
	}

	// LibraryOption represents a single library option.
	LibraryOption interface{ library(*LibraryOptions) }

	// WithConnectionProvider overrides how network connections are opened.
	WithConnectionProvider ConnectionProvider

	withLogger struct{ *slog.Logger }

	device struct{ *Library }
	module struct{ *Library }
)

var defaultLibrary = sync.OnceValue(func() *Library { return New() })

// Default returns the process-wide library.
func Default() native.Library {
	return defaultLibrary()
}

// New creates a library with its own clients and message handles.
func New(opt ...LibraryOption) *Library {
	l := &Library{
		msgs:    newMessages(),
		clients: handle.NewTable[*client](),
	}
	l.options.Apply(opt)
	if l.options.ConnectionProvider == nil {
		l.options.ConnectionProvider = DefaultConnection
	}
	return l
}

func (o WithConnectionProvider) library(opt *LibraryOptions) {
	opt.ConnectionProvider = ConnectionProvider(o)
}

// WithLogger enables logging of connections and dispatched callbacks.
func WithLogger(logger *slog.Logger) LibraryOption {
	return withLogger{logger}
}

func (o withLogger) library(opt *LibraryOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *LibraryOptions) Apply(opts []LibraryOption, rest ...LibraryOption) {
	for opt := range options.Apply[LibraryOption](opts, rest...) {
		opt.library(o)
	}
}

// Init has nothing to set up; it only counts calls.
func (l *Library) Init() int {
	l.inits.Add(1)
	return 0
}

func (l *Library) VersionString() string {
	return Version
}

func (l *Library) Messages() native.Messages {
	return l.msgs
}

func (l *Library) Device() native.DeviceClient {
	return device{l}
}

func (l *Library) Module() native.ModuleClient {
	return module{l}
}

func (l *Library) create(
	s *settings,
	err error,
	p native.Protocol,
) native.ClientHandle {
	if err != nil {
		logger := log.Wrap(l.options.Logger)
		logger.Err(context.Background(), err)
		return 0
	}
	c := newClient(l, s, p)
	c.handle = native.ClientHandle(l.clients.Insert(c))
	return c.handle
}

// client runs f against the live client behind h.
func (l *Library) client(
	h native.ClientHandle,
	f func(*client) native.Result,
) native.Result {
	c, ok := l.clients.Load(handle.Token(h))
	if !ok {
		return native.ClientInvalidArg
	}
	return f(c)
}

func (l *Library) destroy(h native.ClientHandle) {
	if c, ok := l.clients.Take(handle.Token(h)); ok {
		c.close()
	}
}
