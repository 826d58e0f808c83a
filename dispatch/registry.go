// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package dispatch turns native callbacks into typed events on bounded
// observer channels. Incoming messages and direct methods are round trips:
// the native callback waits for the application's reply.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Azure/iothub-client-go/internal/handle"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/native"
)

// Registry holds the observer channels of one client.
type Registry struct {
	options  RegistryOptions
	log      log.Logger
	messages native.Messages

	status   chan ConnectionStatus
	twin     chan TwinUpdate
	methods  chan *MethodRequest
	incoming chan *IncomingMessage

	token   handle.Token
	done    chan struct{}
	once    sync.Once
	closed  bool
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// Native callbacks find their registry through this table, so the context
// they carry is a token rather than an address.
var registries = handle.NewTable[*Registry]()

// New creates a registry whose incoming messages are decoded with msgs.
func New(msgs native.Messages, opt ...RegistryOption) (*Registry, error) {
	r := &Registry{messages: msgs, done: make(chan struct{})}
	r.options.Apply(opt)
	if err := r.options.validate(); err != nil {
		return nil, err
	}
	if r.options.Capacity == 0 {
		r.options.Capacity = DefaultCapacity
	}
	r.log = log.Wrap(r.options.Logger)

	n := r.options.Capacity
	if r.Observes(ObserveConnectionStatus) {
		r.status = make(chan ConnectionStatus, n)
	}
	if r.Observes(ObserveTwin) {
		r.twin = make(chan TwinUpdate, n)
	}
	if r.Observes(ObserveMethods) {
		r.methods = make(chan *MethodRequest, n)
	}
	if r.Observes(ObserveMessages) {
		r.incoming = make(chan *IncomingMessage, n)
	}

	r.token = registries.Insert(r)
	return r, nil
}

// Context returns the value to register with every native callback.
func (r *Registry) Context() native.Context {
	return native.Context(r.token)
}

// Observes reports whether all of the given observers were requested.
func (r *Registry) Observes(o Observers) bool {
	return r.options.Observers&o == o
}

// ConnectionStatus returns the connection status channel, or nil if it was
// not requested.
func (r *Registry) ConnectionStatus() <-chan ConnectionStatus {
	return r.status
}

// TwinDesired returns the desired property channel, or nil if it was not
// requested.
func (r *Registry) TwinDesired() <-chan TwinUpdate {
	return r.twin
}

// DirectMethods returns the direct method channel, or nil if it was not
// requested.
func (r *Registry) DirectMethods() <-chan *MethodRequest {
	return r.methods
}

// IncomingMessages returns the incoming message channel, or nil if it was
// not requested.
func (r *Registry) IncomingMessages() <-chan *IncomingMessage {
	return r.incoming
}

// Dropped returns how many events were discarded because an observer was
// full.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

// Close detaches the registry from native callbacks, releases any callback
// blocked on an observer or a reply, and closes the observer channels.
func (r *Registry) Close() {
	r.once.Do(func() {
		registries.Remove(r.token)
		close(r.done)

		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = true
		if r.status != nil {
			close(r.status)
		}
		if r.twin != nil {
			close(r.twin)
		}
		if r.methods != nil {
			close(r.methods)
		}
		if r.incoming != nil {
			close(r.incoming)
		}
	})
}

func lookup(ctx native.Context) (*Registry, bool) {
	return registries.Load(handle.Token(ctx))
}

// send delivers an event to an observer channel, honoring the backpressure
// mode. It reports whether the event was delivered.
func send[T any](r *Registry, ch chan T, kind string, v T) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || ch == nil {
		return false
	}

	if r.options.Backpressure == Drop {
		select {
		case ch <- v:
			return true
		default:
			r.dropped.Add(1)
			r.log.Warn(context.Background(), "observer full, event dropped",
				slog.String("kind", kind),
			)
			return false
		}
	}

	select {
	case ch <- v:
		return true
	case <-r.done:
		return false
	}
}
