// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package nativetest provides a recording native library whose callbacks are
// fired by tests.
package nativetest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Azure/iothub-client-go/native"
)

type (
	// Library is a fake native library. The zero value is not usable; call
	// New.
	Library struct {
		// InitResult is returned by Init.
		InitResult int
		// Version is returned by VersionString.
		Version string

		inits atomic.Int32
		msgs  *Messages

		clients map[native.ClientHandle]*Client
		order   []*Client
		next    native.ClientHandle
		fail    map[string]bool
		mu      sync.Mutex
	}

	// Client records everything registered against one client handle.
	Client struct {
		Handle          native.ClientHandle
		ConnStr         string
		FromEnvironment bool
		Protocol        native.Protocol
		Module          bool

		lib *Library

		destroyed    bool
		options      map[string]any
		optionOrder  []string
		retryPolicy  native.RetryPolicy
		retryTimeout uint

		status    native.ConnectionStatusCallback
		statusCtx native.Context
		message   native.MessageCallback
		input     string
		msgCtx    native.Context
		twin      native.TwinCallback
		twinCtx   native.Context
		method    native.MethodCallback
		methodCtx native.Context

		events   []*Event
		reports  []*Report
		twinReqs []twinRequest

		mu sync.Mutex
	}

	// Event is a recorded SendEventAsync call.
	Event struct {
		Message Message
		Output  string
		cb      native.EventConfirmationCallback
		ctx     native.Context
	}

	// Report is a recorded SendReportedState call.
	Report struct {
		Payload []byte
		cb      native.ReportedStateCallback
		ctx     native.Context
	}

	twinRequest struct {
		cb  native.TwinCallback
		ctx native.Context
	}

	device struct{ *Library }
	module struct{ *Library }
)

// New creates a fake library that succeeds on every call.
func New() *Library {
	return &Library{
		Version: "1.0.0-test",
		msgs:    NewMessages(),
		clients: map[native.ClientHandle]*Client{},
		fail:    map[string]bool{},
	}
}

// FailOn makes every later call with the given name fail. Names are the
// method names of native.DeviceClient and native.ModuleClient.
func (l *Library) FailOn(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail[call] = true
}

// Inits returns how many times Init was called.
func (l *Library) Inits() int {
	return int(l.inits.Load())
}

// Last returns the most recently created client.
func (l *Library) Last() *Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.order) == 0 {
		return nil
	}
	return l.order[len(l.order)-1]
}

// Msgs returns the message family with its test helpers.
func (l *Library) Msgs() *Messages {
	return l.msgs
}

func (l *Library) Init() int {
	l.inits.Add(1)
	return l.InitResult
}

func (l *Library) VersionString() string {
	return l.Version
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

func (l *Library) failed(call string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fail[call]
}

func (l *Library) create(
	call string,
	connStr string,
	fromEnv bool,
	p native.Protocol,
	isModule bool,
) native.ClientHandle {
	if l.failed(call) {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	c := &Client{
		Handle:          l.next,
		ConnStr:         connStr,
		FromEnvironment: fromEnv,
		Protocol:        p,
		Module:          isModule,
		lib:             l,
		options:         map[string]any{},
	}
	l.clients[c.Handle] = c
	l.order = append(l.order, c)
	return c.Handle
}

// client runs f against the live client behind h, translating failures.
func (l *Library) client(
	call string,
	h native.ClientHandle,
	f func(*Client),
) native.Result {
	if l.failed(call) {
		return native.ClientError
	}

	l.mu.Lock()
	c, ok := l.clients[h]
	l.mu.Unlock()
	if !ok {
		return native.ClientInvalidArg
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return native.ClientInvalidArg
	}
	f(c)
	return native.ClientOK
}

func (l *Library) destroy(h native.ClientHandle) {
	l.mu.Lock()
	c, ok := l.clients[h]
	l.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

func (l *Library) snapshot(h native.MessageHandle) (Message, error) {
	msg, ok := l.msgs.Get(h)
	if !ok {
		return Message{}, fmt.Errorf("unknown message handle %d", h)
	}
	return msg, nil
}

func (l *Library) sendEvent(
	call string,
	h native.ClientHandle,
	m native.MessageHandle,
	output string,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) native.Result {
	msg, err := l.snapshot(m)
	if err != nil {
		return native.ClientInvalidArg
	}
	return l.client(call, h, func(c *Client) {
		c.events = append(c.events, &Event{msg, output, cb, ctx})
	})
}

func (l *Library) sendReported(
	call string,
	h native.ClientHandle,
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) native.Result {
	return l.client(call, h, func(c *Client) {
		c.reports = append(c.reports, &Report{
			append([]byte(nil), payload...),
			cb,
			ctx,
		})
	})
}
