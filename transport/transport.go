// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package transport adapts the device and module entry point families of a
// native SDK to one capability set, so the client above it is written once
// for all three topologies.
package transport

import (
	"context"
	"log/slog"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// Twin is the capability set shared by every topology. Every operation
	// maps onto exactly one native call and returns an *errors.Error naming
	// that call when it fails. Nothing is retried here.
	Twin interface {
		CreateFromConnectionString(connStr string) error
		CreateFromEdgeEnvironment() error
		Destroy()

		SendEventAsync(
			msg native.MessageHandle,
			queue string,
			cb native.EventConfirmationCallback,
			ctx native.Context,
		) error
		SendReportedState(
			payload []byte,
			cb native.ReportedStateCallback,
			ctx native.Context,
		) error
		RequestTwinAsync(cb native.TwinCallback, ctx native.Context) error

		SetConnectionStatusCallback(
			cb native.ConnectionStatusCallback,
			ctx native.Context,
		) error
		SetInputMessageCallback(
			cb native.MessageCallback,
			ctx native.Context,
		) error
		SetTwinCallback(cb native.TwinCallback, ctx native.Context) error
		SetMethodCallback(cb native.MethodCallback, ctx native.Context) error

		SetOption(name string, value any) error
		SetRetryPolicy(policy native.RetryPolicy, timeout uint) error

		// Handle returns the live client handle, or zero.
		Handle() native.ClientHandle
	}

	// ResultError carries the non-OK result of a native call.
	ResultError struct {
		Result native.Result
	}

	// client holds what every variant shares: the handle it owns and the
	// native function name prefix used in errors.
	client struct {
		handle  native.ClientHandle
		prefix  string
		options TwinOptions
		log     log.Logger
	}
)

func (e *ResultError) Error() string {
	return e.Result.String()
}

func newClient(prefix string, opt []TwinOption) client {
	c := client{prefix: prefix}
	c.options.Apply(opt)
	if c.options.Input == "" {
		c.options.Input = DefaultInput
	}
	c.log = log.Wrap(c.options.Logger)
	return c
}

// Handle returns the live client handle, or zero.
func (c *client) Handle() native.ClientHandle {
	return c.handle
}

func (c *client) name(call string) string {
	return c.prefix + "_" + call
}

// created records a new handle, failing if the native call returned the null
// handle or a handle is already held.
func (c *client) created(call string, h native.ClientHandle) error {
	if h == 0 {
		return errors.Native(c.name(call), nil)
	}
	c.handle = h
	c.log.Debug(context.Background(), "native client created",
		slog.String("call", c.name(call)),
		slog.Uint64("handle", uint64(h)),
	)
	return nil
}

func (c *client) checkCreate(call string) error {
	if c.handle == 0 {
		return nil
	}
	return &errors.Error{
		Message:      c.name(call) + " called on a created client",
		Kind:         errors.StateInvalid,
		NativeCall:   c.name(call),
		PropertyName: "handle",
	}
}

// live returns the handle, or an error if the client was never created or
// has been destroyed.
func (c *client) live(call string) (native.ClientHandle, error) {
	if c.handle != 0 {
		return c.handle, nil
	}
	return 0, &errors.Error{
		Message:      c.name(call) + " called without a client",
		Kind:         errors.StateInvalid,
		NativeCall:   c.name(call),
		PropertyName: "handle",
	}
}

// invoke runs a native call against the live handle and translates its
// result.
func (c *client) invoke(
	call string,
	f func(native.ClientHandle) native.Result,
) error {
	h, err := c.live(call)
	if err != nil {
		return err
	}
	if res := f(h); res != native.ClientOK {
		err := errors.Native(c.name(call), &ResultError{res})
		c.log.Err(context.Background(), err)
		return err
	}
	return nil
}

func (c *client) destroyed(destroy func(native.ClientHandle)) {
	if c.handle == 0 {
		return
	}
	destroy(c.handle)
	c.log.Debug(context.Background(), "native client destroyed",
		slog.String("prefix", c.prefix),
		slog.Uint64("handle", uint64(c.handle)),
	)
	c.handle = 0
}
