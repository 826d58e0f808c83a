// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import "github.com/Azure/iothub-client-go/native"

type (
	// Module drives the module family of the native SDK for a module
	// identity connecting with its own connection string.
	Module struct {
		client
		family native.ModuleClient
	}

	// Edge drives the module family for a module hosted by an edge runtime,
	// which usually creates its client from the environment the runtime
	// provides.
	Edge struct {
		Module
	}
)

// NewModule creates an adapter over the library's module family.
func NewModule(lib native.Library, opt ...TwinOption) *Module {
	return &Module{
		client: newClient("IoTHubModuleClient", opt),
		family: lib.Module(),
	}
}

// NewEdge creates an adapter over the library's module family for an edge
// module.
func NewEdge(lib native.Library, opt ...TwinOption) *Edge {
	return &Edge{*NewModule(lib, opt...)}
}

func (m *Module) CreateFromConnectionString(connStr string) error {
	const call = "CreateFromConnectionString"
	if err := m.checkCreate(call); err != nil {
		return err
	}
	h := m.family.CreateFromConnectionString(connStr, m.options.Protocol)
	return m.created(call, h)
}

// CreateFromEdgeEnvironment creates the client from the variables set by
// the edge runtime.
func (m *Module) CreateFromEdgeEnvironment() error {
	const call = "CreateFromEnvironment"
	if err := m.checkCreate(call); err != nil {
		return err
	}
	return m.created(call, m.family.CreateFromEnvironment(m.options.Protocol))
}

func (m *Module) Destroy() {
	m.destroyed(m.family.Destroy)
}

// SendEventAsync sends the message to the named output.
func (m *Module) SendEventAsync(
	msg native.MessageHandle,
	queue string,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) error {
	return m.invoke(
		"SendEventToOutputAsync",
		func(h native.ClientHandle) native.Result {
			return m.family.SendEventToOutputAsync(h, msg, queue, cb, ctx)
		},
	)
}

func (m *Module) SendReportedState(
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) error {
	return m.invoke("SendReportedState", func(h native.ClientHandle) native.Result {
		return m.family.SendReportedState(h, payload, cb, ctx)
	})
}

func (m *Module) RequestTwinAsync(
	cb native.TwinCallback,
	ctx native.Context,
) error {
	return m.invoke("GetTwinAsync", func(h native.ClientHandle) native.Result {
		return m.family.GetTwinAsync(h, cb, ctx)
	})
}

func (m *Module) SetConnectionStatusCallback(
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) error {
	return m.invoke(
		"SetConnectionStatusCallback",
		func(h native.ClientHandle) native.Result {
			return m.family.SetConnectionStatusCallback(h, cb, ctx)
		},
	)
}

// SetInputMessageCallback registers for messages routed to the configured
// input.
func (m *Module) SetInputMessageCallback(
	cb native.MessageCallback,
	ctx native.Context,
) error {
	input := m.options.Input
	return m.invoke(
		"SetInputMessageCallback",
		func(h native.ClientHandle) native.Result {
			return m.family.SetInputMessageCallback(h, input, cb, ctx)
		},
	)
}

func (m *Module) SetTwinCallback(
	cb native.TwinCallback,
	ctx native.Context,
) error {
	return m.invoke(
		"SetModuleTwinCallback",
		func(h native.ClientHandle) native.Result {
			return m.family.SetModuleTwinCallback(h, cb, ctx)
		},
	)
}

func (m *Module) SetMethodCallback(
	cb native.MethodCallback,
	ctx native.Context,
) error {
	return m.invoke(
		"SetModuleMethodCallback",
		func(h native.ClientHandle) native.Result {
			return m.family.SetModuleMethodCallback(h, cb, ctx)
		},
	)
}

func (m *Module) SetOption(name string, value any) error {
	return m.invoke("SetOption", func(h native.ClientHandle) native.Result {
		return m.family.SetOption(h, name, value)
	})
}

func (m *Module) SetRetryPolicy(policy native.RetryPolicy, timeout uint) error {
	return m.invoke("SetRetryPolicy", func(h native.ClientHandle) native.Result {
		return m.family.SetRetryPolicy(h, policy, timeout)
	})
}

var (
	_ Twin = (*Device)(nil)
	_ Twin = (*Module)(nil)
	_ Twin = (*Edge)(nil)
)
