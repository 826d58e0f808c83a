// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package nativetest

import "github.com/Azure/iothub-client-go/native"

func (d device) CreateFromConnectionString(
	connStr string,
	p native.Protocol,
) native.ClientHandle {
	return d.create("CreateFromConnectionString", connStr, false, p, false)
}

func (d device) Destroy(h native.ClientHandle) {
	d.destroy(h)
}

func (d device) SendEventAsync(
	h native.ClientHandle,
	m native.MessageHandle,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) native.Result {
	return d.sendEvent("SendEventAsync", h, m, "", cb, ctx)
}

func (d device) SendReportedState(
	h native.ClientHandle,
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) native.Result {
	return d.sendReported("SendReportedState", h, payload, cb, ctx)
}

func (d device) GetTwinAsync(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return d.client("GetTwinAsync", h, func(c *Client) {
		c.twinReqs = append(c.twinReqs, twinRequest{cb, ctx})
	})
}

func (d device) SetConnectionStatusCallback(
	h native.ClientHandle,
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) native.Result {
	return d.client("SetConnectionStatusCallback", h, func(c *Client) {
		c.status, c.statusCtx = cb, ctx
	})
}

func (d device) SetMessageCallback(
	h native.ClientHandle,
	cb native.MessageCallback,
	ctx native.Context,
) native.Result {
	return d.client("SetMessageCallback", h, func(c *Client) {
		c.message, c.msgCtx = cb, ctx
	})
}

func (d device) SetDeviceTwinCallback(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return d.client("SetDeviceTwinCallback", h, func(c *Client) {
		c.twin, c.twinCtx = cb, ctx
	})
}

func (d device) SetDeviceMethodCallback(
	h native.ClientHandle,
	cb native.MethodCallback,
	ctx native.Context,
) native.Result {
	return d.client("SetDeviceMethodCallback", h, func(c *Client) {
		c.method, c.methodCtx = cb, ctx
	})
}

func (d device) SetOption(
	h native.ClientHandle,
	name string,
	value any,
) native.Result {
	return d.client("SetOption", h, func(c *Client) { c.setOption(name, value) })
}

func (d device) SetRetryPolicy(
	h native.ClientHandle,
	p native.RetryPolicy,
	timeout uint,
) native.Result {
	return d.client("SetRetryPolicy", h, func(c *Client) {
		c.retryPolicy, c.retryTimeout = p, timeout
	})
}

func (m module) CreateFromConnectionString(
	connStr string,
	p native.Protocol,
) native.ClientHandle {
	return m.create("CreateFromConnectionString", connStr, false, p, true)
}

func (m module) CreateFromEnvironment(p native.Protocol) native.ClientHandle {
	return m.create("CreateFromEnvironment", "", true, p, true)
}

func (m module) Destroy(h native.ClientHandle) {
	m.destroy(h)
}

func (m module) SendEventToOutputAsync(
	h native.ClientHandle,
	msg native.MessageHandle,
	output string,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) native.Result {
	return m.sendEvent("SendEventToOutputAsync", h, msg, output, cb, ctx)
}

func (m module) SendReportedState(
	h native.ClientHandle,
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) native.Result {
	return m.sendReported("SendReportedState", h, payload, cb, ctx)
}

func (m module) GetTwinAsync(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return m.client("GetTwinAsync", h, func(c *Client) {
		c.twinReqs = append(c.twinReqs, twinRequest{cb, ctx})
	})
}

func (m module) SetConnectionStatusCallback(
	h native.ClientHandle,
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) native.Result {
	return m.client("SetConnectionStatusCallback", h, func(c *Client) {
		c.status, c.statusCtx = cb, ctx
	})
}

func (m module) SetInputMessageCallback(
	h native.ClientHandle,
	input string,
	cb native.MessageCallback,
	ctx native.Context,
) native.Result {
	return m.client("SetInputMessageCallback", h, func(c *Client) {
		c.message, c.input, c.msgCtx = cb, input, ctx
	})
}

func (m module) SetModuleTwinCallback(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return m.client("SetModuleTwinCallback", h, func(c *Client) {
		c.twin, c.twinCtx = cb, ctx
	})
}

func (m module) SetModuleMethodCallback(
	h native.ClientHandle,
	cb native.MethodCallback,
	ctx native.Context,
) native.Result {
	return m.client("SetModuleMethodCallback", h, func(c *Client) {
		c.method, c.methodCtx = cb, ctx
	})
}

func (m module) SetOption(
	h native.ClientHandle,
	name string,
	value any,
) native.Result {
	return m.client("SetOption", h, func(c *Client) { c.setOption(name, value) })
}

func (m module) SetRetryPolicy(
	h native.ClientHandle,
	p native.RetryPolicy,
	timeout uint,
) native.Result {
	return m.client("SetRetryPolicy", h, func(c *Client) {
		c.retryPolicy, c.retryTimeout = p, timeout
	})
}
