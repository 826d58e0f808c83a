// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import "github.com/Azure/iothub-client-go/native"

func (d device) CreateFromConnectionString(
	connStr string,
	p native.Protocol,
) native.ClientHandle {
	s, err := parseConnectionString(connStr)
	return d.create(s, err, p)
}

func (d device) Destroy(h native.ClientHandle) {
	d.destroy(h)
}

func (d device) SendEventAsync(
	h native.ClientHandle,
	msg native.MessageHandle,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.sendEvent(msg, "", cb, ctx)
	})
}

func (d device) SendReportedState(
	h native.ClientHandle,
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.sendReportedState(payload, cb, ctx)
	})
}

func (d device) GetTwinAsync(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.getTwin(cb, ctx)
	})
}

func (d device) SetConnectionStatusCallback(
	h native.ClientHandle,
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.setStatusCallback(cb, ctx)
	})
}

func (d device) SetMessageCallback(
	h native.ClientHandle,
	cb native.MessageCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.setMessageCallback("", cb, ctx)
	})
}

func (d device) SetDeviceTwinCallback(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.setTwinCallback(cb, ctx)
	})
}

func (d device) SetDeviceMethodCallback(
	h native.ClientHandle,
	cb native.MethodCallback,
	ctx native.Context,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.setMethodCallback(cb, ctx)
	})
}

func (d device) SetOption(
	h native.ClientHandle,
	name string,
	value any,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.setOption(name, value)
	})
}

func (d device) SetRetryPolicy(
	h native.ClientHandle,
	p native.RetryPolicy,
	timeout uint,
) native.Result {
	return d.client(h, func(c *client) native.Result {
		return c.setRetryPolicy(p, timeout)
	})
}

func (m module) CreateFromConnectionString(
	connStr string,
	p native.Protocol,
) native.ClientHandle {
	s, err := parseConnectionString(connStr)
	if err == nil {
		err = s.requireModule()
	}
	return m.create(s, err, p)
}

func (m module) CreateFromEnvironment(p native.Protocol) native.ClientHandle {
	s, err := parseEdgeEnvironment()
	return m.create(s, err, p)
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
	return m.client(h, func(c *client) native.Result {
		return c.sendEvent(msg, output, cb, ctx)
	})
}

func (m module) SendReportedState(
	h native.ClientHandle,
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.sendReportedState(payload, cb, ctx)
	})
}

func (m module) GetTwinAsync(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.getTwin(cb, ctx)
	})
}

func (m module) SetConnectionStatusCallback(
	h native.ClientHandle,
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.setStatusCallback(cb, ctx)
	})
}

func (m module) SetInputMessageCallback(
	h native.ClientHandle,
	input string,
	cb native.MessageCallback,
	ctx native.Context,
) native.Result {
	if input == "" {
		return native.ClientInvalidArg
	}
	return m.client(h, func(c *client) native.Result {
		return c.setMessageCallback(input, cb, ctx)
	})
}

func (m module) SetModuleTwinCallback(
	h native.ClientHandle,
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.setTwinCallback(cb, ctx)
	})
}

func (m module) SetModuleMethodCallback(
	h native.ClientHandle,
	cb native.MethodCallback,
	ctx native.Context,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.setMethodCallback(cb, ctx)
	})
}

func (m module) SetOption(
	h native.ClientHandle,
	name string,
	value any,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.setOption(name, value)
	})
}

func (m module) SetRetryPolicy(
	h native.ClientHandle,
	p native.RetryPolicy,
	timeout uint,
) native.Result {
	return m.client(h, func(c *client) native.Result {
		return c.setRetryPolicy(p, timeout)
	})
}
