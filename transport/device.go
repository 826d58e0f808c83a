// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
)

// Device drives the device family of the native SDK.
type Device struct {
	client
	family native.DeviceClient
}

// NewDevice creates an adapter over the library's device family. No native
// client exists until CreateFromConnectionString succeeds.
func NewDevice(lib native.Library, opt ...TwinOption) *Device {
	return &Device{
		client: newClient("IoTHubDeviceClient", opt),
		family: lib.Device(),
	}
}

func (d *Device) CreateFromConnectionString(connStr string) error {
	const call = "CreateFromConnectionString"
	if err := d.checkCreate(call); err != nil {
		return err
	}
	h := d.family.CreateFromConnectionString(connStr, d.options.Protocol)
	return d.created(call, h)
}

// CreateFromEdgeEnvironment is not available to devices.
func (d *Device) CreateFromEdgeEnvironment() error {
	return &errors.Error{
		Message:      "devices cannot be created from the edge environment",
		Kind:         errors.StateInvalid,
		PropertyName: "client_type",
	}
}

func (d *Device) Destroy() {
	d.destroyed(d.family.Destroy)
}

// SendEventAsync sends the message. Devices have a single event queue, so
// the queue name is ignored.
func (d *Device) SendEventAsync(
	msg native.MessageHandle,
	_ string,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) error {
	return d.invoke("SendEventAsync", func(h native.ClientHandle) native.Result {
		return d.family.SendEventAsync(h, msg, cb, ctx)
	})
}

func (d *Device) SendReportedState(
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) error {
	return d.invoke("SendReportedState", func(h native.ClientHandle) native.Result {
		return d.family.SendReportedState(h, payload, cb, ctx)
	})
}

func (d *Device) RequestTwinAsync(
	cb native.TwinCallback,
	ctx native.Context,
) error {
	return d.invoke("GetTwinAsync", func(h native.ClientHandle) native.Result {
		return d.family.GetTwinAsync(h, cb, ctx)
	})
}

func (d *Device) SetConnectionStatusCallback(
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) error {
	return d.invoke(
		"SetConnectionStatusCallback",
		func(h native.ClientHandle) native.Result {
			return d.family.SetConnectionStatusCallback(h, cb, ctx)
		},
	)
}

// SetInputMessageCallback registers for cloud-to-device messages.
func (d *Device) SetInputMessageCallback(
	cb native.MessageCallback,
	ctx native.Context,
) error {
	return d.invoke("SetMessageCallback", func(h native.ClientHandle) native.Result {
		return d.family.SetMessageCallback(h, cb, ctx)
	})
}

func (d *Device) SetTwinCallback(
	cb native.TwinCallback,
	ctx native.Context,
) error {
	return d.invoke(
		"SetDeviceTwinCallback",
		func(h native.ClientHandle) native.Result {
			return d.family.SetDeviceTwinCallback(h, cb, ctx)
		},
	)
}

func (d *Device) SetMethodCallback(
	cb native.MethodCallback,
	ctx native.Context,
) error {
	return d.invoke(
		"SetDeviceMethodCallback",
		func(h native.ClientHandle) native.Result {
			return d.family.SetDeviceMethodCallback(h, cb, ctx)
		},
	)
}

func (d *Device) SetOption(name string, value any) error {
	return d.invoke("SetOption", func(h native.ClientHandle) native.Result {
		return d.family.SetOption(h, name, value)
	})
}

func (d *Device) SetRetryPolicy(policy native.RetryPolicy, timeout uint) error {
	return d.invoke("SetRetryPolicy", func(h native.ClientHandle) native.Result {
		return d.family.SetRetryPolicy(h, policy, timeout)
	})
}
