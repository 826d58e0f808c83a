// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport_test

import (
	"testing"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/native/nativetest"
	"github.com/Azure/iothub-client-go/transport"
	"github.com/stretchr/testify/require"
)

func TestDeviceLifecycle(t *testing.T) {
	lib := nativetest.New()
	d := transport.NewDevice(lib, transport.WithProtocol(native.MQTTWebSocket))

	require.NoError(t, d.CreateFromConnectionString("HostName=h;DeviceId=d"))
	c := lib.Last()
	require.Equal(t, "HostName=h;DeviceId=d", c.ConnStr)
	require.Equal(t, native.MQTTWebSocket, c.Protocol)
	require.False(t, c.Module)
	require.Equal(t, c.Handle, d.Handle())

	err := d.CreateFromConnectionString("again")
	require.True(t, errors.Is(err, errors.StateInvalid))

	d.Destroy()
	require.True(t, c.Destroyed())
	require.Zero(t, d.Handle())
	d.Destroy()

	err = d.SetOption(native.OptionLogTrace, true)
	require.True(t, errors.Is(err, errors.StateInvalid))
}

func TestDeviceRejectsEdgeEnvironment(t *testing.T) {
	d := transport.NewDevice(nativetest.New())
	err := d.CreateFromEdgeEnvironment()
	require.True(t, errors.Is(err, errors.StateInvalid))
}

func TestCreateFailure(t *testing.T) {
	lib := nativetest.New()
	lib.FailOn("CreateFromConnectionString")
	lib.FailOn("CreateFromEnvironment")

	err := transport.NewModule(lib).CreateFromConnectionString("x")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errors.NativeCallFailed, e.Kind)
	require.Equal(t, "IoTHubModuleClient_CreateFromConnectionString", e.NativeCall)

	err = transport.NewEdge(lib).CreateFromEdgeEnvironment()
	require.ErrorAs(t, err, &e)
	require.Equal(t, "IoTHubModuleClient_CreateFromEnvironment", e.NativeCall)
}

func TestEdgeEnvironment(t *testing.T) {
	lib := nativetest.New()
	e := transport.NewEdge(lib)
	require.NoError(t, e.CreateFromEdgeEnvironment())
	require.True(t, lib.Last().FromEnvironment)
	require.True(t, lib.Last().Module)
}

func TestModuleRegistrations(t *testing.T) {
	lib := nativetest.New()
	m := transport.NewModule(lib, transport.WithInput("commands"))
	require.NoError(t, m.CreateFromConnectionString("cs"))
	c := lib.Last()

	require.NoError(t, m.SetConnectionStatusCallback(
		func(native.ConnectionStatus, native.ConnectionStatusReason, native.Context) {},
		1,
	))
	require.NoError(t, m.SetInputMessageCallback(
		func(native.MessageHandle, native.Context) native.DispositionResult {
			return native.DispositionAccepted
		},
		2,
	))
	require.NoError(t, m.SetTwinCallback(
		func(native.TwinUpdateState, []byte, native.Context) {},
		3,
	))
	require.NoError(t, m.SetMethodCallback(
		func([]byte, []byte, native.Context) (int, []byte) { return 200, nil },
		4,
	))
	require.NoError(t, m.SetOption(native.OptionModelID, "dtmi:x;1"))
	require.NoError(t, m.SetRetryPolicy(native.RetryInterval, 30))

	status, msg, twin, method := c.Registered()
	require.True(t, status)
	require.True(t, msg)
	require.True(t, twin)
	require.True(t, method)
	require.Equal(t, "commands", c.Input())

	v, ok := c.Option(native.OptionModelID)
	require.True(t, ok)
	require.Equal(t, "dtmi:x;1", v)

	policy, timeout := c.RetryPolicy()
	require.Equal(t, native.RetryInterval, policy)
	require.Equal(t, uint(30), timeout)
}

func TestSendEvent(t *testing.T) {
	lib := nativetest.New()
	msgs := lib.Msgs()
	h := msgs.CreateFromByteArray([]byte(`{"t":1}`))

	m := transport.NewModule(lib)
	require.NoError(t, m.CreateFromConnectionString("cs"))
	require.NoError(t, m.SendEventAsync(h, "output", func(native.ConfirmationResult, native.Context) {}, 7))

	d := transport.NewDevice(lib)
	require.NoError(t, d.CreateFromConnectionString("cs"))
	require.NoError(t, d.SendEventAsync(h, "ignored", func(native.ConfirmationResult, native.Context) {}, 8))

	events := lib.Last().Events()
	require.Len(t, events, 1)
	require.Equal(t, "", events[0].Output)
	require.Equal(t, native.Context(8), events[0].Context())
	require.Equal(t, []byte(`{"t":1}`), events[0].Message.Body)
}

func TestCallFailuresNameTheNativeCall(t *testing.T) {
	noopEvent := func(native.ConfirmationResult, native.Context) {}
	noopReport := func(int, native.Context) {}
	noopTwin := func(native.TwinUpdateState, []byte, native.Context) {}

	cases := []struct {
		fail string
		want string
		call func(transport.Twin, native.MessageHandle) error
	}{
		{
			"SendEventToOutputAsync",
			"IoTHubModuleClient_SendEventToOutputAsync",
			func(tw transport.Twin, h native.MessageHandle) error {
				return tw.SendEventAsync(h, "output", noopEvent, 1)
			},
		},
		{
			"SendReportedState",
			"IoTHubModuleClient_SendReportedState",
			func(tw transport.Twin, _ native.MessageHandle) error {
				return tw.SendReportedState([]byte(`{}`), noopReport, 1)
			},
		},
		{
			"GetTwinAsync",
			"IoTHubModuleClient_GetTwinAsync",
			func(tw transport.Twin, _ native.MessageHandle) error {
				return tw.RequestTwinAsync(noopTwin, 1)
			},
		},
		{
			"SetOption",
			"IoTHubModuleClient_SetOption",
			func(tw transport.Twin, _ native.MessageHandle) error {
				return tw.SetOption(native.OptionLogTrace, true)
			},
		},
		{
			"SetRetryPolicy",
			"IoTHubModuleClient_SetRetryPolicy",
			func(tw transport.Twin, _ native.MessageHandle) error {
				return tw.SetRetryPolicy(native.RetryNone, 0)
			},
		},
	}

	for _, c := range cases {
		t.Run(c.fail, func(t *testing.T) {
			lib := nativetest.New()
			h := lib.Msgs().CreateFromByteArray(nil)
			tw := transport.NewModule(lib)
			require.NoError(t, tw.CreateFromConnectionString("cs"))
			lib.FailOn(c.fail)

			err := c.call(tw, h)
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, errors.NativeCallFailed, e.Kind)
			require.Equal(t, c.want, e.NativeCall)

			var re *transport.ResultError
			require.ErrorAs(t, err, &re)
			require.Equal(t, native.ClientError, re.Result)
		})
	}
}
