// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package native

// Callback shapes. Every callback runs on the library's single callback
// goroutine; a callback that blocks stalls all further delivery.
type (
	// EventConfirmationCallback reports the outcome of SendEventAsync.
	EventConfirmationCallback func(ConfirmationResult, Context)

	// ReportedStateCallback reports the HTTP-style status of a reported
	// state patch.
	ReportedStateCallback func(statusCode int, ctx Context)

	// ConnectionStatusCallback reports authentication state changes.
	ConnectionStatusCallback func(ConnectionStatus, ConnectionStatusReason, Context)

	// MessageCallback delivers an inbound message. The handle is only valid
	// for the duration of the call.
	MessageCallback func(MessageHandle, Context) DispositionResult

	// TwinCallback delivers a full twin document or a desired patch.
	TwinCallback func(TwinUpdateState, []byte, Context)

	// MethodCallback answers a direct method invocation.
	MethodCallback func(
		name []byte,
		payload []byte,
		ctx Context,
	) (status int, response []byte)
)

type (
	// Messages is the message handle family.
	Messages interface {
		CreateFromByteArray(body []byte) MessageHandle
		Destroy(MessageHandle)
		GetByteArray(MessageHandle) ([]byte, MessageResult)

		SetMessageID(MessageHandle, string) MessageResult
		GetMessageID(MessageHandle) (string, bool)
		SetCorrelationID(MessageHandle, string) MessageResult
		GetCorrelationID(MessageHandle) (string, bool)
		SetContentType(MessageHandle, string) MessageResult
		GetContentType(MessageHandle) (string, bool)
		SetContentEncoding(MessageHandle, string) MessageResult
		GetContentEncoding(MessageHandle) (string, bool)
		GetInputName(MessageHandle) (string, bool)

		SetProperty(h MessageHandle, key, value string) MessageResult
		GetProperty(h MessageHandle, key string) (string, bool)
	}

	// DeviceClient is the device entry point family.
	DeviceClient interface {
		CreateFromConnectionString(connStr string, p Protocol) ClientHandle
		Destroy(ClientHandle)

		SendEventAsync(
			ClientHandle,
			MessageHandle,
			EventConfirmationCallback,
			Context,
		) Result
		SendReportedState(
			ClientHandle,
			[]byte,
			ReportedStateCallback,
			Context,
		) Result
		GetTwinAsync(ClientHandle, TwinCallback, Context) Result

		SetConnectionStatusCallback(
			ClientHandle,
			ConnectionStatusCallback,
			Context,
		) Result
		SetMessageCallback(ClientHandle, MessageCallback, Context) Result
		SetDeviceTwinCallback(ClientHandle, TwinCallback, Context) Result
		SetDeviceMethodCallback(ClientHandle, MethodCallback, Context) Result

		SetOption(h ClientHandle, name string, value any) Result
		SetRetryPolicy(ClientHandle, RetryPolicy, uint) Result
	}

	// ModuleClient is the module entry point family.
	ModuleClient interface {
		CreateFromConnectionString(connStr string, p Protocol) ClientHandle
		CreateFromEnvironment(p Protocol) ClientHandle
		Destroy(ClientHandle)

		SendEventToOutputAsync(
			h ClientHandle,
			msg MessageHandle,
			output string,
			cb EventConfirmationCallback,
			ctx Context,
		) Result
		SendReportedState(
			ClientHandle,
			[]byte,
			ReportedStateCallback,
			Context,
		) Result
		GetTwinAsync(ClientHandle, TwinCallback, Context) Result

		SetConnectionStatusCallback(
			ClientHandle,
			ConnectionStatusCallback,
			Context,
		) Result
		SetInputMessageCallback(
			h ClientHandle,
			input string,
			cb MessageCallback,
			ctx Context,
		) Result
		SetModuleTwinCallback(ClientHandle, TwinCallback, Context) Result
		SetModuleMethodCallback(ClientHandle, MethodCallback, Context) Result

		SetOption(h ClientHandle, name string, value any) Result
		SetRetryPolicy(ClientHandle, RetryPolicy, uint) Result
	}

	// Library is the process-wide entry point of a native SDK. Init must be
	// called once before any client is created.
	Library interface {
		Init() int
		VersionString() string
		Messages() Messages
		Device() DeviceClient
		Module() ModuleClient
	}
)
