// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package native describes the boundary to the event-driven hub SDK that the
// client adapts: opaque handles, result and status codes, callback shapes and
// the device and module entry point families.
package native

import "fmt"

type (
	// ClientHandle identifies a client created by the library. The zero
	// handle indicates a failed creation.
	ClientHandle uint64

	// MessageHandle identifies a message owned by the library. The zero
	// handle indicates a failed allocation.
	MessageHandle uint64

	// Context is the opaque value registered with a callback and handed back
	// on every invocation.
	Context uint64

	// Result is the outcome of a client call.
	Result int

	// MessageResult is the outcome of a message call.
	MessageResult int

	// ConnectionStatus is the authentication state of a client.
	ConnectionStatus int

	// ConnectionStatusReason qualifies a ConnectionStatus.
	ConnectionStatusReason int

	// ConfirmationResult is the delivery outcome of an event.
	ConfirmationResult int

	// DispositionResult is the verdict on an inbound message.
	DispositionResult int

	// TwinUpdateState is the raw kind of a twin callback payload.
	TwinUpdateState int

	// RetryPolicy selects how the library reconnects.
	RetryPolicy int

	// Protocol selects the transport used by the library.
	Protocol int
)

const (
	ClientOK Result = iota
	ClientInvalidArg
	ClientError
	ClientInvalidSize
	ClientIndefiniteTime
)

const (
	MessageOK MessageResult = iota
	MessageInvalidArg
	MessageInvalidType
	MessageError
)

const (
	ConnectionAuthenticated ConnectionStatus = iota
	ConnectionUnauthenticated
)

const (
	ReasonExpiredSASToken ConnectionStatusReason = iota
	ReasonDeviceDisabled
	ReasonBadCredential
	ReasonRetryExpired
	ReasonNoNetwork
	ReasonCommunicationError
	ReasonConnectionOK
	ReasonNoPingResponse
)

const (
	ConfirmationOK ConfirmationResult = iota
	ConfirmationBecauseDestroy
	ConfirmationMessageTimeout
	ConfirmationError
)

const (
	DispositionAccepted DispositionResult = iota
	DispositionRejected
	DispositionAbandoned
	DispositionAsyncAck
)

const (
	TwinUpdateComplete TwinUpdateState = iota
	TwinUpdatePartial
)

const (
	RetryNone RetryPolicy = iota
	RetryImmediate
	RetryInterval
	RetryLinearBackoff
	RetryExponentialBackoff
	RetryExponentialBackoffWithJitter
	RetryRandom
)

const (
	MQTT Protocol = iota
	MQTTWebSocket
)

// Option names understood by SetOption.
const (
	// OptionDoWorkFrequency takes a uint64 pump interval in milliseconds.
	OptionDoWorkFrequency = "do_work_freq_ms"
	// OptionLogTrace takes a bool enabling verbose library logs.
	OptionLogTrace = "logtrace"
	// OptionModelID takes the plug-and-play model id string.
	OptionModelID = "model_id"
	// OptionMessageTimeout takes a uint64 event timeout in milliseconds.
	OptionMessageTimeout = "messageTimeout"
	// OptionKeepAlive takes an int keep-alive in seconds.
	OptionKeepAlive = "keepalive"
)

func (r Result) String() string {
	switch r {
	case ClientOK:
		return "IOTHUB_CLIENT_OK"
	case ClientInvalidArg:
		return "IOTHUB_CLIENT_INVALID_ARG"
	case ClientError:
		return "IOTHUB_CLIENT_ERROR"
	case ClientInvalidSize:
		return "IOTHUB_CLIENT_INVALID_SIZE"
	case ClientIndefiniteTime:
		return "IOTHUB_CLIENT_INDEFINITE_TIME"
	default:
		return fmt.Sprintf("IOTHUB_CLIENT_RESULT(%d)", int(r))
	}
}

func (r MessageResult) String() string {
	switch r {
	case MessageOK:
		return "IOTHUB_MESSAGE_OK"
	case MessageInvalidArg:
		return "IOTHUB_MESSAGE_INVALID_ARG"
	case MessageInvalidType:
		return "IOTHUB_MESSAGE_INVALID_TYPE"
	case MessageError:
		return "IOTHUB_MESSAGE_ERROR"
	default:
		return fmt.Sprintf("IOTHUB_MESSAGE_RESULT(%d)", int(r))
	}
}

func (r ConfirmationResult) String() string {
	switch r {
	case ConfirmationOK:
		return "IOTHUB_CLIENT_CONFIRMATION_OK"
	case ConfirmationBecauseDestroy:
		return "IOTHUB_CLIENT_CONFIRMATION_BECAUSE_DESTROY"
	case ConfirmationMessageTimeout:
		return "IOTHUB_CLIENT_CONFIRMATION_MESSAGE_TIMEOUT"
	case ConfirmationError:
		return "IOTHUB_CLIENT_CONFIRMATION_ERROR"
	default:
		return fmt.Sprintf("IOTHUB_CLIENT_CONFIRMATION_RESULT(%d)", int(r))
	}
}

func (r ConnectionStatusReason) String() string {
	switch r {
	case ReasonExpiredSASToken:
		return "IOTHUB_CLIENT_CONNECTION_EXPIRED_SAS_TOKEN"
	case ReasonDeviceDisabled:
		return "IOTHUB_CLIENT_CONNECTION_DEVICE_DISABLED"
	case ReasonBadCredential:
		return "IOTHUB_CLIENT_CONNECTION_BAD_CREDENTIAL"
	case ReasonRetryExpired:
		return "IOTHUB_CLIENT_CONNECTION_RETRY_EXPIRED"
	case ReasonNoNetwork:
		return "IOTHUB_CLIENT_CONNECTION_NO_NETWORK"
	case ReasonCommunicationError:
		return "IOTHUB_CLIENT_CONNECTION_COMMUNICATION_ERROR"
	case ReasonConnectionOK:
		return "IOTHUB_CLIENT_CONNECTION_OK"
	case ReasonNoPingResponse:
		return "IOTHUB_CLIENT_CONNECTION_NO_PING_RESPONSE"
	default:
		return fmt.Sprintf("IOTHUB_CLIENT_CONNECTION_STATUS_REASON(%d)", int(r))
	}
}

func (d DispositionResult) String() string {
	switch d {
	case DispositionAccepted:
		return "IOTHUBMESSAGE_ACCEPTED"
	case DispositionRejected:
		return "IOTHUBMESSAGE_REJECTED"
	case DispositionAbandoned:
		return "IOTHUBMESSAGE_ABANDONED"
	case DispositionAsyncAck:
		return "IOTHUBMESSAGE_ASYNC_ACK"
	default:
		return fmt.Sprintf("IOTHUBMESSAGE_DISPOSITION_RESULT(%d)", int(d))
	}
}
