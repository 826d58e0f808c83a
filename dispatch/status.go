// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/Azure/iothub-client-go/native"
)

type (
	// ConnectionStatus is either Authenticated or Unauthenticated.
	ConnectionStatus interface {
		connectionStatus()
	}

	// Authenticated means the client holds a valid session with the hub.
	Authenticated struct{}

	// Unauthenticated means the client has no session, for the given
	// reason.
	Unauthenticated struct {
		Reason Reason
	}

	// Reason qualifies an Unauthenticated status.
	Reason int
)

const (
	Unknown Reason = iota
	ExpiredSASToken
	DeviceDisabled
	BadCredential
	RetryExpired
	NoNetwork
	CommunicationError
)

func (Authenticated) connectionStatus()   {}
func (Unauthenticated) connectionStatus() {}

// ReasonFrom maps a native reason. Codes without a meaning for an
// unauthenticated client map to Unknown.
func ReasonFrom(r native.ConnectionStatusReason) Reason {
	switch r {
	case native.ReasonExpiredSASToken:
		return ExpiredSASToken
	case native.ReasonDeviceDisabled:
		return DeviceDisabled
	case native.ReasonBadCredential:
		return BadCredential
	case native.ReasonRetryExpired:
		return RetryExpired
	case native.ReasonNoNetwork:
		return NoNetwork
	case native.ReasonCommunicationError:
		return CommunicationError
	default:
		return Unknown
	}
}

// StatusFrom maps a native status and reason. An unknown status is treated
// as unauthenticated.
func StatusFrom(
	s native.ConnectionStatus,
	r native.ConnectionStatusReason,
) ConnectionStatus {
	if s == native.ConnectionAuthenticated {
		return Authenticated{}
	}
	return Unauthenticated{ReasonFrom(r)}
}

func (r Reason) String() string {
	switch r {
	case ExpiredSASToken:
		return "expired SAS token"
	case DeviceDisabled:
		return "device disabled"
	case BadCredential:
		return "bad credential"
	case RetryExpired:
		return "retry expired"
	case NoNetwork:
		return "no network"
	case CommunicationError:
		return "communication error"
	default:
		return "unknown"
	}
}

// OnConnectionStatus is the native connection status callback.
func OnConnectionStatus(
	s native.ConnectionStatus,
	reason native.ConnectionStatusReason,
	ctx native.Context,
) {
	r, ok := lookup(ctx)
	if !ok {
		return
	}

	status := StatusFrom(s, reason)
	attrs := []slog.Attr{slog.Bool("authenticated", s == native.ConnectionAuthenticated)}
	if u, ok := status.(Unauthenticated); ok {
		attrs = append(attrs,
			slog.String("reason", u.Reason.String()),
			slog.String("native_reason", reason.String()),
		)
	}
	r.log.Info(context.Background(), "connection status changed", attrs...)

	send(r, r.status, "connection status", status)
}
