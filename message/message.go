// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package message converts between in-memory hub messages and native message
// handles.
package message

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/Azure/iothub-client-go/native"
)

type (
	// Message is a telemetry or cloud-to-device message.
	Message struct {
		// Body is the raw payload.
		Body []byte

		// Queue is the output name for outgoing messages, or the input name
		// an incoming message arrived on, if any.
		Queue string

		// Properties are the application properties.
		Properties map[string]string

		// System holds system properties keyed by their wire id. Only the
		// four wire ids below are encoded.
		System map[string]string

		direction Direction
		handle    native.MessageHandle
		messages  native.Messages
	}

	// Direction tells whether a message owns its native handle.
	Direction int
)

const (
	// Outgoing messages own their native handle and release it on Close.
	Outgoing Direction = iota
	// Incoming messages borrow the handle of the callback that produced
	// them.
	Incoming
)

// System property wire ids.
const (
	MessageID       = "$.mid"
	CorrelationID   = "$.cid"
	ContentType     = "$.ct"
	ContentEncoding = "$.ce"
)

// DefaultQueue is the output name used when none is given.
const DefaultQueue = "output"

// SystemProperties lists the wire ids the codec understands.
var SystemProperties = []string{
	MessageID,
	CorrelationID,
	ContentType,
	ContentEncoding,
}

// Direction returns the message's ownership direction.
func (m *Message) Direction() Direction {
	return m.direction
}

// ID returns the message id, or "" if unset.
func (m *Message) ID() string {
	return m.System[MessageID]
}

// CorrelationID returns the correlation id, or "" if unset.
func (m *Message) CorrelationID() string {
	return m.System[CorrelationID]
}

// ContentType returns the content type, or "" if unset.
func (m *Message) ContentType() string {
	return m.System[ContentType]
}

// ContentEncoding returns the content encoding, or "" if unset.
func (m *Message) ContentEncoding() string {
	return m.System[ContentEncoding]
}

// Handle returns the current native handle, or zero if none was created.
func (m *Message) Handle() native.MessageHandle {
	return m.handle
}

// Close releases the native handle of an outgoing message. It does nothing
// for incoming messages, whose handle belongs to the library.
func (m *Message) Close() {
	if m.direction != Outgoing || m.handle == 0 {
		return
	}
	m.messages.Destroy(m.handle)
	m.handle = 0
	m.messages = nil
}

// LogValue implements slog.LogValuer.
func (m *Message) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("queue", m.Queue),
		slog.Int("body_size", len(m.Body)),
	}
	for _, k := range slices.Sorted(maps.Keys(m.System)) {
		attrs = append(attrs, slog.String(k, m.System[k]))
	}
	if len(m.Properties) > 0 {
		attrs = append(attrs, slog.Int("properties", len(m.Properties)))
	}
	return slog.GroupValue(attrs...)
}

func isSystemProperty(key string) bool {
	return slices.Contains(SystemProperties, key)
}
