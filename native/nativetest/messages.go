// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package nativetest

import (
	"maps"
	"sync"

	"github.com/Azure/iothub-client-go/native"
)

type (
	// Messages is an in-memory message handle family.
	Messages struct {
		msgs map[native.MessageHandle]*Message
		next native.MessageHandle

		// FailCreate makes CreateFromByteArray return the null handle.
		FailCreate bool
		// FailProperty makes SetProperty fail for the given key.
		FailProperty string

		mu sync.Mutex
	}

	// Message is the content behind a handle.
	Message struct {
		Body            []byte
		NullBody        bool
		MessageID       *string
		CorrelationID   *string
		ContentType     *string
		ContentEncoding *string
		InputName       *string
		Properties      map[string]string
	}
)

// NewMessages creates an empty message family.
func NewMessages() *Messages {
	return &Messages{msgs: map[native.MessageHandle]*Message{}}
}

// Add stores a message and returns its handle, for simulating inbound
// messages.
func (m *Messages) Add(msg *Message) native.MessageHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Properties == nil {
		msg.Properties = map[string]string{}
	}
	m.next++
	m.msgs[m.next] = msg
	return m.next
}

// Get returns a copy of the message behind the handle.
func (m *Messages) Get(h native.MessageHandle) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[h]
	if !ok {
		return Message{}, false
	}
	cpy := *msg
	cpy.Body = append([]byte(nil), msg.Body...)
	cpy.Properties = maps.Clone(msg.Properties)
	return cpy, true
}

// Live returns the number of handles not yet destroyed.
func (m *Messages) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

func (m *Messages) CreateFromByteArray(body []byte) native.MessageHandle {
	if m.FailCreate {
		return 0
	}
	return m.Add(&Message{Body: append([]byte(nil), body...)})
}

func (m *Messages) Destroy(h native.MessageHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.msgs, h)
}

func (m *Messages) GetByteArray(
	h native.MessageHandle,
) ([]byte, native.MessageResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[h]
	if !ok {
		return nil, native.MessageInvalidArg
	}
	if msg.NullBody {
		return nil, native.MessageError
	}
	return append([]byte(nil), msg.Body...), native.MessageOK
}

func (m *Messages) SetMessageID(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, func(msg *Message) { msg.MessageID = &v })
}

func (m *Messages) GetMessageID(h native.MessageHandle) (string, bool) {
	return m.get(h, func(msg *Message) *string { return msg.MessageID })
}

func (m *Messages) SetCorrelationID(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, func(msg *Message) { msg.CorrelationID = &v })
}

func (m *Messages) GetCorrelationID(h native.MessageHandle) (string, bool) {
	return m.get(h, func(msg *Message) *string { return msg.CorrelationID })
}

func (m *Messages) SetContentType(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, func(msg *Message) { msg.ContentType = &v })
}

func (m *Messages) GetContentType(h native.MessageHandle) (string, bool) {
	return m.get(h, func(msg *Message) *string { return msg.ContentType })
}

func (m *Messages) SetContentEncoding(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, func(msg *Message) { msg.ContentEncoding = &v })
}

func (m *Messages) GetContentEncoding(h native.MessageHandle) (string, bool) {
	return m.get(h, func(msg *Message) *string { return msg.ContentEncoding })
}

func (m *Messages) GetInputName(h native.MessageHandle) (string, bool) {
	return m.get(h, func(msg *Message) *string { return msg.InputName })
}

func (m *Messages) SetProperty(
	h native.MessageHandle,
	key, value string,
) native.MessageResult {
	if key == m.FailProperty {
		return native.MessageError
	}
	return m.set(h, func(msg *Message) { msg.Properties[key] = value })
}

func (m *Messages) GetProperty(
	h native.MessageHandle,
	key string,
) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[h]
	if !ok {
		return "", false
	}
	v, ok := msg.Properties[key]
	return v, ok
}

func (m *Messages) set(
	h native.MessageHandle,
	f func(*Message),
) native.MessageResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[h]
	if !ok {
		return native.MessageInvalidArg
	}
	f(msg)
	return native.MessageOK
}

func (m *Messages) get(
	h native.MessageHandle,
	f func(*Message) *string,
) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[h]
	if !ok {
		return "", false
	}
	if v := f(msg); v != nil {
		return *v, true
	}
	return "", false
}

// Ptr is a helper for filling optional Message fields.
func Ptr(s string) *string {
	return &s
}
