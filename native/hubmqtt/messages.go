// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"maps"
	"sync"

	"github.com/Azure/iothub-client-go/internal/handle"
	"github.com/Azure/iothub-client-go/native"
)

// System property keys, as they appear in topic property bags.
const (
	propMessageID       = "$.mid"
	propCorrelationID   = "$.cid"
	propContentType     = "$.ct"
	propContentEncoding = "$.ce"
)

type (
	// messages is the message handle family, backed by a handle table.
	messages struct {
		table *handle.Table[*hubMessage]
	}

	hubMessage struct {
		body   []byte
		system map[string]string
		props  map[string]string
		input  string
		mu     sync.Mutex
	}
)

func newMessages() *messages {
	return &messages{table: handle.NewTable[*hubMessage]()}
}

func (m *messages) add(msg *hubMessage) native.MessageHandle {
	if msg.system == nil {
		msg.system = map[string]string{}
	}
	if msg.props == nil {
		msg.props = map[string]string{}
	}
	return native.MessageHandle(m.table.Insert(msg))
}

// snapshot copies the message content, for sending after the handle is
// destroyed.
func (m *messages) snapshot(h native.MessageHandle) (*hubMessage, bool) {
	msg, ok := m.table.Load(handle.Token(h))
	if !ok {
		return nil, false
	}
	msg.mu.Lock()
	defer msg.mu.Unlock()
	return &hubMessage{
		body:   append([]byte(nil), msg.body...),
		system: maps.Clone(msg.system),
		props:  maps.Clone(msg.props),
		input:  msg.input,
	}, true
}

// properties merges system and application properties into one bag.
func (msg *hubMessage) properties() map[string]string {
	bag := maps.Clone(msg.props)
	maps.Copy(bag, msg.system)
	return bag
}

func (m *messages) CreateFromByteArray(body []byte) native.MessageHandle {
	return m.add(&hubMessage{body: append([]byte(nil), body...)})
}

func (m *messages) Destroy(h native.MessageHandle) {
	m.table.Remove(handle.Token(h))
}

func (m *messages) GetByteArray(
	h native.MessageHandle,
) ([]byte, native.MessageResult) {
	msg, ok := m.table.Load(handle.Token(h))
	if !ok {
		return nil, native.MessageInvalidArg
	}
	msg.mu.Lock()
	defer msg.mu.Unlock()
	return append([]byte(nil), msg.body...), native.MessageOK
}

func (m *messages) SetMessageID(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, propMessageID, v, true)
}

func (m *messages) GetMessageID(h native.MessageHandle) (string, bool) {
	return m.get(h, propMessageID, true)
}

func (m *messages) SetCorrelationID(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, propCorrelationID, v, true)
}

func (m *messages) GetCorrelationID(h native.MessageHandle) (string, bool) {
	return m.get(h, propCorrelationID, true)
}

func (m *messages) SetContentType(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, propContentType, v, true)
}

func (m *messages) GetContentType(h native.MessageHandle) (string, bool) {
	return m.get(h, propContentType, true)
}

func (m *messages) SetContentEncoding(
	h native.MessageHandle,
	v string,
) native.MessageResult {
	return m.set(h, propContentEncoding, v, true)
}

func (m *messages) GetContentEncoding(h native.MessageHandle) (string, bool) {
	return m.get(h, propContentEncoding, true)
}

func (m *messages) GetInputName(h native.MessageHandle) (string, bool) {
	msg, ok := m.table.Load(handle.Token(h))
	if !ok {
		return "", false
	}
	msg.mu.Lock()
	defer msg.mu.Unlock()
	return msg.input, msg.input != ""
}

func (m *messages) SetProperty(
	h native.MessageHandle,
	key, value string,
) native.MessageResult {
	if key == "" {
		return native.MessageInvalidArg
	}
	return m.set(h, key, value, false)
}

func (m *messages) GetProperty(
	h native.MessageHandle,
	key string,
) (string, bool) {
	return m.get(h, key, false)
}

func (m *messages) set(
	h native.MessageHandle,
	key, value string,
	system bool,
) native.MessageResult {
	msg, ok := m.table.Load(handle.Token(h))
	if !ok {
		return native.MessageInvalidArg
	}
	msg.mu.Lock()
	defer msg.mu.Unlock()
	if system {
		msg.system[key] = value
	} else {
		msg.props[key] = value
	}
	return native.MessageOK
}

func (m *messages) get(
	h native.MessageHandle,
	key string,
	system bool,
) (string, bool) {
	msg, ok := m.table.Load(handle.Token(h))
	if !ok {
		return "", false
	}
	msg.mu.Lock()
	defer msg.mu.Unlock()
	bag := msg.props
	if system {
		bag = msg.system
	}
	v, ok := bag[key]
	return v, ok
}
