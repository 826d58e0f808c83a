// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package message

import (
	"maps"
	"strings"

	"github.com/Azure/iothub-client-go/errors"
)

// Builder assembles an outgoing message. It makes no native calls.
type Builder struct {
	msg Message
	err error
}

// New starts an outgoing message on the default queue.
func New() *Builder {
	return &Builder{msg: Message{
		Queue:      DefaultQueue,
		Properties: map[string]string{},
		System:     map[string]string{},
		direction:  Outgoing,
	}}
}

// Body sets the payload.
func (b *Builder) Body(body []byte) *Builder {
	b.msg.Body = body
	return b
}

// Queue sets the output name.
func (b *Builder) Queue(queue string) *Builder {
	b.check("queue", queue)
	b.msg.Queue = queue
	return b
}

// ID sets the message id.
func (b *Builder) ID(id string) *Builder {
	return b.system(MessageID, "id", id)
}

// CorrelationID sets the correlation id.
func (b *Builder) CorrelationID(id string) *Builder {
	return b.system(CorrelationID, "correlation_id", id)
}

// ContentType sets the content type, e.g. "application/json".
func (b *Builder) ContentType(ct string) *Builder {
	return b.system(ContentType, "content_type", ct)
}

// ContentEncoding sets the content encoding, e.g. "utf-8".
func (b *Builder) ContentEncoding(ce string) *Builder {
	return b.system(ContentEncoding, "content_encoding", ce)
}

// Property adds an application property.
func (b *Builder) Property(key, value string) *Builder {
	b.check("property key", key)
	b.check("property value", value)
	b.msg.Properties[key] = value
	return b
}

// Build returns the message, or the first invalid field encountered.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	msg := b.msg
	msg.Properties = maps.Clone(b.msg.Properties)
	msg.System = maps.Clone(b.msg.System)
	return &msg, nil
}

func (b *Builder) system(key, name, value string) *Builder {
	b.check(name, value)
	b.msg.System[key] = value
	return b
}

func (b *Builder) check(name, value string) {
	if b.err != nil || !strings.ContainsRune(value, 0) {
		return
	}
	b.err = &errors.Error{
		Message:       "message " + name + " contains a null byte",
		Kind:          errors.ArgumentInvalid,
		PropertyName:  name,
		PropertyValue: value,
	}
}
