// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package message

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/internal/options"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// CodecOptions are the resolved codec options.
	CodecOptions struct {
		Logger *slog.Logger
	}

	// CodecOption represents a single codec option.
	CodecOption interface{ codec(*CodecOptions) }

	withLogger struct{ *slog.Logger }

	setter struct {
		call string
		set  func(native.MessageHandle, string) native.MessageResult
	}
)

// WithLogger enables logging of skipped and missing properties.
func WithLogger(logger *slog.Logger) CodecOption {
	return withLogger{logger}
}

func (o withLogger) codec(opt *CodecOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *CodecOptions) Apply(opts []CodecOption, rest ...CodecOption) {
	for opt := range options.Apply[CodecOption](opts, rest...) {
		opt.codec(o)
	}
}

// CreateOutgoingHandle encodes the message into a new native handle owned by
// the message. Any handle created by an earlier call is destroyed first.
func (m *Message) CreateOutgoingHandle(
	msgs native.Messages,
	opt ...CodecOption,
) (native.MessageHandle, error) {
	if m.direction != Outgoing {
		return 0, &errors.Error{
			Message:      "cannot encode an incoming message",
			Kind:         errors.StateInvalid,
			PropertyName: "direction",
		}
	}

	var opts CodecOptions
	opts.Apply(opt)
	logger := log.Wrap(opts.Logger)
	ctx := context.Background()

	m.Close()

	h := msgs.CreateFromByteArray(m.Body)
	if h == 0 {
		return 0, errors.Native("IoTHubMessage_CreateFromByteArray", nil)
	}
	m.handle, m.messages = h, msgs

	setters := map[string]setter{
		MessageID:       {"IoTHubMessage_SetMessageId", msgs.SetMessageID},
		CorrelationID:   {"IoTHubMessage_SetCorrelationId", msgs.SetCorrelationID},
		ContentType:     {"IoTHubMessage_SetContentTypeSystemProperty", msgs.SetContentType},
		ContentEncoding: {"IoTHubMessage_SetContentEncodingSystemProperty", msgs.SetContentEncoding},
	}
	for _, key := range slices.Sorted(maps.Keys(m.System)) {
		s, ok := setters[key]
		if !ok {
			logger.Warn(ctx, "skipping unknown system property",
				slog.String("key", key),
			)
			continue
		}
		res := s.set(h, m.System[key])
		if err := messageResult(res, s.call, key); err != nil {
			m.Close()
			return 0, err
		}
	}

	for _, key := range slices.Sorted(maps.Keys(m.Properties)) {
		if isSystemProperty(key) {
			logger.Warn(ctx, "skipping property named like a system property",
				slog.String("key", key),
			)
			continue
		}
		res := msgs.SetProperty(h, key, m.Properties[key])
		if err := messageResult(res, "Map_AddOrUpdate", key); err != nil {
			m.Close()
			return 0, err
		}
	}

	return h, nil
}

// FromIncomingHandle decodes a message delivered by the library. Only the
// requested property keys are read. The handle is borrowed and is not
// released by the returned message.
func FromIncomingHandle(
	msgs native.Messages,
	h native.MessageHandle,
	keys []string,
	opt ...CodecOption,
) (*Message, error) {
	if h == 0 {
		return nil, &errors.Error{
			Message:       "null incoming message handle",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "handle",
			PropertyValue: h,
		}
	}
	for _, key := range keys {
		if strings.ContainsRune(key, 0) {
			return nil, &errors.Error{
				Message:       "requested property key contains a null byte",
				Kind:          errors.ArgumentInvalid,
				PropertyName:  "key",
				PropertyValue: key,
			}
		}
	}

	var opts CodecOptions
	opts.Apply(opt)
	logger := log.Wrap(opts.Logger)
	ctx := context.Background()

	m := &Message{
		Properties: map[string]string{},
		System:     map[string]string{},
		direction:  Incoming,
		handle:     h,
	}

	body, res := msgs.GetByteArray(h)
	if res != native.MessageOK || body == nil {
		logger.Warn(ctx, "incoming message has no body",
			slog.String("result", res.String()),
		)
		body = []byte{}
	}
	m.Body = body

	if input, ok := msgs.GetInputName(h); ok {
		m.Queue = input
	}

	getters := map[string]func(native.MessageHandle) (string, bool){
		MessageID:       msgs.GetMessageID,
		CorrelationID:   msgs.GetCorrelationID,
		ContentType:     msgs.GetContentType,
		ContentEncoding: msgs.GetContentEncoding,
	}
	for key, get := range getters {
		if val, ok := get(h); ok {
			m.System[key] = val
		}
	}

	for _, key := range keys {
		val, ok := msgs.GetProperty(h, key)
		if !ok {
			logger.Info(ctx, "requested property not present",
				slog.String("key", key),
			)
			continue
		}
		m.Properties[key] = val
	}

	return m, nil
}

func messageResult(res native.MessageResult, call, key string) error {
	if res == native.MessageOK {
		return nil
	}
	return errors.Native(call, &errors.Error{
		Message:       res.String(),
		Kind:          errors.ArgumentInvalid,
		PropertyName:  key,
		PropertyValue: res,
	})
}
