// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"unicode/utf8"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// MethodRequest is a direct method invocation. The native callback that
	// delivered it waits until Respond is called.
	MethodRequest struct {
		Name    string
		Payload any

		reply   chan MethodResult
		replied atomic.Bool
	}

	// MethodResult answers a direct method. A nil Payload with no error
	// returns an empty JSON object.
	MethodResult struct {
		Payload any
		Err     error
	}
)

// Direct method status codes.
const (
	MethodSuccess = 200
	MethodError   = 401
)

var emptyResponse = []byte("{ }")

// Respond answers the invocation. Only the first answer counts.
func (m *MethodRequest) Respond(res MethodResult) error {
	if !m.replied.CompareAndSwap(false, true) {
		return &errors.Error{
			Message: "direct method already answered",
			Kind:    errors.StateInvalid,
		}
	}
	m.reply <- res
	return nil
}

// OnMethod is the native direct method callback. It blocks until the
// observer responds.
func OnMethod(
	name []byte,
	payload []byte,
	ctx native.Context,
) (int, []byte) {
	r, ok := lookup(ctx)
	if !ok {
		return methodError("not implemented")
	}
	bg := context.Background()

	if !utf8.Valid(name) {
		r.log.Warn(bg, "direct method name is not valid UTF-8")
		return methodError("invalid method name")
	}

	// An empty payload is not JSON either.
	args, err := decodeJSON(payload, "direct method")
	if err != nil {
		r.log.Err(bg, err)
		return methodError(err.Error())
	}

	r.log.Debug(bg, "direct method received",
		slog.String("name", string(name)),
		slog.Int("size", len(payload)),
	)

	if r.methods == nil {
		return methodError("not implemented")
	}

	req := &MethodRequest{
		Name:    string(name),
		Payload: args,
		reply:   make(chan MethodResult, 1),
	}
	if !send(r, r.methods, "direct method", req) {
		return methodError("direct method not delivered")
	}

	var res MethodResult
	select {
	case res = <-req.reply:
	case <-r.done:
		return methodError("client closed")
	}

	if res.Err != nil {
		r.log.Warn(bg, "direct method failed",
			slog.String("name", req.Name),
			slog.String("error", res.Err.Error()),
		)
		return methodError(res.Err.Error())
	}
	if res.Payload == nil {
		return MethodSuccess, emptyResponse
	}

	body, err := json.Marshal(res.Payload)
	if err != nil {
		r.log.Warn(bg, "cannot encode direct method result",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		return methodError(err.Error())
	}
	return MethodSuccess, body
}

// methodError builds an error response carrying the message as a JSON
// string.
func methodError(msg string) (int, []byte) {
	body, _ := json.Marshal(msg)
	return MethodError, body
}
