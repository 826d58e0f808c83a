// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/message"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// Disposition is the application's verdict on an incoming message.
	Disposition int

	// IncomingMessage is a cloud-to-device or module input message. The
	// native callback that delivered it waits until Dispose or Fail is
	// called, so the application must answer every message.
	IncomingMessage struct {
		*message.Message
		reply   chan reply
		replied atomic.Bool
	}

	reply struct {
		disposition Disposition
		err         error
	}
)

const (
	Accepted Disposition = iota
	Rejected
	Abandoned
	AsyncAck
)

func (d Disposition) native() (native.DispositionResult, bool) {
	switch d {
	case Accepted:
		return native.DispositionAccepted, true
	case Rejected:
		return native.DispositionRejected, true
	case Abandoned:
		return native.DispositionAbandoned, true
	case AsyncAck:
		return native.DispositionAsyncAck, true
	default:
		return native.DispositionRejected, false
	}
}

func (d Disposition) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Abandoned:
		return "abandoned"
	case AsyncAck:
		return "async ack"
	default:
		return "unknown"
	}
}

// Dispose answers the message. Only the first answer counts.
func (m *IncomingMessage) Dispose(d Disposition) error {
	return m.answer(reply{disposition: d})
}

// Fail answers the message with an error, which rejects it.
func (m *IncomingMessage) Fail(err error) error {
	return m.answer(reply{disposition: Rejected, err: err})
}

func (m *IncomingMessage) answer(r reply) error {
	if !m.replied.CompareAndSwap(false, true) {
		return &errors.Error{
			Message: "incoming message already answered",
			Kind:    errors.StateInvalid,
		}
	}
	m.reply <- r
	return nil
}

// OnMessage is the native message callback. It blocks until the observer
// answers, and rejects the message when there is no observer, the message
// cannot be decoded, the observer fails or the registry is closed.
func OnMessage(h native.MessageHandle, ctx native.Context) native.DispositionResult {
	r, ok := lookup(ctx)
	if !ok {
		return native.DispositionRejected
	}
	bg := context.Background()

	msg, err := message.FromIncomingHandle(
		r.messages,
		h,
		r.options.MessageProperties,
		message.WithLogger(r.options.Logger),
	)
	if err != nil {
		r.log.Err(bg, err)
		return native.DispositionRejected
	}
	r.log.Debug(bg, "message received", slog.Any("message", msg))

	if r.incoming == nil {
		r.log.Warn(bg, "no incoming message observer, rejecting message")
		return native.DispositionRejected
	}

	in := &IncomingMessage{Message: msg, reply: make(chan reply, 1)}
	if !send(r, r.incoming, "incoming message", in) {
		return native.DispositionRejected
	}

	select {
	case rep := <-in.reply:
		if rep.err != nil {
			r.log.Warn(bg, "incoming message handler failed",
				slog.String("error", rep.err.Error()),
			)
			return native.DispositionRejected
		}
		res, ok := rep.disposition.native()
		if !ok {
			r.log.Warn(bg, "unknown disposition, rejecting message",
				slog.Int("disposition", int(rep.disposition)),
			)
		}
		return res
	case <-r.done:
		return native.DispositionRejected
	}
}
