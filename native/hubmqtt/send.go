// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
	"github.com/eclipse/paho.golang/paho"
)

// statusNotSent is reported to a reported state callback whose patch never
// reached the hub.
const statusNotSent = 0

// publish sends pub on the current connection, waiting for the connection
// to come back if it drops first.
func (c *client) publish(ctx context.Context, pub *paho.Publish) error {
	cfg := c.snapshot()
	for pctx, cli := range c.conn.Client(ctx) {
		c.trace(pctx, cfg, "sending publish", pub)
		res, err := cli.Publish(pctx, pub)
		c.trace(pctx, cfg, "puback received", res)
		if err == nil {
			if res != nil && res.ReasonCode >= 0x80 {
				return &errors.Error{
					Message:       "publish rejected",
					Kind:          errors.UnknownError,
					PropertyName:  "reason_code",
					PropertyValue: res.ReasonCode,
				}
			}
			return nil
		}
		if pctx.Err() == nil {
			return err
		}
		c.log.Debug(ctx, "connection lost during publish; retrying",
			slog.String("topic", pub.Topic),
		)
	}
	return errors.Context(ctx, "publish")
}

func (c *client) sendEvent(
	h native.MessageHandle,
	output string,
	cb native.EventConfirmationCallback,
	ctx native.Context,
) native.Result {
	msg, ok := c.lib.msgs.snapshot(h)
	if !ok {
		return native.ClientInvalidArg
	}
	if !c.live() {
		return native.ClientError
	}
	c.start()

	id := c.ids.Add(1)
	c.events.Store(id, &event{cb, ctx})

	pub := &paho.Publish{
		Topic:   c.settings.telemetryTopic(output, msg.properties()),
		QoS:     1,
		Payload: msg.body,
	}

	c.background(func() {
		pctx, cancel := c.ctx, context.CancelFunc(func() {})
		if timeout := c.snapshot().messageTimeout; timeout > 0 {
			pctx, cancel = context.WithTimeout(c.ctx, timeout)
		}
		defer cancel()

		err := c.publish(pctx, pub)
		switch {
		case err == nil:
			c.confirm(id, native.ConfirmationOK)
		case !c.live():
			c.confirm(id, native.ConfirmationBecauseDestroy)
		case errors.Is(err, errors.Timeout):
			c.confirm(id, native.ConfirmationMessageTimeout)
		default:
			c.log.Err(bg, err)
			c.confirm(id, native.ConfirmationError)
		}
	})

	return native.ClientOK
}

// confirm delivers an event's confirmation, once.
func (c *client) confirm(id uint64, r native.ConfirmationResult) {
	e, ok := c.events.LoadAndDelete(id)
	if !ok {
		return
	}
	c.dispatch(func() { e.cb(r, e.ctx) })
}

func (c *client) sendReportedState(
	payload []byte,
	cb native.ReportedStateCallback,
	ctx native.Context,
) native.Result {
	if !c.live() {
		return native.ClientError
	}
	c.start()

	rid := c.nextRequestID()
	c.requests.Store(rid, request{reported: cb, reportedCtx: ctx})

	pub := &paho.Publish{
		Topic:   twinReportedTopic + rid,
		QoS:     1,
		Payload: append([]byte(nil), payload...),
	}
	c.background(func() {
		if err := c.publish(c.ctx, pub); err != nil {
			if req, ok := c.requests.LoadAndDelete(rid); ok && c.live() {
				c.log.Err(bg, err)
				c.dispatch(func() {
					req.reported(statusNotSent, req.reportedCtx)
				})
			}
		}
	})
	return native.ClientOK
}

func (c *client) getTwin(cb native.TwinCallback, ctx native.Context) native.Result {
	if !c.live() {
		return native.ClientError
	}
	c.start()

	rid := c.nextRequestID()
	c.requests.Store(rid, request{twin: cb, twinCtx: ctx})

	pub := &paho.Publish{Topic: twinGetTopic + rid, QoS: 1}
	c.background(func() {
		if err := c.publish(c.ctx, pub); err != nil {
			c.requests.Delete(rid)
			if c.live() {
				c.log.Err(bg, err)
			}
		}
	})
	return native.ClientOK
}

// respond answers a direct method invocation.
func (c *client) respond(rid string, status int, payload []byte) {
	pub := &paho.Publish{
		Topic:   methodResponseTopic(status, rid),
		QoS:     1,
		Payload: payload,
	}
	c.background(func() {
		if err := c.publish(c.ctx, pub); err != nil && c.live() {
			c.log.Error(bg, "direct method response not sent",
				slog.String("rid", rid),
				slog.String("error", err.Error()),
			)
		}
	})
}

func (c *client) nextRequestID() string {
	return strconv.FormatUint(c.ids.Add(1), 10)
}
