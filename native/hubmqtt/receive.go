// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"log/slog"
	"strings"

	"github.com/Azure/iothub-client-go/native"
	"github.com/eclipse/paho.golang/paho"
)

// Status and body sent when no direct method callback is registered.
const (
	methodNotImplemented     = 501
	methodNotImplementedBody = `{"message":"direct method not implemented"}`
)

// receive routes an inbound publish. It runs on paho's goroutine, so all
// callbacks are handed to the dispatcher.
func (c *client) receive(cli *paho.Client, pub *paho.Publish) {
	cfg := c.snapshot()
	c.trace(bg, cfg, "publish received", pub)

	t := c.settings.parseTopic(pub.Topic)
	switch t.kind {
	case c2dTopic, inputTopic:
		// Acknowledged once the callback has decided.
		c.dispatch(func() { c.onMessage(cli, pub, t) })
		return

	case twinResponseTopic:
		c.onTwinResponse(t, pub.Payload)

	case desiredTopic:
		payload := pub.Payload
		c.dispatch(func() {
			cfg := c.snapshot()
			if cfg.twin != nil {
				cfg.twin(native.TwinUpdatePartial, payload, cfg.twinCtx)
			}
		})

	case methodTopic:
		c.dispatch(func() { c.onMethod(t, pub.Payload) })

	default:
		c.log.Warn(bg, "ignoring publish on unexpected topic",
			slog.String("topic", pub.Topic),
		)
	}

	c.ack(cli, pub)
}

func (c *client) ack(cli *paho.Client, pub *paho.Publish) {
	if pub.QoS == 0 {
		return
	}
	if err := cli.Ack(pub); err != nil {
		c.log.Debug(bg, "ack failed",
			slog.String("topic", pub.Topic),
			slog.String("error", err.Error()),
		)
	}
}

func (c *client) onMessage(cli *paho.Client, pub *paho.Publish, t topic) {
	cfg := c.snapshot()
	in, ok := cfg.inputs[t.input]
	if !ok {
		c.log.Warn(bg, "no callback for incoming message; completing it",
			slog.String("input", t.input),
		)
		c.ack(cli, pub)
		return
	}

	msg := &hubMessage{
		body:   append([]byte(nil), pub.Payload...),
		system: map[string]string{},
		props:  map[string]string{},
		input:  t.input,
	}
	for k, v := range t.props {
		if strings.HasPrefix(k, "$.") {
			msg.system[k] = v
		} else {
			msg.props[k] = v
		}
	}

	h := c.lib.msgs.add(msg)
	res := in.cb(h, in.ctx)
	c.lib.msgs.Destroy(h)

	// PUBACKs go out in arrival order, so a withheld one would also hold
	// back every later publish. Every disposition completes the message.
	switch res {
	case native.DispositionAccepted:
	case native.DispositionRejected:
		c.log.Warn(bg, "incoming message rejected; completing it",
			slog.String("input", t.input),
		)
	default:
		c.log.Warn(bg, "incoming message cannot be left pending; completing it",
			slog.String("input", t.input),
			slog.String("disposition", res.String()),
		)
	}
	c.ack(cli, pub)
}

func (c *client) onTwinResponse(t topic, payload []byte) {
	req, ok := c.requests.LoadAndDelete(t.rid)
	if !ok {
		c.log.Warn(bg, "twin response for unknown request",
			slog.String("rid", t.rid),
			slog.Int("status", t.status),
		)
		return
	}

	switch {
	case req.reported != nil:
		c.dispatch(func() { req.reported(t.status, req.reportedCtx) })

	case t.status/100 == 2:
		c.dispatch(func() {
			req.twin(native.TwinUpdateComplete, payload, req.twinCtx)
		})

	default:
		c.log.Error(bg, "twin request failed",
			slog.String("rid", t.rid),
			slog.Int("status", t.status),
		)
	}
}

func (c *client) onMethod(t topic, payload []byte) {
	cfg := c.snapshot()
	if cfg.method == nil {
		c.respond(t.rid, methodNotImplemented, []byte(methodNotImplementedBody))
		return
	}
	status, res := cfg.method([]byte(t.name), payload, cfg.methodCtx)
	c.respond(t.rid, status, res)
}
