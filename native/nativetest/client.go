// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package nativetest

import (
	"fmt"

	"github.com/Azure/iothub-client-go/native"
)

func (c *Client) setOption(name string, value any) {
	if _, ok := c.options[name]; !ok {
		c.optionOrder = append(c.optionOrder, name)
	}
	c.options[name] = value
}

// Destroyed reports whether Destroy was called.
func (c *Client) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Option returns the last value set for the option.
func (c *Client) Option(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.options[name]
	return v, ok
}

// OptionNames returns option names in the order they were first set.
func (c *Client) OptionNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.optionOrder...)
}

// RetryPolicy returns the configured retry policy and timeout.
func (c *Client) RetryPolicy() (native.RetryPolicy, uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryPolicy, c.retryTimeout
}

// Input returns the input name registered with the message callback.
func (c *Client) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Registered reports which callbacks are registered.
func (c *Client) Registered() (status, message, twin, method bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status != nil, c.message != nil, c.twin != nil, c.method != nil
}

// Events returns the recorded sends.
func (c *Client) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

// Reports returns the recorded reported state patches.
func (c *Client) Reports() []*Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Report(nil), c.reports...)
}

// TwinRequests returns how many twin requests were made.
func (c *Client) TwinRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.twinReqs)
}

// Context returns the context registered with the event.
func (e *Event) Context() native.Context {
	return e.ctx
}

// Confirm fires the event's confirmation callback.
func (e *Event) Confirm(r native.ConfirmationResult) {
	e.cb(r, e.ctx)
}

// Context returns the context registered with the report.
func (r *Report) Context() native.Context {
	return r.ctx
}

// Confirm fires the report's callback with the status code.
func (r *Report) Confirm(status int) {
	r.cb(status, r.ctx)
}

// ConnectionStatus fires the connection status callback.
func (c *Client) ConnectionStatus(
	s native.ConnectionStatus,
	r native.ConnectionStatusReason,
) error {
	c.mu.Lock()
	cb, ctx := c.status, c.statusCtx
	c.mu.Unlock()
	if cb == nil {
		return fmt.Errorf("no connection status callback")
	}
	cb(s, r, ctx)
	return nil
}

// Message fires the message callback with a new inbound message, which is
// destroyed once the callback returns.
func (c *Client) Message(msg *Message) (native.DispositionResult, error) {
	c.mu.Lock()
	cb, ctx := c.message, c.msgCtx
	c.mu.Unlock()
	if cb == nil {
		return 0, fmt.Errorf("no message callback")
	}
	h := c.lib.msgs.Add(msg)
	defer c.lib.msgs.Destroy(h)
	return cb(h, ctx), nil
}

// Twin fires the twin callback.
func (c *Client) Twin(s native.TwinUpdateState, payload []byte) error {
	c.mu.Lock()
	cb, ctx := c.twin, c.twinCtx
	c.mu.Unlock()
	if cb == nil {
		return fmt.Errorf("no twin callback")
	}
	cb(s, payload, ctx)
	return nil
}

// CompleteTwinRequest answers the i-th twin request with a full document.
func (c *Client) CompleteTwinRequest(i int, payload []byte) error {
	c.mu.Lock()
	if i >= len(c.twinReqs) {
		c.mu.Unlock()
		return fmt.Errorf("no twin request %d", i)
	}
	req := c.twinReqs[i]
	c.mu.Unlock()
	req.cb(native.TwinUpdateComplete, payload, req.ctx)
	return nil
}

// Method fires the method callback.
func (c *Client) Method(name, payload []byte) (int, []byte, error) {
	c.mu.Lock()
	cb, ctx := c.method, c.methodCtx
	c.mu.Unlock()
	if cb == nil {
		return 0, nil, fmt.Errorf("no method callback")
	}
	status, res := cb(name, payload, ctx)
	return status, res, nil
}
