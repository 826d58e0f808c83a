// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package iothub is the application-facing hub client. One Client type
// covers devices, modules and edge modules; it sends telemetry and reported
// properties with tracked confirmations and delivers connection status,
// desired properties, direct methods and incoming messages on observer
// channels.
package iothub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Azure/iothub-client-go/confirm"
	"github.com/Azure/iothub-client-go/dispatch"
	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/identity"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/internal/wallclock"
	"github.com/Azure/iothub-client-go/message"
	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/native/hubmqtt"
	"github.com/Azure/iothub-client-go/transport"
	"github.com/google/uuid"
)

type (
	// Client is a connected hub client. Its methods may be called from any
	// goroutine.
	Client struct {
		typ      ClientType
		lib      native.Library
		twin     transport.Twin
		tracker  *confirm.Tracker
		registry *dispatch.Registry
		options  ClientOptions
		log      log.Logger

		closed bool
		mu     sync.RWMutex
	}

	// ClientType is the identity topology the client connects as.
	ClientType int
)

const (
	Device ClientType = iota
	Module
	Edge
)

// IdentityExpiry is how long a connection string requested from the
// identity service should stay valid.
const IdentityExpiry = 30 * 24 * time.Hour

// Native library initialization runs once per library for the life of the
// process.
var inits sync.Map

func (t ClientType) String() string {
	switch t {
	case Device:
		return "device"
	case Module:
		return "module"
	case Edge:
		return "edge"
	default:
		return fmt.Sprintf("ClientType(%d)", int(t))
	}
}

// NewFromConnectionString connects with a connection string.
func NewFromConnectionString(
	typ ClientType,
	connStr string,
	opt ...ClientOption,
) (*Client, error) {
	if strings.ContainsRune(connStr, 0) {
		return nil, &errors.Error{
			Message:      "connection string contains a null byte",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "connStr",
		}
	}
	return newClient(typ, opt, func(tw transport.Twin) error {
		return tw.CreateFromConnectionString(connStr)
	})
}

// NewFromEdgeEnvironment connects an edge module using the environment
// provided by the edge runtime.
func NewFromEdgeEnvironment(opt ...ClientOption) (*Client, error) {
	return newClient(Edge, opt, transport.Twin.CreateFromEdgeEnvironment)
}

// NewFromIdentityService connects a device or module with a connection
// string issued by the identity service, valid for IdentityExpiry.
func NewFromIdentityService(
	ctx context.Context,
	typ ClientType,
	provider identity.Provider,
	opt ...ClientOption,
) (*Client, error) {
	if typ == Edge {
		return nil, &errors.Error{
			Message: "edge modules connect from the edge environment, " +
				"not the identity service",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "typ",
			PropertyValue: typ,
		}
	}

	expiry := wallclock.Instance.Now().Add(IdentityExpiry)
	info, err := provider.RequestConnectionString(ctx, expiry)
	if err != nil {
		return nil, err
	}
	return NewFromConnectionString(typ, info.ConnectionString, opt...)
}

func newClient(
	typ ClientType,
	opt []ClientOption,
	create func(transport.Twin) error,
) (*Client, error) {
	opts, err := ClientOptionsFromEnv()
	if err != nil {
		return nil, err
	}
	opts.Apply(opt)
	if opts.Library == nil {
		opts.Library = hubmqtt.Default()
	}

	c := &Client{typ: typ, lib: opts.Library, options: *opts}
	c.log = log.Wrap(opts.Logger)

	if err := initialize(c.lib); err != nil {
		return nil, err
	}

	twinOpts := []transport.TwinOption{
		transport.WithProtocol(opts.Protocol),
		transport.WithInput(opts.Input),
		transport.WithLogger(opts.Logger),
	}
	switch typ {
	case Device:
		c.twin = transport.NewDevice(c.lib, twinOpts...)
	case Module:
		c.twin = transport.NewModule(c.lib, twinOpts...)
	case Edge:
		c.twin = transport.NewEdge(c.lib, twinOpts...)
	default:
		return nil, &errors.Error{
			Message:       "unknown client type",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "typ",
			PropertyValue: typ,
		}
	}

	if c.tracker, err = confirm.NewTracker(opts.tracker()...); err != nil {
		return nil, err
	}
	c.registry, err = dispatch.New(c.lib.Messages(), opts.registry()...)
	if err != nil {
		return nil, err
	}

	if err := create(c.twin); err != nil {
		c.registry.Close()
		return nil, err
	}
	if err := c.setup(); err != nil {
		c.Close()
		return nil, err
	}

	c.log.Info(context.Background(), "client created",
		slog.String("type", typ.String()),
		slog.String("sdk_version", c.SDKVersion()),
	)
	return c, nil
}

func initialize(lib native.Library) error {
	f, _ := inits.LoadOrStore(lib, sync.OnceValue(lib.Init))
	if res := f.(func() int)(); res != 0 {
		return errors.Native("IoTHub_Init", fmt.Errorf("result %d", res))
	}
	return nil
}

// setup forwards the configured options to the native client and registers
// every native callback.
func (c *Client) setup() error {
	bg := context.Background()
	o := &c.options

	if o.DoWorkFrequency == nil && o.invalidDoWork != "" {
		c.log.Error(bg, "ignoring do work frequency that does not parse",
			slog.String("value", o.invalidDoWork),
		)
	}
	if o.DoWorkFrequency != nil {
		freq := *o.DoWorkFrequency
		if freq < 0 || freq > MaxDoWorkFrequency {
			c.log.Error(bg, "ignoring do work frequency out of range",
				slog.Duration("frequency", freq),
				slog.Duration("max", MaxDoWorkFrequency),
			)
		} else {
			c.log.Debug(bg, "setting do work frequency",
				slog.Duration("frequency", freq),
			)
			ms := uint64(freq / time.Millisecond)
			if err := c.twin.SetOption(native.OptionDoWorkFrequency, ms); err != nil {
				return err
			}
		}
	}

	if o.SDKLogs {
		if err := c.twin.SetOption(native.OptionLogTrace, true); err != nil {
			return err
		}
	}

	if o.ModelID != "" {
		if err := c.twin.SetOption(native.OptionModelID, o.ModelID); err != nil {
			return err
		}
	}

	if o.MessageTimeout > 0 {
		ms := uint64(o.MessageTimeout / time.Millisecond)
		if err := c.twin.SetOption(native.OptionMessageTimeout, ms); err != nil {
			return err
		}
	}

	if o.RetryPolicy != nil {
		secs := uint(o.RetryPolicy.Timeout / time.Second)
		if err := c.twin.SetRetryPolicy(o.RetryPolicy.Policy, secs); err != nil {
			return err
		}
	}

	// Callbacks last: the library may start connecting once they are set.
	ctx := c.registry.Context()
	if err := c.twin.SetConnectionStatusCallback(
		dispatch.OnConnectionStatus,
		ctx,
	); err != nil {
		return err
	}
	if err := c.twin.SetInputMessageCallback(dispatch.OnMessage, ctx); err != nil {
		return err
	}
	if err := c.twin.SetTwinCallback(dispatch.OnTwin, ctx); err != nil {
		return err
	}
	if err := c.twin.SetMethodCallback(dispatch.OnMethod, ctx); err != nil {
		return err
	}

	return nil
}

func (c *Client) check(op string) error {
	if c.closed {
		return &errors.Error{
			Message:      op + " called on a closed client",
			Kind:         errors.StateInvalid,
			PropertyName: "client",
		}
	}
	return nil
}

// SendD2CMessage submits a telemetry message. It returns once the native SDK
// accepted the message; delivery is confirmed in the background and only
// reported through logs and the confirmation handler.
func (c *Client) SendD2CMessage(msg *message.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check("SendD2CMessage"); err != nil {
		return err
	}

	h, err := msg.CreateOutgoingHandle(
		c.lib.Messages(),
		message.WithLogger(c.options.Logger),
	)
	if err != nil {
		return err
	}
	// The native SDK copies the message on submission.
	defer msg.Close()

	p, err := c.tracker.Track(confirm.Telemetry, confirm.TraceID(msg.ID()))
	if err != nil {
		return err
	}

	queue := msg.Queue
	if queue == "" {
		queue = message.DefaultQueue
	}
	err = c.twin.SendEventAsync(h, queue, c.tracker.OnEventConfirmation, p.Context())
	if err != nil {
		p.Discard()
		return err
	}

	c.log.Debug(context.Background(), "message sent",
		slog.String("trace_id", p.TraceID()),
		slog.Any("message", msg),
	)
	p.Watch()
	return nil
}

// TwinReport sends a reported properties patch, encoded as JSON.
func (c *Client) TwinReport(state any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check("TwinReport"); err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return &errors.Error{
			Message:      "cannot encode reported state",
			Kind:         errors.PayloadInvalid,
			NestedError:  err,
			PropertyName: "state",
		}
	}

	p, err := c.tracker.Track(confirm.ReportedState, uuid.NewString())
	if err != nil {
		return err
	}
	err = c.twin.SendReportedState(payload, c.tracker.OnReportedState, p.Context())
	if err != nil {
		p.Discard()
		return err
	}

	c.log.Debug(context.Background(), "reported state sent",
		slog.String("trace_id", p.TraceID()),
		slog.Int("size", len(payload)),
	)
	p.Watch()
	return nil
}

// TwinRequestAsync asks for the full twin document, which arrives on the
// desired property observer as a complete update.
func (c *Client) TwinRequestAsync() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check("TwinRequestAsync"); err != nil {
		return err
	}
	return c.twin.RequestTwinAsync(dispatch.OnTwin, c.registry.Context())
}

// Shutdown stops accepting sends and waits for outstanding confirmations,
// until ctx is done or the shutdown timeout passes. The client stays
// connected; call Close afterwards.
func (c *Client) Shutdown(ctx context.Context) confirm.Summary {
	return c.tracker.Shutdown(ctx)
}

// Close releases any native callback blocked on an observer, destroys the
// native client and abandons unconfirmed sends. Observer channels are closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	c.registry.Close()
	c.twin.Destroy()

	// Destroy confirms pending sends; anything left is abandoned now.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.tracker.Shutdown(ctx)

	c.log.Info(context.Background(), "client closed",
		slog.String("type", c.typ.String()),
	)
}

// Type returns the client's topology.
func (c *Client) Type() ClientType {
	return c.typ
}

// SDKVersion returns the native SDK version string.
func (c *Client) SDKVersion() string {
	return c.lib.VersionString()
}

// Stats returns the confirmation counters.
func (c *Client) Stats() confirm.Stats {
	return c.tracker.Stats()
}

// ConnectionStatus returns the connection status observer, or nil.
func (c *Client) ConnectionStatus() <-chan dispatch.ConnectionStatus {
	return c.registry.ConnectionStatus()
}

// TwinDesired returns the desired property observer, or nil.
func (c *Client) TwinDesired() <-chan dispatch.TwinUpdate {
	return c.registry.TwinDesired()
}

// DirectMethods returns the direct method observer, or nil.
func (c *Client) DirectMethods() <-chan *dispatch.MethodRequest {
	return c.registry.DirectMethods()
}

// IncomingMessages returns the incoming message observer, or nil.
func (c *Client) IncomingMessages() <-chan *dispatch.IncomingMessage {
	return c.registry.IncomingMessages()
}
