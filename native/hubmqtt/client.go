// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Azure/iothub-client-go/internal/container"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/native/hubmqtt/internal"
	"github.com/eclipse/paho.golang/paho"
)

// Library-specific option names understood by SetOption, in addition to
// the ones in package native.
const (
	// OptionX509Certificate takes the path of a PEM client certificate.
	OptionX509Certificate = "x509certificate"
	// OptionX509PrivateKey takes the path of the PEM private key.
	OptionX509PrivateKey = "x509privatekey"
	// OptionX509PrivateKeyPassword takes the path of a file holding the
	// password of an encrypted private key.
	OptionX509PrivateKeyPassword = "x509privatekeypassword"
	// OptionTrustedCerts takes the path of a PEM CA bundle.
	OptionTrustedCerts = "TrustedCerts"
	// OptionSASTokenLifetime takes the SAS token lifetime in seconds.
	OptionSASTokenLifetime = "sas_token_lifetime"
)

const (
	// DefaultDoWorkFrequency paces the callback dispatcher.
	DefaultDoWorkFrequency = 10 * time.Millisecond
	// DefaultKeepAlive is the MQTT keep-alive interval.
	DefaultKeepAlive = 240 * time.Second
)

type (
	// client is one device or module connection and its callbacks.
	client struct {
		lib      *Library
		handle   native.ClientHandle
		settings *settings
		protocol native.Protocol
		log      internal.Logger

		conn *internal.Connection[*paho.Client]
		pump *internal.Pump

		// Pending round trips by request id, and events by send id.
		requests *container.SyncMap[string, request]
		events   *container.SyncMap[uint64, *event]
		ids      atomic.Uint64

		ctx     context.Context
		cancel  context.CancelFunc
		started sync.Once
		done    chan struct{}
		work    sync.WaitGroup

		config config
		mu     sync.RWMutex
	}

	// config is everything set through callbacks and options.
	config struct {
		status    native.ConnectionStatusCallback
		statusCtx native.Context

		inputs map[string]inputCallback

		twin    native.TwinCallback
		twinCtx native.Context

		method    native.MethodCallback
		methodCtx native.Context

		modelID        string
		trace          bool
		keepAlive      time.Duration
		messageTimeout time.Duration
		sasLifetime    time.Duration
		credentials    credentials

		retryPolicy  native.RetryPolicy
		retryTimeout time.Duration
	}

	inputCallback struct {
		cb  native.MessageCallback
		ctx native.Context
	}

	// request is a twin round trip waiting for its response.
	request struct {
		reported    native.ReportedStateCallback
		reportedCtx native.Context
		twin        native.TwinCallback
		twinCtx     native.Context
	}

	// event is a send waiting for its confirmation.
	event struct {
		cb  native.EventConfirmationCallback
		ctx native.Context
	}
)

var bg = context.Background()

func newClient(l *Library, s *settings, p native.Protocol) *client {
	ctx, cancel := context.WithCancel(bg)
	c := &client{
		lib:      l,
		settings: s,
		protocol: p,
		log:      internal.Logger{Logger: log.Wrap(l.options.Logger)},
		conn:     internal.NewConnection[*paho.Client](),
		pump:     internal.NewPump(DefaultDoWorkFrequency),
		requests: container.NewSyncMap[string, request](),
		events:   container.NewSyncMap[uint64, *event](),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		config: config{
			inputs:      map[string]inputCallback{},
			keepAlive:   DefaultKeepAlive,
			sasLifetime: DefaultSASTokenLifetime,
			// Retry forever with jittered backoff unless told otherwise.
			retryPolicy: native.RetryExponentialBackoffWithJitter,
		},
	}
	c.config.credentials.caFile = s.caFile

	c.log.Info(bg, "client created",
		slog.String("client_id", s.clientID()),
		slog.String("host", s.host()),
	)
	return c
}

// start opens the connection in the background, once.
func (c *client) start() {
	c.started.Do(func() {
		go c.maintain()
	})
}

func (c *client) live() bool {
	return c.ctx.Err() == nil
}

// background runs f on its own goroutine; close waits for it.
func (c *client) background(f func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.work.Add(1)
	go func() {
		defer c.work.Done()
		f()
	}()
}

// dispatch queues a callback on the client's dispatcher goroutine.
func (c *client) dispatch(f func()) {
	if !c.pump.Enqueue(f) {
		c.log.Debug(bg, "dropping callback for destroyed client")
	}
}

func (c *client) setStatusCallback(
	cb native.ConnectionStatusCallback,
	ctx native.Context,
) native.Result {
	c.mu.Lock()
	c.config.status, c.config.statusCtx = cb, ctx
	c.mu.Unlock()
	c.start()
	return native.ClientOK
}

func (c *client) setMessageCallback(
	input string,
	cb native.MessageCallback,
	ctx native.Context,
) native.Result {
	c.mu.Lock()
	if cb == nil {
		delete(c.config.inputs, input)
	} else {
		c.config.inputs[input] = inputCallback{cb, ctx}
	}
	c.mu.Unlock()
	c.start()
	return native.ClientOK
}

func (c *client) setTwinCallback(
	cb native.TwinCallback,
	ctx native.Context,
) native.Result {
	c.mu.Lock()
	c.config.twin, c.config.twinCtx = cb, ctx
	c.mu.Unlock()
	c.start()
	return native.ClientOK
}

func (c *client) setMethodCallback(
	cb native.MethodCallback,
	ctx native.Context,
) native.Result {
	c.mu.Lock()
	c.config.method, c.config.methodCtx = cb, ctx
	c.mu.Unlock()
	c.start()
	return native.ClientOK
}

func (c *client) setRetryPolicy(p native.RetryPolicy, timeout uint) native.Result {
	if p < native.RetryNone || p > native.RetryRandom {
		return native.ClientInvalidArg
	}
	c.mu.Lock()
	c.config.retryPolicy = p
	c.config.retryTimeout = time.Duration(timeout) * time.Second
	c.mu.Unlock()
	return native.ClientOK
}

func (c *client) setOption(name string, value any) native.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := true
	switch name {
	case native.OptionDoWorkFrequency:
		var ms uint64
		if ms, ok = toUint(value); ok {
			c.pump.SetInterval(time.Duration(ms) * time.Millisecond)
		}
	case native.OptionLogTrace:
		c.config.trace, ok = value.(bool)
	case native.OptionModelID:
		c.config.modelID, ok = value.(string)
		c.warnIfStarted(name)
	case native.OptionMessageTimeout:
		var ms uint64
		if ms, ok = toUint(value); ok {
			c.config.messageTimeout = time.Duration(ms) * time.Millisecond
		}
	case native.OptionKeepAlive:
		var secs uint64
		if secs, ok = toUint(value); ok {
			c.config.keepAlive = time.Duration(secs) * time.Second
			c.warnIfStarted(name)
		}
	case OptionSASTokenLifetime:
		var secs uint64
		if secs, ok = toUint(value); ok && secs > 0 {
			c.config.sasLifetime = time.Duration(secs) * time.Second
		}
	case OptionX509Certificate:
		c.config.credentials.certFile, ok = value.(string)
	case OptionX509PrivateKey:
		c.config.credentials.keyFile, ok = value.(string)
	case OptionX509PrivateKeyPassword:
		c.config.credentials.passwordFile, ok = value.(string)
	case OptionTrustedCerts:
		c.config.credentials.caFile, ok = value.(string)
	default:
		ok = false
	}

	if !ok {
		c.log.Warn(bg, "invalid option",
			slog.String("name", name),
			slog.Any("value", value),
		)
		return native.ClientInvalidArg
	}
	return native.ClientOK
}

func (c *client) warnIfStarted(name string) {
	if c.conn.Current().Attempt > 0 {
		c.log.Warn(bg, "option takes effect on the next connection",
			slog.String("name", name),
		)
	}
}

func (c *client) snapshot() config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// close disconnects, confirms pending sends as destroyed and runs the
// callbacks already queued. It must not be called from a callback.
func (c *client) close() {
	c.cancel()
	// Wait out callers already inside background.
	c.mu.Lock()
	c.mu.Unlock() //nolint:staticcheck

	c.started.Do(func() { close(c.done) })
	<-c.done
	c.work.Wait()

	var ids []uint64
	c.events.Range(func(id uint64, _ *event) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		c.confirm(id, native.ConfirmationBecauseDestroy)
	}

	c.pump.Stop()
	c.log.Info(bg, "client destroyed",
		slog.String("client_id", c.settings.clientID()),
		slog.Int("abandoned_requests", c.requests.Len()),
	)
}

func toUint(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case int:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	default:
		return 0, false
	}
}
