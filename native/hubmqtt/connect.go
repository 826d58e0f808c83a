// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/wallclock"
	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/retry"
	"github.com/eclipse/paho.golang/paho"
)

// CONNACK reason codes that end reconnection.
const (
	connackBadCredentials = 0x86
	connackNotAuthorized  = 0x87
	connackBanned         = 0x8A
)

// connectError carries the status reason of a failed attempt.
type connectError struct {
	reason native.ConnectionStatusReason
	err    error
}

func (e *connectError) Error() string {
	return fmt.Sprintf("%s: %v", e.reason, e.err)
}

func (e *connectError) Unwrap() error {
	return e.err
}

// Attrs names the status reason in retry logs.
func (e *connectError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("reason", e.reason.String())}
}

// maintain connects and reconnects until the client is destroyed or the
// retry policy gives up.
func (c *client) maintain() {
	defer close(c.done)

	for c.live() {
		cfg := c.snapshot()
		policy := retry.FromNative(
			cfg.retryPolicy,
			cfg.retryTimeout,
			c.lib.options.Logger,
		)

		var lost <-chan error
		var last *connectError
		err := policy.Start(c.ctx, "connect", func(
			ctx context.Context,
		) (bool, error) {
			l, err := c.connect(ctx)
			if err != nil {
				last = err
				return retryable(err.reason), err
			}
			lost = l
			return false, nil
		})

		if err != nil {
			if !c.live() {
				return
			}
			reason := native.ReasonRetryExpired
			if last != nil && !retryable(last.reason) {
				reason = last.reason
			}
			c.log.Error(bg, "giving up on connecting",
				slog.String("reason", reason.String()),
				slog.String("error", err.Error()),
			)
			c.reportStatus(native.ConnectionUnauthenticated, reason)
			return
		}

		c.reportStatus(native.ConnectionAuthenticated, native.ReasonConnectionOK)

		select {
		case <-c.ctx.Done():
			c.disconnect()
			return
		case err := <-lost:
			c.conn.Disconnect(c.conn.Current().Attempt, err)
			c.log.Warn(bg, "connection lost", slog.String("error", err.Error()))
			c.reportStatus(
				native.ConnectionUnauthenticated,
				native.ReasonCommunicationError,
			)
		}
	}
}

func retryable(r native.ConnectionStatusReason) bool {
	switch r {
	case native.ReasonBadCredential,
		native.ReasonExpiredSASToken,
		native.ReasonDeviceDisabled:
		return false
	default:
		return true
	}
}

// connect makes one connection attempt. The returned channel yields the
// error that ends the connection.
func (c *client) connect(ctx context.Context) (<-chan error, *connectError) {
	cfg := c.snapshot()
	s := c.settings
	attempt := c.conn.Attempt()

	fail := func(reason native.ConnectionStatusReason, err error) *connectError {
		c.conn.Disconnect(attempt, err)
		c.log.Warn(ctx, "connection attempt failed",
			slog.Uint64("attempt", attempt),
			slog.String("reason", reason.String()),
			slog.String("error", err.Error()),
		)
		return &connectError{reason, err}
	}

	tlsConfig, err := cfg.credentials.tlsConfig(s.host(), s.x509)
	if err != nil {
		return nil, fail(native.ReasonBadCredential, err)
	}
	password, err := s.password(wallclock.Instance.Now(), cfg.sasLifetime)
	if err != nil {
		return nil, fail(native.ReasonBadCredential, err)
	}

	netConn, err := c.lib.options.ConnectionProvider(
		ctx,
		c.protocol,
		s.host(),
		tlsConfig,
	)
	if err != nil {
		return nil, fail(native.ReasonNoNetwork, err)
	}

	lost := make(chan error, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	cli := paho.NewClient(paho.ClientConfig{
		Conn:     netConn,
		ClientID: s.clientID(),
		// Cloud-to-device messages are acknowledged after their disposition.
		EnableManualAcknowledgment: true,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				c.receive(pr.Client, pr.Packet)
				return true, nil
			},
		},
		OnClientError: signal,
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.trace(ctx, cfg, "disconnect received", d)
			signal(fmt.Errorf("server disconnected with reason %#x", d.ReasonCode))
		},
	})

	packet := &paho.Connect{
		ClientID:     s.clientID(),
		KeepAlive:    uint16(cfg.keepAlive.Seconds()),
		CleanStart:   true,
		Username:     s.username(cfg.modelID),
		UsernameFlag: true,
		Password:     password,
		PasswordFlag: len(password) > 0,
	}
	c.trace(ctx, cfg, "sending connect", packet)

	ack, err := cli.Connect(ctx, packet)
	c.trace(ctx, cfg, "connack received", ack)
	if err != nil {
		_ = netConn.Close()
		if ack != nil {
			return nil, fail(c.connackReason(ack.ReasonCode), err)
		}
		return nil, fail(native.ReasonNoNetwork, err)
	}

	sub := &paho.Subscribe{}
	for _, filter := range s.subscriptions() {
		sub.Subscriptions = append(sub.Subscriptions, paho.SubscribeOptions{
			Topic: filter,
			QoS:   1,
		})
	}
	c.trace(ctx, cfg, "sending subscribe", sub)
	suback, err := cli.Subscribe(ctx, sub)
	c.trace(ctx, cfg, "suback received", suback)
	if err != nil {
		_ = cli.Disconnect(&paho.Disconnect{})
		return nil, fail(native.ReasonCommunicationError, err)
	}

	if err := c.conn.Connect(cli); err != nil {
		_ = cli.Disconnect(&paho.Disconnect{})
		return nil, fail(native.ReasonCommunicationError, err)
	}

	c.log.Info(ctx, "connected",
		slog.Uint64("attempt", attempt),
		slog.String("client_id", s.clientID()),
	)
	return lost, nil
}

func (c *client) connackReason(code byte) native.ConnectionStatusReason {
	switch code {
	case connackBadCredentials, connackNotAuthorized:
		// A fixed token cannot be renewed; a rejected one has expired.
		if c.settings.sas != "" {
			return native.ReasonExpiredSASToken
		}
		return native.ReasonBadCredential
	case connackBanned:
		return native.ReasonDeviceDisabled
	default:
		return native.ReasonCommunicationError
	}
}

// disconnect closes the current connection gracefully.
func (c *client) disconnect() {
	current := c.conn.Current()
	if current.Client == nil {
		return
	}
	c.conn.Disconnect(current.Attempt, errors.Context(c.ctx, "client"))
	if err := current.Client.Disconnect(&paho.Disconnect{}); err != nil {
		c.log.Debug(bg, "disconnect failed", slog.String("error", err.Error()))
	}
}

func (c *client) reportStatus(
	s native.ConnectionStatus,
	r native.ConnectionStatusReason,
) {
	c.dispatch(func() {
		cfg := c.snapshot()
		if cfg.status != nil {
			cfg.status(s, r, cfg.statusCtx)
		}
	})
}

func (c *client) trace(ctx context.Context, cfg config, name string, packet any) {
	if cfg.trace {
		c.log.Packet(ctx, name, packet)
	}
}
