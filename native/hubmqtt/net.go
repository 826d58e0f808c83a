// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

const (
	// MQTTPort is the hub's MQTT over TLS port.
	MQTTPort = 8883
	// WebSocketPort is the hub's MQTT over WebSocket port.
	WebSocketPort = 443
	// WebSocketPath is the hub's MQTT over WebSocket endpoint.
	WebSocketPath = "/$iothub/websocket"
)

type (
	// ConnectionProvider opens the network connection for one MQTT
	// session. The returned net.Conn must be safe for concurrent writes.
	ConnectionProvider func(
		ctx context.Context,
		protocol native.Protocol,
		host string,
		config *tls.Config,
	) (net.Conn, error)

	// wsConn adapts a WebSocket to the byte stream MQTT expects.
	wsConn struct {
		*websocket.Conn
		reader io.Reader
		rmu    sync.Mutex
		wmu    sync.Mutex
	}
)

// DefaultConnection dials the hub over TLS or WebSocket according to
// protocol.
func DefaultConnection(
	ctx context.Context,
	protocol native.Protocol,
	host string,
	config *tls.Config,
) (net.Conn, error) {
	switch protocol {
	case native.MQTT:
		return TLSConnection(ctx, host, MQTTPort, config)
	case native.MQTTWebSocket:
		return WebSocketConnection(ctx, host, WebSocketPort, config)
	default:
		return nil, &errors.Error{
			Message:       "unsupported protocol",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "protocol",
			PropertyValue: protocol,
		}
	}
}

// TCPConnection returns a provider that dials a plain TCP address. It is
// meant for local brokers and tests.
func TCPConnection(address string) ConnectionProvider {
	return func(
		ctx context.Context,
		_ native.Protocol,
		_ string,
		_ *tls.Config,
	) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, errors.Normalize(err, "TCP connection")
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// TLSConnection dials host:port with TLS.
func TLSConnection(
	ctx context.Context,
	host string,
	port int,
	config *tls.Config,
) (net.Conn, error) {
	d := tls.Dialer{Config: config}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, errors.Normalize(err, "TLS connection")
	}
	return packets.NewThreadSafeConn(conn), nil
}

// WebSocketConnection dials the hub's MQTT WebSocket endpoint.
func WebSocketConnection(
	ctx context.Context,
	host string,
	port int,
	config *tls.Config,
) (net.Conn, error) {
	d := websocket.Dialer{
		TLSClientConfig:  config,
		Subprotocols:     []string{"mqtt"},
		HandshakeTimeout: 30 * time.Second,
	}
	u := url.URL{
		Scheme: "wss",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   WebSocketPath,
	}
	ws, res, err := d.DialContext(ctx, u.String(), nil)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		return nil, errors.Normalize(err, "WebSocket connection")
	}
	return &wsConn{Conn: ws}, nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
