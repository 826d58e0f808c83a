// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt_test

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/native/hubmqtt"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

const wait = 5 * time.Second

var key = base64.StdEncoding.EncodeToString([]byte("device key"))

type published struct {
	topic   string
	payload []byte
}

func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startHub runs an embedded broker standing in for the hub.
func startHub(t *testing.T) (*mochi.Server, string) {
	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	addr := freeAddress(t)
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "hub",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return server, addr
}

// capture records publishes on a filter.
func capture(t *testing.T, server *mochi.Server, filter string, id int) <-chan published {
	ch := make(chan published, 10)
	require.NoError(t, server.Subscribe(filter, id, func(
		_ *mochi.Client,
		_ packets.Subscription,
		pk packets.Packet,
	) {
		ch <- published{pk.TopicName, append([]byte(nil), pk.Payload...)}
	}))
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(wait):
		require.FailNow(t, "timed out")
		var zero T
		return zero
	}
}

func connectDevice(
	t *testing.T,
	lib *hubmqtt.Library,
) (native.ClientHandle, <-chan native.ConnectionStatusReason) {
	require.Zero(t, lib.Init())

	h := lib.Device().CreateFromConnectionString(
		"HostName=hub.example;DeviceId=d1;SharedAccessKey="+key,
		native.MQTT,
	)
	require.NotZero(t, h)
	t.Cleanup(func() { lib.Device().Destroy(h) })

	statuses := make(chan native.ConnectionStatusReason, 10)
	require.Equal(t, native.ClientOK, lib.Device().SetOption(
		h, native.OptionDoWorkFrequency, uint64(1),
	))
	require.Equal(t, native.ClientOK, lib.Device().SetConnectionStatusCallback(
		h,
		func(s native.ConnectionStatus, r native.ConnectionStatusReason, _ native.Context) {
			statuses <- r
		},
		0,
	))
	return h, statuses
}

func TestDeviceRoundTrips(t *testing.T) {
	server, addr := startHub(t)
	events := capture(t, server, "devices/d1/messages/events/#", 1)
	methodResponses := capture(t, server, "$iothub/methods/res/#", 2)

	respond := func(filter string, id int, status int, body string) {
		require.NoError(t, server.Subscribe(filter, id, func(
			_ *mochi.Client,
			_ packets.Subscription,
			pk packets.Packet,
		) {
			_, rid, _ := strings.Cut(pk.TopicName, "$rid=")
			go func() {
				_ = server.Publish(
					fmt.Sprintf("$iothub/twin/res/%d/?$rid=%s&$version=2", status, rid),
					[]byte(body),
					false,
					1,
				)
			}()
		}))
	}
	respond("$iothub/twin/GET/#", 3, 200, `{"desired":{"a":1}}`)
	respond("$iothub/twin/PATCH/properties/reported/#", 4, 204, "")

	lib := hubmqtt.New(
		hubmqtt.WithConnectionProvider(hubmqtt.TCPConnection(addr)),
	)
	dev := lib.Device()
	h, statuses := connectDevice(t, lib)

	twins := make(chan native.TwinUpdateState, 10)
	payloads := make(chan []byte, 10)
	require.Equal(t, native.ClientOK, dev.SetDeviceTwinCallback(h,
		func(s native.TwinUpdateState, payload []byte, _ native.Context) {
			twins <- s
			payloads <- payload
		}, 0,
	))

	type inbound struct {
		body  string
		id    string
		props string
	}
	messages := make(chan inbound, 10)
	msgs := lib.Messages()
	require.Equal(t, native.ClientOK, dev.SetMessageCallback(h,
		func(m native.MessageHandle, _ native.Context) native.DispositionResult {
			body, _ := msgs.GetByteArray(m)
			id, _ := msgs.GetMessageID(m)
			k, _ := msgs.GetProperty(m, "k")
			messages <- inbound{string(body), id, k}
			return native.DispositionAccepted
		}, 0,
	))

	require.Equal(t, native.ClientOK, dev.SetDeviceMethodCallback(h,
		func(name, payload []byte, _ native.Context) (int, []byte) {
			return 200, []byte(`{"method":"` + string(name) + `"}`)
		}, 0,
	))

	require.Equal(t, native.ReasonConnectionOK, receive(t, statuses))

	t.Run("telemetry", func(t *testing.T) {
		m := msgs.CreateFromByteArray([]byte(`{"t":1}`))
		require.Equal(t, native.MessageOK, msgs.SetMessageID(m, "m1"))
		require.Equal(t, native.MessageOK, msgs.SetProperty(m, "k", "v"))

		confirmations := make(chan native.ConfirmationResult, 1)
		require.Equal(t, native.ClientOK, dev.SendEventAsync(h, m,
			func(r native.ConfirmationResult, _ native.Context) {
				confirmations <- r
			}, 0,
		))
		msgs.Destroy(m)

		require.Equal(t, native.ConfirmationOK, receive(t, confirmations))
		got := receive(t, events)
		require.Equal(t, "devices/d1/messages/events/%24.mid=m1&k=v", got.topic)
		require.Equal(t, `{"t":1}`, string(got.payload))
	})

	t.Run("twin", func(t *testing.T) {
		require.Equal(t, native.ClientOK, dev.GetTwinAsync(h,
			func(s native.TwinUpdateState, payload []byte, _ native.Context) {
				twins <- s
				payloads <- payload
			}, 0,
		))
		require.Equal(t, native.TwinUpdateComplete, receive(t, twins))
		require.JSONEq(t, `{"desired":{"a":1}}`, string(receive(t, payloads)))

		reported := make(chan int, 1)
		require.Equal(t, native.ClientOK, dev.SendReportedState(h,
			[]byte(`{"b":2}`),
			func(status int, _ native.Context) { reported <- status },
			0,
		))
		require.Equal(t, 204, receive(t, reported))

		require.NoError(t, server.Publish(
			"$iothub/twin/PATCH/properties/desired/?$version=3",
			[]byte(`{"a":2}`),
			false,
			1,
		))
		require.Equal(t, native.TwinUpdatePartial, receive(t, twins))
		require.JSONEq(t, `{"a":2}`, string(receive(t, payloads)))
	})

	t.Run("method", func(t *testing.T) {
		require.NoError(t, server.Publish(
			"$iothub/methods/POST/reboot/?$rid=42",
			[]byte(`{}`),
			false,
			1,
		))
		got := receive(t, methodResponses)
		require.Equal(t, "$iothub/methods/res/200/?$rid=42", got.topic)
		require.JSONEq(t, `{"method":"reboot"}`, string(got.payload))
	})

	t.Run("cloud to device", func(t *testing.T) {
		require.NoError(t, server.Publish(
			"devices/d1/messages/devicebound/%24.mid=c1&k=v",
			[]byte("hello"),
			false,
			1,
		))
		require.Equal(t, inbound{"hello", "c1", "v"}, receive(t, messages))
	})
}

func TestEveryDispositionCompletesMessage(t *testing.T) {
	server, addr := startHub(t)

	lib := hubmqtt.New(
		hubmqtt.WithConnectionProvider(hubmqtt.TCPConnection(addr)),
	)
	dev := lib.Device()
	h, statuses := connectDevice(t, lib)

	dispositions := map[string]native.DispositionResult{
		"c1": native.DispositionAbandoned,
		"c2": native.DispositionAccepted,
		"c3": native.DispositionAsyncAck,
		"c4": native.DispositionAccepted,
	}
	ids := make(chan string, len(dispositions))
	msgs := lib.Messages()
	require.Equal(t, native.ClientOK, dev.SetMessageCallback(h,
		func(m native.MessageHandle, _ native.Context) native.DispositionResult {
			id, _ := msgs.GetMessageID(m)
			ids <- id
			return dispositions[id]
		}, 0,
	))
	require.Equal(t, native.ReasonConnectionOK, receive(t, statuses))

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		require.NoError(t, server.Publish(
			"devices/d1/messages/devicebound/%24.mid="+id,
			[]byte(id),
			false,
			1,
		))
	}
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		require.Equal(t, id, receive(t, ids))
	}

	// Nothing stays unacknowledged behind the abandoned message.
	require.Eventually(t, func() bool {
		cl, ok := server.Clients.Get("d1")
		return ok && cl.State.Inflight.Len() == 0
	}, wait, 10*time.Millisecond)
}

func TestModuleOutput(t *testing.T) {
	server, addr := startHub(t)
	events := capture(t, server, "devices/d1/modules/m1/messages/events/#", 1)

	lib := hubmqtt.New(
		hubmqtt.WithConnectionProvider(hubmqtt.TCPConnection(addr)),
	)
	mod := lib.Module()
	h := mod.CreateFromConnectionString(
		"HostName=hub.example;DeviceId=d1;ModuleId=m1;SharedAccessKey="+key,
		native.MQTT,
	)
	require.NotZero(t, h)
	defer mod.Destroy(h)

	inputs := make(chan string, 1)
	msgs := lib.Messages()
	require.Equal(t, native.ClientOK, mod.SetInputMessageCallback(h, "in1",
		func(m native.MessageHandle, _ native.Context) native.DispositionResult {
			input, _ := msgs.GetInputName(m)
			inputs <- input
			return native.DispositionAccepted
		}, 0,
	))

	m := msgs.CreateFromByteArray([]byte("x"))
	confirmations := make(chan native.ConfirmationResult, 1)
	require.Equal(t, native.ClientOK, mod.SendEventToOutputAsync(h, m, "out1",
		func(r native.ConfirmationResult, _ native.Context) {
			confirmations <- r
		}, 0,
	))
	msgs.Destroy(m)

	require.Equal(t, native.ConfirmationOK, receive(t, confirmations))
	require.Equal(t,
		"devices/d1/modules/m1/messages/events/%24.on=out1",
		receive(t, events).topic,
	)

	require.NoError(t, server.Publish(
		"devices/d1/modules/m1/inputs/in1/k=v",
		[]byte("y"),
		false,
		1,
	))
	require.Equal(t, "in1", receive(t, inputs))
}

func unreachable(
	context.Context,
	native.Protocol,
	string,
	*tls.Config,
) (net.Conn, error) {
	return nil, fmt.Errorf("network unreachable")
}

func TestRetryExpired(t *testing.T) {
	lib := hubmqtt.New(hubmqtt.WithConnectionProvider(unreachable))
	h := lib.Device().CreateFromConnectionString(
		"HostName=hub.example;DeviceId=d1;SharedAccessKey="+key,
		native.MQTT,
	)
	require.NotZero(t, h)
	defer lib.Device().Destroy(h)

	require.Equal(t, native.ClientOK, lib.Device().SetRetryPolicy(h, native.RetryNone, 0))

	statuses := make(chan native.ConnectionStatusReason, 1)
	require.Equal(t, native.ClientOK, lib.Device().SetConnectionStatusCallback(h,
		func(s native.ConnectionStatus, r native.ConnectionStatusReason, _ native.Context) {
			if s == native.ConnectionUnauthenticated {
				statuses <- r
			}
		}, 0,
	))
	require.Equal(t, native.ReasonRetryExpired, receive(t, statuses))
}

func TestPendingSends(t *testing.T) {
	lib := hubmqtt.New(hubmqtt.WithConnectionProvider(unreachable))
	dev := lib.Device()
	msgs := lib.Messages()

	h := dev.CreateFromConnectionString(
		"HostName=hub.example;DeviceId=d1;SharedAccessKey="+key,
		native.MQTT,
	)
	require.NotZero(t, h)
	require.Equal(t, native.ClientOK,
		dev.SetOption(h, native.OptionMessageTimeout, uint64(50)),
	)

	send := func() <-chan native.ConfirmationResult {
		ch := make(chan native.ConfirmationResult, 1)
		m := msgs.CreateFromByteArray([]byte("x"))
		defer msgs.Destroy(m)
		require.Equal(t, native.ClientOK, dev.SendEventAsync(h, m,
			func(r native.ConfirmationResult, _ native.Context) { ch <- r },
			0,
		))
		return ch
	}

	require.Equal(t, native.ConfirmationMessageTimeout, receive(t, send()))

	require.Equal(t, native.ClientOK,
		dev.SetOption(h, native.OptionMessageTimeout, uint64(0)),
	)
	pending := send()
	dev.Destroy(h)

	// Destroy delivers outstanding confirmations before it returns.
	select {
	case r := <-pending:
		require.Equal(t, native.ConfirmationBecauseDestroy, r)
	default:
		require.Fail(t, "no confirmation after destroy")
	}

	m := msgs.CreateFromByteArray(nil)
	defer msgs.Destroy(m)
	require.Equal(t, native.ClientInvalidArg, dev.SendEventAsync(h, m, nil, 0))
}

func TestInvalidCreation(t *testing.T) {
	lib := hubmqtt.New()
	require.Zero(t, lib.Device().CreateFromConnectionString("HostName=h", native.MQTT))
	require.Zero(t, lib.Module().CreateFromConnectionString(
		"HostName=h;DeviceId=d;SharedAccessKey="+key,
		native.MQTT,
	))
	require.Equal(t, hubmqtt.Version, lib.VersionString())
	require.Same(t, hubmqtt.Default(), hubmqtt.Default())
}

func TestInvalidOptions(t *testing.T) {
	lib := hubmqtt.New(hubmqtt.WithConnectionProvider(unreachable))
	dev := lib.Device()
	h := dev.CreateFromConnectionString(
		"HostName=h;DeviceId=d;SharedAccessKey="+key,
		native.MQTT,
	)
	require.NotZero(t, h)
	defer dev.Destroy(h)

	require.Equal(t, native.ClientInvalidArg, dev.SetOption(h, "unknown", 1))
	require.Equal(t, native.ClientInvalidArg, dev.SetOption(h, native.OptionLogTrace, "yes"))
	require.Equal(t, native.ClientInvalidArg, dev.SetOption(h, native.OptionMessageTimeout, -1))
	require.Equal(t, native.ClientOK, dev.SetOption(h, native.OptionModelID, "dtmi:x;1"))
	require.Equal(t, native.ClientOK, dev.SetOption(h, hubmqtt.OptionSASTokenLifetime, 600))
	require.Equal(t, native.ClientInvalidArg, dev.SetRetryPolicy(h, native.RetryPolicy(99), 0))
}
