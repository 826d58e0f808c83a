// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Azure/iothub-client-go/confirm"
	"github.com/Azure/iothub-client-go/dispatch"
	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/identity"
	"github.com/Azure/iothub-client-go/iothub"
	"github.com/Azure/iothub-client-go/message"
	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/native/nativetest"
	"github.com/stretchr/testify/require"
)

const connStr = "HostName=h.azure-devices.net;DeviceId=d;SharedAccessKey=a2V5"

type results struct {
	got []confirm.Result
	mu  sync.Mutex
}

func (r *results) handle(res confirm.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, res)
}

func (r *results) all() []confirm.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]confirm.Result(nil), r.got...)
}

type provider struct {
	connStr string
	expiry  time.Time
	err     error
}

func (p *provider) RequestConnectionString(
	_ context.Context,
	expiry time.Time,
) (*identity.ConnectionInfo, error) {
	p.expiry = expiry
	if p.err != nil {
		return nil, p.err
	}
	return &identity.ConnectionInfo{
		ConnectionString: p.connStr,
		Expiry:           expiry,
	}, nil
}

func newModule(
	t *testing.T,
	opt ...iothub.ClientOption,
) (*iothub.Client, *nativetest.Library) {
	lib := nativetest.New()
	c, err := iothub.NewFromConnectionString(
		iothub.Module,
		connStr,
		append([]iothub.ClientOption{iothub.WithLibrary(lib)}, opt...)...,
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, lib
}

func TestSendD2CMessage(t *testing.T) {
	var res results
	c, lib := newModule(t, iothub.WithConfirmationHandler(res.handle))

	msg, err := message.New().Body([]byte(`{"t":1}`)).ID("m1").Build()
	require.NoError(t, err)
	require.NoError(t, c.SendD2CMessage(msg))

	// The native SDK owns a copy; the caller's handle is released.
	require.Zero(t, msg.Handle())
	require.Zero(t, lib.Msgs().Live())

	events := lib.Last().Events()
	require.Len(t, events, 1)
	require.Equal(t, "output", events[0].Output)
	require.Equal(t, []byte(`{"t":1}`), events[0].Message.Body)
	require.Equal(t, "m1", *events[0].Message.MessageID)

	events[0].Confirm(native.ConfirmationOK)

	require.Eventually(t, func() bool {
		return len(res.all()) == 1
	}, time.Second, time.Millisecond)
	got := res.all()[0]
	require.Equal(t, confirm.Telemetry, got.Operation)
	require.Equal(t, "m1", got.TraceID)
	require.Equal(t, confirm.Succeeded, got.Outcome)
	require.Equal(t, uint64(1), c.Stats().Succeeded)
}

func TestSendD2CMessageFailure(t *testing.T) {
	c, lib := newModule(t)
	lib.FailOn("SendEventToOutputAsync")

	msg, err := message.New().Queue("telemetry").Build()
	require.NoError(t, err)

	err = c.SendD2CMessage(msg)
	require.True(t, errors.Is(err, errors.NativeCallFailed))
	require.Zero(t, lib.Msgs().Live())

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Discarded)
	require.Zero(t, stats.InFlight)
}

func TestTwinReport(t *testing.T) {
	for _, status := range []int{204, 200, 500} {
		var res results
		c, lib := newModule(t, iothub.WithConfirmationHandler(res.handle))

		require.NoError(t, c.TwinReport(map[string]int{"temp": 21}))

		reports := lib.Last().Reports()
		require.Len(t, reports, 1)
		require.JSONEq(t, `{"temp":21}`, string(reports[0].Payload))
		reports[0].Confirm(status)

		require.Eventually(t, func() bool {
			return len(res.all()) == 1
		}, time.Second, time.Millisecond)

		want := confirm.Failed
		if status == 204 {
			want = confirm.Succeeded
		}
		require.Equal(t, confirm.ReportedState, res.all()[0].Operation)
		require.Equal(t, want, res.all()[0].Outcome, "status %d", status)
	}
}

func TestTwinReportUnencodable(t *testing.T) {
	c, lib := newModule(t)
	err := c.TwinReport(make(chan int))
	require.True(t, errors.Is(err, errors.PayloadInvalid))
	require.Empty(t, lib.Last().Reports())
}

func TestTwinRequest(t *testing.T) {
	c, lib := newModule(t, iothub.WithObservers(dispatch.ObserveTwin))

	require.NoError(t, c.TwinRequestAsync())
	require.Equal(t, 1, lib.Last().TwinRequests())
	require.NoError(t, lib.Last().CompleteTwinRequest(0, []byte(`{"desired":{}}`)))

	select {
	case u := <-c.TwinDesired():
		require.Equal(t, dispatch.TwinComplete, u.State)
		require.Equal(t, map[string]any{"desired": map[string]any{}}, u.Desired)
	case <-time.After(time.Second):
		require.Fail(t, "no twin update")
	}
}

func TestShutdownIsBounded(t *testing.T) {
	c, lib := newModule(t, iothub.WithConfirmationTimeout(time.Minute))

	for range 3 {
		msg, err := message.New().Build()
		require.NoError(t, err)
		require.NoError(t, c.SendD2CMessage(msg))
	}
	require.Len(t, lib.Last().Events(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	sum := c.Shutdown(ctx)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 3, sum.Pending)
	require.Equal(t, 3, sum.Aborted)

	msg, err := message.New().Build()
	require.NoError(t, err)
	require.True(t, errors.Is(c.SendD2CMessage(msg), errors.StateInvalid))
}

func TestClose(t *testing.T) {
	c, lib := newModule(t, iothub.WithObservers(dispatch.ObserveAll))
	c.Close()
	c.Close()

	require.True(t, lib.Last().Destroyed())
	_, ok := <-c.ConnectionStatus()
	require.False(t, ok)

	msg, err := message.New().Build()
	require.NoError(t, err)
	require.True(t, errors.Is(c.SendD2CMessage(msg), errors.StateInvalid))
	require.True(t, errors.Is(c.TwinReport(1), errors.StateInvalid))
	require.True(t, errors.Is(c.TwinRequestAsync(), errors.StateInvalid))
}

func TestCallbacksAlwaysRegistered(t *testing.T) {
	c, lib := newModule(t)

	status, msg, twin, method := lib.Last().Registered()
	require.True(t, status)
	require.True(t, msg)
	require.True(t, twin)
	require.True(t, method)
	require.Equal(t, "input", lib.Last().Input())

	// Nobody observes, so every event gets its fail-safe answer.
	res, err := lib.Last().Message(&nativetest.Message{Body: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, native.DispositionRejected, res)

	code, _, err := lib.Last().Method([]byte("reboot"), []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, dispatch.MethodError, code)

	require.Nil(t, c.DirectMethods())
	require.Nil(t, c.IncomingMessages())
}

func TestIncomingMessage(t *testing.T) {
	c, lib := newModule(t,
		iothub.WithObservers(dispatch.ObserveMessages),
		iothub.WithIncomingMessageProperties("k"),
		iothub.WithInput("commands"),
	)
	require.Equal(t, "commands", lib.Last().Input())

	go func() {
		m := <-c.IncomingMessages()
		_ = m.Dispose(dispatch.Accepted)
	}()

	res, err := lib.Last().Message(&nativetest.Message{
		Body:       []byte("hi"),
		Properties: map[string]string{"k": "v", "other": "x"},
	})
	require.NoError(t, err)
	require.Equal(t, native.DispositionAccepted, res)
}

func TestOptionForwarding(t *testing.T) {
	_, lib := newModule(t,
		iothub.WithDoWorkFrequency(10*time.Millisecond),
		iothub.WithSDKLogs(true),
		iothub.WithModelID("dtmi:com:example;1"),
		iothub.WithMessageTimeout(2*time.Second),
		iothub.WithRetryPolicy(native.RetryLinearBackoff, 90*time.Second),
		iothub.WithProtocol(native.MQTTWebSocket),
	)
	c := lib.Last()

	require.Equal(t, []string{
		native.OptionDoWorkFrequency,
		native.OptionLogTrace,
		native.OptionModelID,
		native.OptionMessageTimeout,
	}, c.OptionNames())

	v, _ := c.Option(native.OptionDoWorkFrequency)
	require.Equal(t, uint64(10), v)
	v, _ = c.Option(native.OptionLogTrace)
	require.Equal(t, true, v)
	v, _ = c.Option(native.OptionModelID)
	require.Equal(t, "dtmi:com:example;1", v)
	v, _ = c.Option(native.OptionMessageTimeout)
	require.Equal(t, uint64(2000), v)

	policy, timeout := c.RetryPolicy()
	require.Equal(t, native.RetryLinearBackoff, policy)
	require.Equal(t, uint(90), timeout)
	require.Equal(t, native.MQTTWebSocket, c.Protocol)
}

func TestDoWorkFrequencyOutOfRange(t *testing.T) {
	_, lib := newModule(t, iothub.WithDoWorkFrequency(time.Second))
	_, ok := lib.Last().Option(native.OptionDoWorkFrequency)
	require.False(t, ok)
}

func TestInitOnce(t *testing.T) {
	lib := nativetest.New()
	for range 3 {
		c, err := iothub.NewFromConnectionString(
			iothub.Device,
			connStr,
			iothub.WithLibrary(lib),
		)
		require.NoError(t, err)
		c.Close()
	}
	require.Equal(t, 1, lib.Inits())
}

func TestInitFailure(t *testing.T) {
	lib := nativetest.New()
	lib.InitResult = 1

	_, err := iothub.NewFromConnectionString(
		iothub.Device,
		connStr,
		iothub.WithLibrary(lib),
	)
	require.True(t, errors.Is(err, errors.NativeCallFailed))
	require.Nil(t, lib.Last())
}

func TestCreateFailures(t *testing.T) {
	lib := nativetest.New()
	lib.FailOn("CreateFromConnectionString")
	_, err := iothub.NewFromConnectionString(
		iothub.Device,
		connStr,
		iothub.WithLibrary(lib),
	)
	require.True(t, errors.Is(err, errors.NativeCallFailed))

	lib = nativetest.New()
	lib.FailOn("SetDeviceMethodCallback")
	_, err = iothub.NewFromConnectionString(
		iothub.Device,
		connStr,
		iothub.WithLibrary(lib),
	)
	require.True(t, errors.Is(err, errors.NativeCallFailed))
	require.True(t, lib.Last().Destroyed())

	_, err = iothub.NewFromConnectionString(
		iothub.Device,
		"Host\x00Name",
		iothub.WithLibrary(nativetest.New()),
	)
	require.True(t, errors.Is(err, errors.ArgumentInvalid))

	_, err = iothub.NewFromConnectionString(
		iothub.Device,
		connStr,
		iothub.WithLibrary(nativetest.New()),
		iothub.WithCapacity(-1),
	)
	require.True(t, errors.Is(err, errors.ConfigurationInvalid))
}

func TestEdgeEnvironment(t *testing.T) {
	lib := nativetest.New()
	c, err := iothub.NewFromEdgeEnvironment(iothub.WithLibrary(lib))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, iothub.Edge, c.Type())
	require.True(t, lib.Last().FromEnvironment)
	require.True(t, lib.Last().Module)
	require.Equal(t, "1.0.0-test", c.SDKVersion())
}

func TestIdentityService(t *testing.T) {
	lib := nativetest.New()
	p := &provider{connStr: connStr}

	before := time.Now()
	c, err := iothub.NewFromIdentityService(
		context.Background(),
		iothub.Device,
		p,
		iothub.WithLibrary(lib),
	)
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, connStr, lib.Last().ConnStr)
	require.False(t, lib.Last().Module)
	require.WithinDuration(t, before.Add(iothub.IdentityExpiry), p.expiry, time.Minute)

	_, err = iothub.NewFromIdentityService(
		context.Background(),
		iothub.Edge,
		p,
		iothub.WithLibrary(lib),
	)
	require.True(t, errors.Is(err, errors.ArgumentInvalid))

	p.err = &errors.Error{Message: "down", Kind: errors.UnknownError}
	_, err = iothub.NewFromIdentityService(
		context.Background(),
		iothub.Module,
		p,
		iothub.WithLibrary(lib),
	)
	require.Error(t, err)
}

func TestClientType(t *testing.T) {
	require.Equal(t, "device", iothub.Device.String())
	require.Equal(t, "module", iothub.Module.String())
	require.Equal(t, "edge", iothub.Edge.String())
	require.Equal(t, "ClientType(7)", iothub.ClientType(7).String())
}
