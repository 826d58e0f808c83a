// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dispatch_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/Azure/iothub-client-go/dispatch"
	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
	"github.com/Azure/iothub-client-go/native/nativetest"
	"github.com/stretchr/testify/require"
)

func newRegistry(
	t *testing.T,
	opt ...dispatch.RegistryOption,
) (*dispatch.Registry, *nativetest.Messages) {
	msgs := nativetest.NewMessages()
	r, err := dispatch.New(msgs, opt...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, msgs
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status native.ConnectionStatus
		reason native.ConnectionStatusReason
		want   dispatch.ConnectionStatus
	}{
		{native.ConnectionAuthenticated, native.ReasonConnectionOK, dispatch.Authenticated{}},
		{native.ConnectionUnauthenticated, native.ReasonExpiredSASToken, dispatch.Unauthenticated{dispatch.ExpiredSASToken}},
		{native.ConnectionUnauthenticated, native.ReasonDeviceDisabled, dispatch.Unauthenticated{dispatch.DeviceDisabled}},
		{native.ConnectionUnauthenticated, native.ReasonBadCredential, dispatch.Unauthenticated{dispatch.BadCredential}},
		{native.ConnectionUnauthenticated, native.ReasonRetryExpired, dispatch.Unauthenticated{dispatch.RetryExpired}},
		{native.ConnectionUnauthenticated, native.ReasonNoNetwork, dispatch.Unauthenticated{dispatch.NoNetwork}},
		{native.ConnectionUnauthenticated, native.ReasonCommunicationError, dispatch.Unauthenticated{dispatch.CommunicationError}},
		{native.ConnectionUnauthenticated, native.ReasonNoPingResponse, dispatch.Unauthenticated{dispatch.Unknown}},
		{native.ConnectionUnauthenticated, 99, dispatch.Unauthenticated{dispatch.Unknown}},
		{7, native.ReasonNoNetwork, dispatch.Unauthenticated{dispatch.NoNetwork}},
	}
	for _, c := range cases {
		require.Equal(t, c.want, dispatch.StatusFrom(c.status, c.reason))
	}
}

func TestConnectionStatusDelivered(t *testing.T) {
	r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveConnectionStatus))
	require.Nil(t, r.TwinDesired())

	dispatch.OnConnectionStatus(
		native.ConnectionUnauthenticated,
		native.ReasonExpiredSASToken,
		r.Context(),
	)
	require.Equal(t,
		dispatch.Unauthenticated{dispatch.ExpiredSASToken},
		<-r.ConnectionStatus(),
	)
}

func TestTwinUpdateStateFrom(t *testing.T) {
	s, err := dispatch.TwinUpdateStateFrom(native.TwinUpdateComplete)
	require.NoError(t, err)
	require.Equal(t, dispatch.TwinComplete, s)

	s, err = dispatch.TwinUpdateStateFrom(native.TwinUpdatePartial)
	require.NoError(t, err)
	require.Equal(t, dispatch.TwinPartial, s)

	_, err = dispatch.TwinUpdateStateFrom(2)
	require.True(t, errors.Is(err, errors.PayloadInvalid))
}

func TestTwinDecoding(t *testing.T) {
	r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveTwin))
	ctx := r.Context()

	dispatch.OnTwin(native.TwinUpdatePartial, []byte(`{"a":1,"$version":2}`), ctx)
	require.Equal(t, dispatch.TwinUpdate{
		State:   dispatch.TwinPartial,
		Desired: map[string]any{"a": float64(1), "$version": float64(2)},
	}, <-r.TwinDesired())

	// Each of these is dropped.
	dispatch.OnTwin(5, []byte(`{}`), ctx)
	dispatch.OnTwin(native.TwinUpdateComplete, []byte{0xff, 0xfe}, ctx)
	dispatch.OnTwin(native.TwinUpdateComplete, []byte(`{"a":`), ctx)
	require.Empty(t, r.TwinDesired())

	dispatch.OnTwin(native.TwinUpdateComplete, []byte(`{"desired":{}}`), ctx)
	require.Equal(t, dispatch.TwinComplete, (<-r.TwinDesired()).State)
}

func TestIncomingMessageContent(t *testing.T) {
	r, msgs := newRegistry(t,
		dispatch.WithObservers(dispatch.ObserveMessages),
		dispatch.WithIncomingMessageProperties("k1", "missing"),
	)
	h := msgs.Add(&nativetest.Message{
		Body:       []byte("hello"),
		MessageID:  nativetest.Ptr("c2d-1"),
		Properties: map[string]string{"k1": "v1", "k2": "v2"},
	})

	res := make(chan native.DispositionResult)
	go func() { res <- dispatch.OnMessage(h, r.Context()) }()

	in := <-r.IncomingMessages()
	require.Equal(t, []byte("hello"), in.Body)
	require.Equal(t, "c2d-1", in.ID())
	require.Equal(t, map[string]string{"k1": "v1"}, in.Properties)

	require.NoError(t, in.Dispose(dispatch.Abandoned))
	require.Equal(t, native.DispositionAbandoned, <-res)
	require.True(t, errors.Is(in.Dispose(dispatch.Accepted), errors.StateInvalid))
}

func TestIncomingMessageFailSafe(t *testing.T) {
	t.Run("no observer", func(t *testing.T) {
		r, msgs := newRegistry(t)
		h := msgs.Add(&nativetest.Message{Body: []byte("x")})
		require.Equal(t, native.DispositionRejected, dispatch.OnMessage(h, r.Context()))
	})

	t.Run("decode failure", func(t *testing.T) {
		r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMessages))
		require.Equal(t, native.DispositionRejected, dispatch.OnMessage(0, r.Context()))
		require.Empty(t, r.IncomingMessages())
	})

	t.Run("observer failure", func(t *testing.T) {
		r, msgs := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMessages))
		h := msgs.Add(&nativetest.Message{Body: []byte("x")})
		go func() {
			in := <-r.IncomingMessages()
			_ = in.Fail(fmt.Errorf("cannot handle"))
		}()
		require.Equal(t, native.DispositionRejected, dispatch.OnMessage(h, r.Context()))
	})

	t.Run("unknown disposition", func(t *testing.T) {
		r, msgs := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMessages))
		h := msgs.Add(&nativetest.Message{Body: []byte("x")})
		go func() {
			in := <-r.IncomingMessages()
			_ = in.Dispose(dispatch.Disposition(42))
		}()
		require.Equal(t, native.DispositionRejected, dispatch.OnMessage(h, r.Context()))
	})

	t.Run("closed while waiting", func(t *testing.T) {
		r, msgs := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMessages))
		h := msgs.Add(&nativetest.Message{Body: []byte("x")})

		res := make(chan native.DispositionResult)
		go func() { res <- dispatch.OnMessage(h, r.Context()) }()

		<-r.IncomingMessages()
		r.Close()
		require.Equal(t, native.DispositionRejected, <-res)
	})

	t.Run("unknown context", func(t *testing.T) {
		require.Equal(t, native.DispositionRejected, dispatch.OnMessage(1, 0))
	})
}

func TestBackpressureDrop(t *testing.T) {
	r, _ := newRegistry(t,
		dispatch.WithObservers(dispatch.ObserveConnectionStatus),
		dispatch.WithCapacity(1),
		dispatch.WithBackpressure(dispatch.Drop),
	)

	for range 3 {
		dispatch.OnConnectionStatus(
			native.ConnectionAuthenticated,
			native.ReasonConnectionOK,
			r.Context(),
		)
	}
	require.Len(t, r.ConnectionStatus(), 1)
	require.Equal(t, uint64(2), r.Dropped())
}

func TestBackpressureBlock(t *testing.T) {
	r, _ := newRegistry(t,
		dispatch.WithObservers(dispatch.ObserveConnectionStatus),
		dispatch.WithCapacity(1),
	)

	fire := func() <-chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			dispatch.OnConnectionStatus(
				native.ConnectionAuthenticated,
				native.ReasonConnectionOK,
				r.Context(),
			)
		}()
		return done
	}

	<-fire()
	blocked := fire()

	select {
	case <-blocked:
		require.FailNow(t, "callback did not block on a full observer")
	case <-time.After(50 * time.Millisecond):
	}

	<-r.ConnectionStatus()
	<-blocked
	require.Len(t, r.ConnectionStatus(), 1)
	require.Zero(t, r.Dropped())

	// Close releases a blocked callback.
	blocked = fire()
	r.Close()
	<-blocked
}

func TestDirectMethod(t *testing.T) {
	r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMethods))

	answer := func(res dispatch.MethodResult) {
		go func() {
			req := <-r.DirectMethods()
			_ = req.Respond(res)
		}()
	}

	answer(dispatch.MethodResult{})
	status, body := dispatch.OnMethod([]byte("reboot"), []byte(`{"delay":1}`), r.Context())
	require.Equal(t, 200, status)
	require.Equal(t, "{ }", string(body))

	answer(dispatch.MethodResult{Payload: map[string]int{"ok": 1}})
	status, body = dispatch.OnMethod([]byte("reboot"), []byte(`null`), r.Context())
	require.Equal(t, 200, status)
	require.JSONEq(t, `{"ok":1}`, string(body))

	answer(dispatch.MethodResult{Err: fmt.Errorf("boom")})
	status, body = dispatch.OnMethod([]byte("reboot"), []byte(`{}`), r.Context())
	require.Equal(t, 401, status)
	require.Equal(t, `"boom"`, string(body))
}

func TestDirectMethodRequest(t *testing.T) {
	r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMethods))

	type call struct {
		status int
		body   []byte
	}
	res := make(chan call)
	go func() {
		s, b := dispatch.OnMethod([]byte("set"), []byte(`{"v":[1,2]}`), r.Context())
		res <- call{s, b}
	}()

	req := <-r.DirectMethods()
	require.Equal(t, "set", req.Name)
	require.Equal(t, map[string]any{"v": []any{float64(1), float64(2)}}, req.Payload)
	require.NoError(t, req.Respond(dispatch.MethodResult{Payload: "done"}))
	require.Error(t, req.Respond(dispatch.MethodResult{}))

	c := <-res
	require.Equal(t, 200, c.status)
	require.Equal(t, `"done"`, string(c.body))
}

func TestDirectMethodFailSafe(t *testing.T) {
	none, _ := newRegistry(t)
	status, body := dispatch.OnMethod([]byte("m"), []byte(`{}`), none.Context())
	require.Equal(t, 401, status)
	require.Equal(t, `"not implemented"`, string(body))

	r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveMethods))

	status, _ = dispatch.OnMethod([]byte{0xff}, []byte(`{}`), r.Context())
	require.Equal(t, 401, status)

	status, _ = dispatch.OnMethod([]byte("m"), []byte(`{"a"`), r.Context())
	require.Equal(t, 401, status)
	require.Empty(t, r.DirectMethods())

	for _, empty := range [][]byte{nil, {}} {
		status, body = dispatch.OnMethod([]byte("m"), empty, r.Context())
		require.Equal(t, 401, status)
		require.Contains(t, string(body), "not valid JSON")
		require.Empty(t, r.DirectMethods())
	}

	status, _ = dispatch.OnMethod([]byte("m"), []byte(`{}`), 0)
	require.Equal(t, 401, status)

	type call struct {
		status int
		body   []byte
	}
	res := make(chan call)
	go func() {
		s, b := dispatch.OnMethod([]byte("m"), []byte(`{}`), r.Context())
		res <- call{s, b}
	}()
	<-r.DirectMethods()
	r.Close()
	c := <-res
	require.Equal(t, 401, c.status)
}

func TestClose(t *testing.T) {
	r, _ := newRegistry(t, dispatch.WithObservers(dispatch.ObserveAll))
	ctx := r.Context()
	r.Close()
	r.Close()

	_, ok := <-r.ConnectionStatus()
	require.False(t, ok)
	_, ok = <-r.TwinDesired()
	require.False(t, ok)
	_, ok = <-r.DirectMethods()
	require.False(t, ok)
	_, ok = <-r.IncomingMessages()
	require.False(t, ok)

	// Callbacks after close get their defaults and do not panic.
	dispatch.OnConnectionStatus(native.ConnectionAuthenticated, native.ReasonConnectionOK, ctx)
	dispatch.OnTwin(native.TwinUpdateComplete, []byte(`{}`), ctx)
	status, _ := dispatch.OnMethod([]byte("m"), nil, ctx)
	require.Equal(t, 401, status)
}

func TestInvalidOptions(t *testing.T) {
	msgs := nativetest.NewMessages()

	_, err := dispatch.New(msgs, dispatch.WithCapacity(-1))
	require.True(t, errors.Is(err, errors.ConfigurationInvalid))

	_, err = dispatch.New(msgs, dispatch.WithBackpressure(9))
	require.True(t, errors.Is(err, errors.ConfigurationInvalid))

	_, err = dispatch.New(msgs, dispatch.WithIncomingMessageProperties("a\x00"))
	require.True(t, errors.Is(err, errors.ConfigurationInvalid))
}
