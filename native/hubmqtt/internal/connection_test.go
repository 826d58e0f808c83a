// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct{ id int }

func TestConnectionWaitsForClient(t *testing.T) {
	conn := NewConnection[*fakeClient]()
	require.Nil(t, conn.Current().Client)

	yielded := make(chan struct{})
	got := make(chan int, 2)
	go func() {
		for ctx, cli := range conn.Client(context.Background()) {
			if cli.id == 1 {
				// Simulate the operation being cut off by a disconnect.
				close(yielded)
				<-ctx.Done()
				got <- cli.id
				continue
			}
			got <- cli.id
			return
		}
	}()

	first := &fakeClient{1}
	attempt := conn.Attempt()
	require.NoError(t, conn.Connect(first))
	wait(t, yielded)
	conn.Disconnect(attempt, errors.New("lost"))
	require.Equal(t, 1, receive(t, got))

	attempt = conn.Attempt()
	require.NoError(t, conn.Connect(&fakeClient{2}))
	require.Equal(t, 2, receive(t, got))

	// Disconnects from stale attempts are ignored.
	conn.Disconnect(attempt-1, errors.New("stale"))
	require.NotNil(t, conn.Current().Client)
}

func wait(t *testing.T, ch <-chan struct{}) {
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out")
	}
}

func receive(t *testing.T, ch <-chan int) int {
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out")
		return 0
	}
}

func TestConnectionFailedAttempt(t *testing.T) {
	conn := NewConnection[*fakeClient]()
	attempt := conn.Attempt()

	err := errors.New("refused")
	conn.Disconnect(attempt, err)
	require.ErrorIs(t, conn.Connect(&fakeClient{1}), err)
	require.Nil(t, conn.Current().Client)
}

func TestConnectionClientEndsWithContext(t *testing.T) {
	conn := NewConnection[*fakeClient]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	for range conn.Client(ctx) {
		require.Fail(t, "no client should be yielded")
	}
	require.Error(t, ctx.Err())
}
