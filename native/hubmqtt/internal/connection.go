// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"iter"
	"sync"
)

type (
	// Connection tracks the MQTT client of the current network connection,
	// so operations can wait for the link to come up and retry on the next
	// one when it drops.
	Connection[Client comparable] struct {
		current Current[Client]
		mu      sync.RWMutex
	}

	// Current is a snapshot of the connection state.
	Current[Client comparable] struct {
		// Client is the connected client, or the zero value while down.
		Client Client

		// Error is what ended the last connection, if anything.
		Error error

		// Attempt counts connection attempts, successful or not.
		Attempt uint64

		// Down is closed when the connection is lost.
		Down *Background

		up chan struct{}
	}

	// Background is a long-running process that contexts can be tied to.
	Background struct {
		err   error
		done  chan struct{}
		close func()
	}
)

// NewConnection returns a tracker in the disconnected state.
func NewConnection[Client comparable]() *Connection[Client] {
	c := &Connection[Client]{}
	c.current.up = make(chan struct{})
	c.current.Down = NewBackground(context.Canceled)
	// Down is closed exactly while disconnected.
	c.current.Down.Close()
	return c
}

// Attempt starts a new connection attempt and returns its number.
func (c *Connection[Client]) Attempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.Error = nil
	c.current.Attempt++
	return c.current.Attempt
}

// Connect publishes the client of a successful attempt. It fails with the
// recorded error if the attempt already broke.
func (c *Connection[Client]) Connect(client Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Error != nil {
		return c.current.Error
	}

	c.current.Client = client
	close(c.current.up)
	c.current.Down = NewBackground(context.Canceled)
	return nil
}

// Disconnect records the loss of the given attempt's connection. Stale
// attempts are ignored.
func (c *Connection[Client]) Disconnect(attempt uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Attempt != attempt {
		return
	}
	if c.current.Error == nil {
		c.current.Error = err
	}

	var zero Client
	if c.current.Client == zero {
		return
	}

	c.current.Client = zero
	c.current.up = make(chan struct{})
	c.current.Down.Close()
}

// Current returns the connection state.
func (c *Connection[Client]) Current() Current[Client] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Client yields the connected client each time the connection comes up,
// with a context that ends when it goes down. The caller breaks out once
// its operation completes; the sequence itself only ends with ctx.
func (c *Connection[Client]) Client(
	ctx context.Context,
) iter.Seq2[context.Context, Client] {
	return func(yield func(context.Context, Client) bool) {
		for {
			current := c.Current()

			var zero Client
			if current.Client == zero {
				select {
				case <-ctx.Done():
					return
				case <-current.up:
					continue
				}
			}

			if !func() bool {
				ctx, cancel := current.Down.With(ctx)
				defer cancel()
				return yield(ctx, current.Client)
			}() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-current.Down.Done():
			}
		}
	}
}

// NewBackground returns a running background process. Contexts tied to it
// are cancelled with err once it is closed.
func NewBackground(err error) *Background {
	done := make(chan struct{})
	return &Background{err, done, sync.OnceFunc(func() { close(done) })}
}

// With ties ctx to the background process.
func (b *Background) With(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-b.done:
			cancel(b.err)
		case <-c.Done():
		}
	}()
	return c, func() { cancel(context.Canceled) }
}

// Close stops the background process. It is safe to call more than once.
func (b *Background) Close() {
	b.close()
}

// Done is closed once the background process stops.
func (b *Background) Done() <-chan struct{} {
	return b.done
}
