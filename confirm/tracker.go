// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package confirm tracks the asynchronous confirmations of outbound
// operations. Each operation gets a single-use token that crosses the native
// boundary as its callback context; the first of the native callback, the
// timeout or shutdown settles it, and late callbacks are ignored.
package confirm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/container"
	"github.com/Azure/iothub-client-go/internal/handle"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/internal/wallclock"
	"github.com/Azure/iothub-client-go/native"
	"github.com/google/uuid"
)

type (
	// Tracker owns the background tasks awaiting confirmations.
	Tracker struct {
		options TrackerOptions
		log     log.Logger

		tasks  *container.SyncMap[handle.Token, *task]
		wg     sync.WaitGroup
		abort  chan struct{}
		closed bool
		mu     sync.RWMutex

		tracked   atomic.Uint64
		succeeded atomic.Uint64
		failed    atomic.Uint64
		timedOut  atomic.Uint64
		aborted   atomic.Uint64
		discarded atomic.Uint64
	}

	// Pending is a tracked operation that has not been handed to a wait task
	// yet. Exactly one of Watch or Discard takes effect.
	Pending struct {
		tracker *Tracker
		waiter  *waiter
		token   handle.Token
		settled atomic.Bool
	}

	waiter struct {
		op      Operation
		traceID string
		start   time.Time
		signal  chan bool
	}

	task struct {
		done chan struct{}
	}
)

// The correlation table outlives every client and tracker, so a callback
// arriving after its client is gone resolves nothing instead of touching
// freed state.
var waiters = handle.NewTable[*waiter]()

// NewTracker creates a confirmation tracker.
func NewTracker(opt ...TrackerOption) (*Tracker, error) {
	t := &Tracker{
		tasks: container.NewSyncMap[handle.Token, *task](),
		abort: make(chan struct{}),
	}
	t.options.Apply(opt)
	if err := t.options.validate(); err != nil {
		return nil, err
	}
	if t.options.Timeout == 0 {
		t.options.Timeout = DefaultTimeout
	}
	if t.options.ShutdownTimeout == 0 {
		t.options.ShutdownTimeout = DefaultShutdownTimeout
	}
	t.log = log.Wrap(t.options.Logger)
	return t, nil
}

// TraceID returns the id used to follow an operation through the logs: the
// message id when there is one, otherwise a random UUID.
func TraceID(messageID string) string {
	if messageID != "" {
		return messageID
	}
	return uuid.NewString()
}

// Track registers a new operation and returns its pending confirmation. The
// pending context must be passed as the native callback context.
func (t *Tracker) Track(op Operation, traceID string) (*Pending, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, &errors.Error{
			Message: "confirmation tracker is shut down",
			Kind:    errors.StateInvalid,
		}
	}

	w := &waiter{
		op:      op,
		traceID: traceID,
		start:   wallclock.Instance.Now(),
		signal:  make(chan bool, 1),
	}
	t.tracked.Add(1)
	return &Pending{tracker: t, waiter: w, token: waiters.Insert(w)}, nil
}

// Context returns the value to register with the native callback.
func (p *Pending) Context() native.Context {
	return native.Context(p.token)
}

// TraceID returns the trace id the operation was tracked with.
func (p *Pending) TraceID() string {
	return p.waiter.traceID
}

// Discard forgets an operation whose native submission failed, so no
// callback will arrive for it.
func (p *Pending) Discard() {
	if !p.settled.CompareAndSwap(false, true) {
		return
	}
	if waiters.Remove(p.token) {
		p.tracker.discarded.Add(1)
	}
}

// Watch starts the background task awaiting the confirmation. Finished tasks
// are reaped first.
func (p *Pending) Watch() {
	if !p.settled.CompareAndSwap(false, true) {
		return
	}
	t := p.tracker
	t.reap()

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.finish(p.waiter, t.expire(p, Aborted))
		return
	}

	tk := &task{done: make(chan struct{})}
	t.tasks.Store(p.token, tk)
	t.wg.Add(1)
	go t.wait(p, tk)
}

func (t *Tracker) wait(p *Pending, tk *task) {
	defer t.wg.Done()
	defer close(tk.done)

	timer := wallclock.Instance.NewTimer(t.options.Timeout)
	defer timer.Stop()

	var outcome Outcome
	select {
	case ok := <-p.waiter.signal:
		outcome = outcomeOf(ok)
	case <-timer.C():
		outcome = t.expire(p, TimedOut)
	case <-t.abort:
		outcome = t.expire(p, Aborted)
	}
	t.finish(p.waiter, outcome)
}

// expire withdraws the token. If a callback took it first, its signal is
// already on the way and wins.
func (t *Tracker) expire(p *Pending, o Outcome) Outcome {
	if waiters.Remove(p.token) {
		return o
	}
	return outcomeOf(<-p.waiter.signal)
}

func outcomeOf(ok bool) Outcome {
	if ok {
		return Succeeded
	}
	return Failed
}

func (t *Tracker) finish(w *waiter, o Outcome) {
	res := Result{
		Operation: w.op,
		TraceID:   w.traceID,
		Outcome:   o,
		Elapsed:   wallclock.Instance.Now().Sub(w.start),
	}

	ctx := context.Background()
	switch o {
	case Succeeded:
		t.succeeded.Add(1)
		t.log.Debug(ctx, "confirmation received", slog.Any("result", res))
	case Failed:
		t.failed.Add(1)
		t.log.Warn(ctx, "confirmation reported failure", slog.Any("result", res))
	case TimedOut:
		t.timedOut.Add(1)
		t.log.Warn(ctx, "confirmation timed out",
			slog.Any("result", res),
			slog.Duration("timeout", t.options.Timeout),
		)
	case Aborted:
		t.aborted.Add(1)
		t.log.Warn(ctx, "confirmation abandoned", slog.Any("result", res))
	}

	if t.options.OnResult != nil {
		t.options.OnResult(res)
	}
}

// Resolve settles the operation behind the callback context. It reports
// whether the context still named a pending operation; an unknown, expired
// or already resolved context is ignored.
func (t *Tracker) Resolve(ctx native.Context, ok bool) bool {
	w, found := waiters.Take(handle.Token(ctx))
	if !found {
		t.log.Warn(context.Background(), "confirmation for unknown token",
			slog.Uint64("token", uint64(ctx)),
		)
		return false
	}
	w.signal <- ok
	return true
}

// OnEventConfirmation is the native event confirmation callback.
func (t *Tracker) OnEventConfirmation(
	r native.ConfirmationResult,
	ctx native.Context,
) {
	if r != native.ConfirmationOK {
		t.log.Debug(context.Background(), "event not confirmed",
			slog.String("result", r.String()),
		)
	}
	t.Resolve(ctx, r == native.ConfirmationOK)
}

// OnReportedState is the native reported state callback. Only 204 counts as
// success.
func (t *Tracker) OnReportedState(status int, ctx native.Context) {
	if status != 204 {
		t.log.Debug(context.Background(), "reported state not accepted",
			slog.Int("status", status),
		)
	}
	t.Resolve(ctx, status == 204)
}

// reap drops finished tasks without waiting on any.
func (t *Tracker) reap() {
	var finished []handle.Token
	t.tasks.Range(func(tok handle.Token, tk *task) bool {
		select {
		case <-tk.done:
			finished = append(finished, tok)
		default:
		}
		return true
	})
	for _, tok := range finished {
		t.tasks.Delete(tok)
	}
}

func (t *Tracker) inFlight() int {
	n := 0
	t.tasks.Range(func(_ handle.Token, tk *task) bool {
		select {
		case <-tk.done:
		default:
			n++
		}
		return true
	})
	return n
}

// Stats returns the tracker's counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Tracked:   t.tracked.Load(),
		Succeeded: t.succeeded.Load(),
		Failed:    t.failed.Load(),
		TimedOut:  t.timedOut.Load(),
		Aborted:   t.aborted.Load(),
		Discarded: t.discarded.Load(),
		InFlight:  t.inFlight(),
	}
}

// Shutdown stops accepting operations and waits for in-flight confirmations
// until ctx is done, or for the shutdown timeout if ctx has no deadline. Any
// still waiting are then abandoned. Calling Shutdown again returns an empty
// summary.
func (t *Tracker) Shutdown(ctx context.Context) Summary {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Summary{}
	}
	t.closed = true
	t.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = wallclock.Instance.WithTimeout(
			ctx,
			t.options.ShutdownTimeout,
		)
		defer cancel()
	}

	pending := t.inFlight()
	before := t.aborted.Load()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		close(t.abort)
		<-done
	}
	t.reap()

	aborted := int(t.aborted.Load() - before)
	s := Summary{Pending: pending, Drained: pending - aborted, Aborted: aborted}
	if aborted > 0 {
		t.log.Warn(ctx, "abandoned in-flight confirmations at shutdown",
			slog.Int("count", aborted),
			slog.Int("drained", s.Drained),
		)
	} else {
		t.log.Debug(ctx, "confirmations drained", slog.Int("count", pending))
	}
	return s
}
