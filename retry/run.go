// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/Azure/iothub-client-go/internal/wallclock"
)

// schedule returns the wait before the attempt after the given one.
type schedule func(attempt uint64) time.Duration

// run is the loop shared by every policy.
func run(
	ctx context.Context,
	name string,
	task Task,
	timeout time.Duration,
	maxAttempts uint64,
	l *slog.Logger,
	next schedule,
) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = wallclock.Instance.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lg := logger{log.Wrap(l)}

	for attempt := uint64(1); ; attempt++ {
		lg.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		if err == nil {
			lg.complete(ctx, name, attempt, nil)
			return nil
		}

		if !retry || attempt == maxAttempts || ctx.Err() != nil {
			lg.complete(ctx, name, attempt, err)
			return err
		}

		interval := next(attempt)
		lg.backoff(ctx, name, attempt, interval, err)
		if interval <= 0 {
			continue
		}
		select {
		case <-wallclock.Instance.After(interval):
		case <-ctx.Done():
			lg.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}
