// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Interval implements the fixed, linear and random retry policies.
type Interval struct {
	// MaxAttempts sets the maximum number of attempts; 0 is unlimited.
	MaxAttempts uint64

	// Interval is the wait between attempts. Zero retries immediately.
	Interval time.Duration

	// Linear grows the wait by Interval on every attempt.
	Linear bool

	// Random waits a uniformly random fraction of Interval.
	Random bool

	// Timeout is the total timeout for all retries.
	Timeout time.Duration

	// Logger provides a logger which will be used to log retry attempts and
	// results.
	Logger *slog.Logger
}

// Start initiates the retry executions.
func (i *Interval) Start(ctx context.Context, name string, task Task) error {
	return run(ctx, name, task, i.Timeout, i.MaxAttempts, i.Logger,
		i.interval)
}

func (i *Interval) interval(attempt uint64) time.Duration {
	d := i.Interval
	if i.Linear {
		d *= time.Duration(attempt)
	}
	if i.Random {
		d = time.Duration(random() * float64(d))
	}
	return d
}
