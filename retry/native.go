// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"log/slog"
	"time"

	"github.com/Azure/iothub-client-go/native"
)

// DefaultInterval is the base wait of the interval, linear and random
// policies.
const DefaultInterval = 5 * time.Second

// FromNative builds the policy selected through SetRetryPolicy. A zero
// timeout retries forever.
func FromNative(
	p native.RetryPolicy,
	timeout time.Duration,
	logger *slog.Logger,
) Policy {
	switch p {
	case native.RetryNone:
		return &Interval{MaxAttempts: 1, Logger: logger}
	case native.RetryImmediate:
		return &Interval{Timeout: timeout, Logger: logger}
	case native.RetryInterval:
		return &Interval{
			Interval: DefaultInterval,
			Timeout:  timeout,
			Logger:   logger,
		}
	case native.RetryLinearBackoff:
		return &Interval{
			Interval: DefaultInterval,
			Linear:   true,
			Timeout:  timeout,
			Logger:   logger,
		}
	case native.RetryRandom:
		return &Interval{
			Interval: DefaultInterval,
			Random:   true,
			Timeout:  timeout,
			Logger:   logger,
		}
	case native.RetryExponentialBackoff:
		return &ExponentialBackoff{
			NoJitter: true,
			Timeout:  timeout,
			Logger:   logger,
		}
	default:
		return &ExponentialBackoff{Timeout: timeout, Logger: logger}
	}
}
