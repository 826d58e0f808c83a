// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock is the subset of packages context and time that the client
	// reads time through. Tests swap Instance to control apparent time.
	WallClock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
		NewTimer(d time.Duration) Timer
		NewTicker(d time.Duration) Ticker
		WithTimeout(
			parent context.Context,
			timeout time.Duration,
		) (context.Context, context.CancelFunc)
	}

	// Timer abstracts time.Timer.
	Timer interface {
		C() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	// Ticker abstracts time.Ticker.
	Ticker interface {
		C() <-chan time.Time
		Reset(d time.Duration)
		Stop()
	}

	wallClock struct{}

	timer  struct{ *time.Timer }
	ticker struct{ *time.Ticker }
)

// Instance is the clock used by every package in this module.
var Instance WallClock = wallClock{}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (wallClock) NewTimer(d time.Duration) Timer {
	return timer{time.NewTimer(d)}
}

func (wallClock) NewTicker(d time.Duration) Ticker {
	return ticker{time.NewTicker(d)}
}

func (wallClock) WithTimeout(
	parent context.Context,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

func (t timer) C() <-chan time.Time {
	return t.Timer.C
}

func (t ticker) C() <-chan time.Time {
	return t.Ticker.C
}
