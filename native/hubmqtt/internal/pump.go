// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"sync"
	"time"

	"github.com/Azure/iothub-client-go/internal/wallclock"
)

// Pump runs queued work on a single goroutine. Work is picked up once per
// interval, or as soon as it is queued when the interval is zero.
type Pump struct {
	items    []func()
	interval time.Duration
	wake     chan struct{}
	reset    chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	closed   bool
	mu       sync.Mutex
}

// NewPump starts a pump with the given interval.
func NewPump(interval time.Duration) *Pump {
	p := &Pump{
		interval: interval,
		wake:     make(chan struct{}, 1),
		reset:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue adds work. It reports false once the pump is stopped.
func (p *Pump) Enqueue(f func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.items = append(p.items, f)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// Size returns the amount of queued work.
func (p *Pump) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// SetInterval changes the pacing interval.
func (p *Pump) SetInterval(d time.Duration) {
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
	select {
	case p.reset <- struct{}{}:
	default:
	}
}

// Stop stops the pump after running the work already queued. It must not be
// called from queued work.
func (p *Pump) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.stopped
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	<-p.stopped
}

func (p *Pump) run() {
	defer close(p.stopped)

	for {
		p.mu.Lock()
		interval := p.interval
		p.mu.Unlock()

		if interval <= 0 {
			if !p.immediate() {
				p.drain()
				return
			}
			continue
		}
		if !p.paced(interval) {
			p.drain()
			return
		}
	}
}

// immediate runs work as it arrives until stopped or reset.
func (p *Pump) immediate() bool {
	p.drain()
	for {
		select {
		case <-p.stop:
			return false
		case <-p.reset:
			return true
		case <-p.wake:
			p.drain()
		}
	}
}

// paced runs work once per tick until stopped or reset.
func (p *Pump) paced(interval time.Duration) bool {
	ticker := wallclock.Instance.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return false
		case <-p.reset:
			return true
		case <-ticker.C():
			p.drain()
		}
	}
}

func (p *Pump) drain() {
	p.mu.Lock()
	items := p.items
	p.items = nil
	p.mu.Unlock()

	for _, f := range items {
		f()
	}
}
