// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"fmt"
	"sort"
)

// Sim is an in-memory model of the RTIO output queue.
//
// Submitting an event costs a fixed amount of host time, during which
// the hardware counter keeps running. Events leave the queue once the
// counter reaches their timestamp. Submitting to a full queue blocks
// until the earliest pending event drains.
// Every accepted event is recorded, in submission order.
type Sim struct {
	depth int
	cost  int64

	counter int64
	queue   []int64 // pending timestamps, sorted
	last    map[int32]int64

	evts []Event
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithDepth sets the number of events the queue can hold.
func WithDepth(n int) SimOption {
	return func(sim *Sim) {
		sim.depth = n
	}
}

// WithHostCost sets the host time spent submitting one event, in
// machine units.
func WithHostCost(mu int64) SimOption {
	return func(sim *Sim) {
		sim.cost = mu
	}
}

// NewSim returns a new simulated output queue.
func NewSim(opts ...SimOption) *Sim {
	sim := &Sim{
		depth: 128,
		cost:  200,
		last:  make(map[int32]int64),
	}
	for _, opt := range opts {
		opt(sim)
	}
	if sim.depth <= 0 {
		sim.depth = 1
	}
	return sim
}

// Counter returns the current value of the simulated hardware counter.
func (sim *Sim) Counter() int64 { return sim.counter }

// Pending returns the number of events still in the queue.
func (sim *Sim) Pending() int { return len(sim.queue) }

// Events returns the accepted events, in submission order.
func (sim *Sim) Events() []Event { return sim.evts }

// Reset clears the recorded events. The hardware counter keeps its value.
func (sim *Sim) Reset() {
	sim.evts = sim.evts[:0]
	sim.queue = sim.queue[:0]
	sim.last = make(map[int32]int64)
}

// Wait advances the hardware counter until the queue is empty.
func (sim *Sim) Wait() {
	if n := len(sim.queue); n > 0 {
		sim.advance(sim.queue[n-1])
	}
}

func (sim *Sim) Write(evt Event) error {
	sim.advance(sim.counter + sim.cost)

	if len(sim.queue) >= sim.depth {
		sim.advance(sim.queue[0])
	}

	if evt.Time < sim.counter {
		return fmt.Errorf(
			"%w: channel %d, timestamp %d, counter %d",
			ErrUnderflow, evt.Channel, evt.Time, sim.counter,
		)
	}

	if last, ok := sim.last[evt.Channel]; ok && evt.Time < last {
		return fmt.Errorf(
			"%w: channel %d, timestamp %d before %d",
			ErrSequence, evt.Channel, evt.Time, last,
		)
	}
	sim.last[evt.Channel] = evt.Time

	i := sort.Search(len(sim.queue), func(i int) bool {
		return sim.queue[i] > evt.Time
	})
	sim.queue = append(sim.queue, 0)
	copy(sim.queue[i+1:], sim.queue[i:])
	sim.queue[i] = evt.Time

	sim.evts = append(sim.evts, evt)
	return nil
}

// advance moves the hardware counter to t and drains the queue.
func (sim *Sim) advance(t int64) {
	if t > sim.counter {
		sim.counter = t
	}
	i := sort.Search(len(sim.queue), func(i int) bool {
		return sim.queue[i] > sim.counter
	})
	sim.queue = sim.queue[:copy(sim.queue, sim.queue[i:])]
}

var (
	_ Output = (*Sim)(nil)
)
