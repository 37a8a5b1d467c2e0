// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"errors"
	"testing"
)

func TestSimBlocking(t *testing.T) {
	sim := NewSim(WithDepth(4), WithHostCost(0))

	for i := 0; i < 4; i++ {
		err := sim.Write(Event{Time: int64(100 * (i + 1)), Channel: 1})
		if err != nil {
			t.Fatalf("could not write event %d: %+v", i, err)
		}
	}
	if got, want := sim.Pending(), 4; got != want {
		t.Fatalf("invalid pending: got=%d, want=%d", got, want)
	}
	if got, want := sim.Counter(), int64(0); got != want {
		t.Fatalf("invalid counter: got=%d, want=%d", got, want)
	}

	err := sim.Write(Event{Time: 500, Channel: 1})
	if err != nil {
		t.Fatalf("could not write event: %+v", err)
	}
	if got, want := sim.Counter(), int64(100); got != want {
		t.Fatalf("full queue did not block: counter got=%d, want=%d", got, want)
	}
	if got, want := sim.Pending(), 4; got != want {
		t.Fatalf("invalid pending: got=%d, want=%d", got, want)
	}

	sim.Wait()
	if got, want := sim.Pending(), 0; got != want {
		t.Fatalf("invalid pending after wait: got=%d, want=%d", got, want)
	}
	if got, want := sim.Counter(), int64(500); got != want {
		t.Fatalf("invalid counter after wait: got=%d, want=%d", got, want)
	}
	if got, want := len(sim.Events()), 5; got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}

	sim.Reset()
	if got, want := len(sim.Events()), 0; got != want {
		t.Fatalf("invalid number of events after reset: got=%d, want=%d", got, want)
	}
}

func TestSimErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		evts []Event
		err  error
	}{
		{
			name: "ok",
			evts: []Event{
				{Time: 1000, Channel: 1},
				{Time: 1000, Channel: 2},
				{Time: 1008, Channel: 1},
			},
		},
		{
			name: "underflow",
			evts: []Event{
				{Time: 1000, Channel: 1},
				{Time: 50, Channel: 2},
			},
			err: ErrUnderflow,
		},
		{
			name: "sequence",
			evts: []Event{
				{Time: 2000, Channel: 1},
				{Time: 1500, Channel: 1},
			},
			err: ErrSequence,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sim := NewSim(WithHostCost(200))
			var err error
			for _, evt := range tc.evts {
				err = sim.Write(evt)
				if err != nil {
					break
				}
			}
			switch {
			case tc.err == nil && err != nil:
				t.Fatalf("could not write events: %+v", err)
			case tc.err != nil && !errors.Is(err, tc.err):
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}
}

func TestSimUnderflowWithSlowHost(t *testing.T) {
	sim := NewSim(WithHostCost(1000))
	core := New(sim, WithSlack(10000))
	ttl := NewTTL(core, 1)

	for i := 0; i < 100; i++ {
		ttl.PulseMu(8)
	}

	if err := core.Err(); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("invalid error: %+v", err)
	}

	core.Reset()
	sim.Reset()
	for i := 0; i < 4; i++ {
		core.BreakRealtime()
		ttl.PulseMu(8)
	}
	if err := core.Err(); err != nil {
		t.Fatalf("could not pulse after break-realtime: %+v", err)
	}
}
