// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtio models the real-time I/O layer driving Urukul boards:
// a timeline cursor expressed in machine units, and the output
// channels (SPI masters, TTL lines) that enqueue timestamped events
// into a bounded hardware queue.
package rtio // import "github.com/go-lpc/urukul/rtio"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
)

var (
	// ErrUnderflow is returned when an event is submitted with a
	// timestamp that the hardware counter has already passed.
	ErrUnderflow = errors.New("rtio: underflow")

	// ErrSequence is returned when an event is submitted with a
	// timestamp older than the last event of the same channel.
	ErrSequence = errors.New("rtio: sequence error")

	// ErrOverflow is returned when the hardware queue stays full.
	ErrOverflow = errors.New("rtio: overflow")
)

// Event is a timestamped write to an address of an RTIO channel.
type Event struct {
	Time    int64  // timestamp, in machine units
	Channel int32  // RTIO channel
	Addr    uint8  // address within the channel
	Data    uint32 // payload
}

func (evt Event) String() string {
	return fmt.Sprintf(
		"t=%d ch=%d addr=%d data=0x%08x",
		evt.Time, evt.Channel, evt.Addr, evt.Data,
	)
}

// Output is an RTIO output queue.
type Output interface {
	// Write enqueues an event.
	Write(evt Event) error
	// Counter returns the current value of the hardware counter,
	// in machine units.
	Counter() int64
}

const (
	defaultRefPeriod = 1e-9
	defaultRefMult   = 8
	defaultSlack     = 125000
)

type config struct {
	ref   float64
	mult  int64
	slack int64
	msg   *log.Logger
}

// Option configures a Core.
type Option func(*config)

// WithRefPeriod sets the duration of one machine unit, in seconds.
func WithRefPeriod(s float64) Option {
	return func(cfg *config) {
		cfg.ref = s
	}
}

// WithRefMultiplier sets the number of machine units in one coarse
// RTIO clock cycle.
func WithRefMultiplier(n int64) Option {
	return func(cfg *config) {
		cfg.mult = n
	}
}

// WithSlack sets the timeline margin, in machine units, that
// BreakRealtime leaves ahead of the hardware counter.
func WithSlack(mu int64) Option {
	return func(cfg *config) {
		cfg.slack = mu
	}
}

// WithLogger sets the logger used by the core.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// Core holds the timeline cursor and forwards events to an output queue.
//
// Core keeps the first error reported by its output: once an error
// occurred, subsequent events are dropped until Reset is called.
// Core is not safe for concurrent use.
type Core struct {
	out Output
	cfg config

	now int64
	err error
}

// New returns a new core driving the provided output queue.
// The timeline cursor is positioned one slack ahead of the hardware counter.
func New(out Output, opts ...Option) *Core {
	cfg := config{
		ref:   defaultRefPeriod,
		mult:  defaultRefMult,
		slack: defaultSlack,
		msg:   log.New(io.Discard, "rtio: ", 0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Core{out: out, cfg: cfg}
	c.Reset()
	return c
}

// Reset clears any recorded error and moves the timeline cursor one
// slack ahead of the hardware counter.
func (c *Core) Reset() {
	c.err = nil
	c.now = c.out.Counter() + c.cfg.slack
}

// Err returns the first error reported by the output queue, if any.
func (c *Core) Err() error {
	return c.err
}

// Now returns the timeline cursor.
func (c *Core) Now() int64 { return c.now }

// At moves the timeline cursor to the absolute timestamp t.
func (c *Core) At(t int64) { c.now = t }

// Delay advances the timeline cursor by dt machine units.
// dt may be negative.
func (c *Core) Delay(dt int64) { c.now += dt }

// DelayS advances the timeline cursor by the provided duration in seconds.
func (c *Core) DelayS(s float64) { c.Delay(c.SecondsToMu(s)) }

// BreakRealtime moves the timeline cursor to at least one slack ahead
// of the hardware counter.
func (c *Core) BreakRealtime() {
	t := c.out.Counter() + c.cfg.slack
	if c.now < t {
		c.now = t
	}
}

// SecondsToMu converts a duration in seconds to machine units.
func (c *Core) SecondsToMu(s float64) int64 {
	return int64(math.Round(s / c.cfg.ref))
}

// MuToSeconds converts a duration in machine units to seconds.
func (c *Core) MuToSeconds(mu int64) float64 {
	return float64(mu) * c.cfg.ref
}

// RefPeriod returns the duration of one machine unit, in seconds.
func (c *Core) RefPeriod() float64 { return c.cfg.ref }

// CoarsePeriodMu returns the duration of one coarse RTIO clock cycle,
// in machine units.
func (c *Core) CoarsePeriodMu() int64 { return c.cfg.mult }

// Output submits data to the address addr of channel ch, at the current
// timeline position.
func (c *Core) Output(ch int32, addr uint8, data uint32) {
	if c.err != nil {
		return
	}
	evt := Event{Time: c.now, Channel: ch, Addr: addr, Data: data}
	err := c.out.Write(evt)
	if err != nil {
		c.err = fmt.Errorf("rtio: could not submit event (%v): %w", evt, err)
		c.cfg.msg.Printf("%+v", c.err)
	}
}
