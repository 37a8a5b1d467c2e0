// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

// TTL is a digital RTIO output line.
type TTL struct {
	core *Core
	ch   int32
}

// NewTTL returns a TTL output bound to RTIO channel ch.
func NewTTL(core *Core, ch int32) *TTL {
	return &TTL{core: core, ch: ch}
}

// Channel returns the RTIO channel of the TTL output.
func (ttl *TTL) Channel() int32 { return ttl.ch }

// On drives the line high at the current timeline position.
func (ttl *TTL) On() { ttl.core.Output(ttl.ch, 0, 1) }

// Off drives the line low at the current timeline position.
func (ttl *TTL) Off() { ttl.core.Output(ttl.ch, 0, 0) }

// PulseMu drives the line high for d machine units.
// The timeline is advanced by d.
func (ttl *TTL) PulseMu(d int64) {
	ttl.On()
	ttl.core.Delay(d)
	ttl.Off()
}

// Pulse drives the line high for the provided duration, in seconds.
func (ttl *TTL) Pulse(s float64) {
	ttl.PulseMu(ttl.core.SecondsToMu(s))
}
