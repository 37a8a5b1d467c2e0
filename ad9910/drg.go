// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import (
	"fmt"
	"strings"
)

// DRGType is the parameter swept by a digital ramp.
type DRGType int

const (
	DRGFrequency DRGType = iota // frequency ramp, in Hz
	DRGPhase                    // phase ramp, in turns
	DRGAmplitude                // amplitude ramp, as fractions of full scale
)

func (typ DRGType) String() string {
	switch typ {
	case DRGFrequency:
		return "frequency"
	case DRGPhase:
		return "phase"
	case DRGAmplitude:
		return "amplitude"
	default:
		return fmt.Sprintf("DRGType(%d)", int(typ))
	}
}

// ParseDRGType parses the name of a ramp type.
func ParseDRGType(name string) (DRGType, error) {
	switch strings.ToLower(name) {
	case "frequency", "freq":
		return DRGFrequency, nil
	case "phase":
		return DRGPhase, nil
	case "amplitude", "amp":
		return DRGAmplitude, nil
	default:
		return 0, fmt.Errorf("%w: invalid DRG type %q", ErrConfig, name)
	}
}

// DRGDest is the DRG destination field of CFR2.
type DRGDest uint32

// DRG is a digital ramp configuration.
//
// The ramp starts at Low+Step, the user provided start value, and is
// incremented by Step every Rate×4 sysclk cycles until it reaches High.
// If High+Step does not overflow 32 bits the ramp then dwells at High,
// otherwise it falls back to Low.
//
// Low, High and Step hold the bits of the unsigned ramp words.
type DRG struct {
	Type      DRGType
	Dest      DRGDest
	Low       int32
	High      int32
	Step      int32
	Rate      uint32
	DwellHigh bool
}

type drgConfig struct {
	steps int
	gap   *float64
	fine  bool
	dwell bool
}

// DRGOption configures a digital ramp.
// Exactly one of WithNumSteps, WithStepGap and WithFineStep must be given.
type DRGOption func(*drgConfig)

// WithNumSteps sets the number of values of the ramp, start and end
// included.
func WithNumSteps(n int) DRGOption {
	return func(cfg *drgConfig) {
		cfg.steps = n
	}
}

// WithStepGap sets the increment of the ramp, in physical units.
func WithStepGap(gap float64) DRGOption {
	return func(cfg *drgConfig) {
		cfg.gap = &gap
	}
}

// WithFineStep selects the finest increment reaching the DDS core.
func WithFineStep() DRGOption {
	return func(cfg *drgConfig) {
		cfg.fine = true
	}
}

// WithDwellHigh declares whether the ramp is expected to dwell at its end
// value (the default) or fall back below its start value.
func WithDwellHigh(v bool) DRGOption {
	return func(cfg *drgConfig) {
		cfg.dwell = v
	}
}

// NewDRG returns a digital ramp from start to end, updated every interval
// seconds on dds.
func NewDRG(dds *DDS, start, end, interval float64, typ DRGType, opts ...DRGOption) (*DRG, error) {
	cfg := drgConfig{dwell: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	nspecs := 0
	if cfg.steps != 0 {
		nspecs++
	}
	if cfg.gap != nil || cfg.fine {
		nspecs++
	}
	if cfg.gap != nil && cfg.fine {
		nspecs++
	}
	if nspecs != 1 {
		return nil, fmt.Errorf(
			"%w: exactly one of number of steps and step gap must be given",
			ErrConfig,
		)
	}

	var encode func(v float64) (uint32, error)
	var fine uint32
	switch typ {
	case DRGFrequency:
		encode = func(v float64) (uint32, error) {
			return dds.FrequencyToWord(v), nil
		}
		fine = FineFrequencyStep
	case DRGPhase:
		encode = PhaseToWord
		fine = FinePhaseStep
	case DRGAmplitude:
		encode = AmplitudeToWord
		fine = FineAmplitudeStep
	default:
		return nil, fmt.Errorf("%w: invalid DRG type %d", ErrConfig, int(typ))
	}

	lo, err := encode(start)
	if err != nil {
		return nil, fmt.Errorf("ad9910: invalid DRG start: %w", err)
	}
	hi, err := encode(end)
	if err != nil {
		return nil, fmt.Errorf("ad9910: invalid DRG end: %w", err)
	}

	var step uint32
	switch {
	case cfg.fine:
		step = fine
	case cfg.gap != nil:
		step, err = encode(*cfg.gap)
		if err != nil {
			return nil, fmt.Errorf("ad9910: invalid DRG step gap: %w", err)
		}
	}

	if hi <= lo {
		return nil, fmt.Errorf(
			"%w: DRG end word 0x%08x must be above start word 0x%08x",
			ErrRange, hi, lo,
		)
	}

	if cfg.steps != 0 {
		if cfg.steps < 2 {
			return nil, fmt.Errorf("%w: DRG needs at least 2 steps (got=%d)", ErrConfig, cfg.steps)
		}
		step = (hi - lo) / uint32(cfg.steps-1)
	}

	dwell := uint64(hi)+uint64(step) < 1<<32
	if cfg.dwell != dwell {
		return nil, fmt.Errorf(
			"%w: inconsistent DRG dwell high behavior (hint: try dwell_high=%v)",
			ErrConfig, !cfg.dwell,
		)
	}

	if lo < step {
		return nil, fmt.Errorf(
			"%w: DRG start value too low (start=0x%08x, step=0x%08x)",
			ErrRange, lo, step,
		)
	}

	rate := int64(interval * dds.sysclk / 4)
	if rate < 0 || rate > 0xffff {
		return nil, fmt.Errorf("%w: DRG ramp interval %g s", ErrRange, interval)
	}

	return &DRG{
		Type:      typ,
		Dest:      DRGDest(typ),
		Low:       int32(lo - step),
		High:      int32(hi),
		Step:      int32(step),
		Rate:      uint32(rate),
		DwellHigh: cfg.dwell,
	}, nil
}

// Start returns the first word of the ramp.
func (drg *DRG) Start() uint32 {
	return uint32(drg.Low) + uint32(drg.Step)
}

// Playback returns the first n words of the ramp accumulator, one per
// ramp update.
func (drg *DRG) Playback(n int) []uint32 {
	var (
		low  = uint64(uint32(drg.Low))
		high = uint64(uint32(drg.High))
		step = uint64(uint32(drg.Step))
		acc  = low + step
		done = false
		out  = make([]uint32, n)
	)
	for i := range out {
		out[i] = uint32(acc)
		switch {
		case done:
		case acc >= high:
			done = true
			if !drg.DwellHigh {
				acc = low
			}
		case acc+step > high:
			acc = high
		default:
			acc += step
		}
	}
	return out
}
