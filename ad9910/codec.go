// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import (
	"fmt"
	"math"
)

// Full-scale values of the fixed-point registers.
const (
	powScale = 1 << 16
	asfMax   = 0x3fff
	drgScale = 1 << 32
	ampScale = 0xffffffff
)

// Finest DRG steps reaching the DDS core for each ramp destination.
// The DRG accumulator is 32 bits wide while the POW and ASF registers only
// keep the most significant 16 and 14 bits.
const (
	FineFrequencyStep = 1
	FinePhaseStep     = 1 << 16
	FineAmplitudeStep = 1 << 18
)

// PolarSample is a phase and amplitude pair played back by a polar RAM
// profile.
type PolarSample struct {
	Phase     float64 // turns
	Amplitude float64 // fraction of full scale
}

// FrequencyToFTW returns the frequency tuning word corresponding to hz.
// The result wraps around modulo 2^32.
func (dds *DDS) FrequencyToFTW(hz float64) uint32 {
	return uint32(int64(math.Round(dds.ftwPerHz * hz)))
}

// FTWToFrequency returns the frequency, in Hz, of the tuning word ftw.
func (dds *DDS) FTWToFrequency(ftw uint32) float64 {
	return float64(ftw) * dds.sysclk / (1 << 32)
}

// TurnsToPOW returns the phase offset word corresponding to turns.
// The result wraps around modulo one turn.
func (dds *DDS) TurnsToPOW(turns float64) uint16 {
	return uint16(int64(math.Round(turns*powScale)) & 0xffff)
}

// POWToTurns returns the phase, in turns, of the phase offset word pow.
func (dds *DDS) POWToTurns(pow uint16) float64 {
	return float64(pow) / powScale
}

// AmplitudeToASF returns the amplitude scale factor corresponding to amp,
// a fraction of full scale.
func (dds *DDS) AmplitudeToASF(amp float64) (uint16, error) {
	code := math.Round(amp * asfMax)
	if !(code >= 0 && code <= asfMax) {
		return 0, fmt.Errorf("%w: amplitude %g not in [0, 1]", ErrRange, amp)
	}
	return uint16(code), nil
}

// ASFToAmplitude returns the amplitude, as a fraction of full scale, of
// the amplitude scale factor asf.
func (dds *DDS) ASFToAmplitude(asf uint16) float64 {
	return float64(asf) / asfMax
}

// FrequencyToRAM encodes frequencies as RAM words.
func (dds *DDS) FrequencyToRAM(hz []float64) []uint32 {
	ram := make([]uint32, len(hz))
	for i, v := range hz {
		ram[i] = dds.FrequencyToFTW(v)
	}
	return ram
}

// TurnsToRAM encodes phases as RAM words.
func (dds *DDS) TurnsToRAM(turns []float64) []uint32 {
	ram := make([]uint32, len(turns))
	for i, v := range turns {
		ram[i] = uint32(dds.TurnsToPOW(v)) << 16
	}
	return ram
}

// AmplitudeToRAM encodes amplitudes as RAM words.
func (dds *DDS) AmplitudeToRAM(amps []float64) ([]uint32, error) {
	ram := make([]uint32, len(amps))
	for i, v := range amps {
		asf, err := dds.AmplitudeToASF(v)
		if err != nil {
			return nil, fmt.Errorf("ad9910: invalid RAM sample %d: %w", i, err)
		}
		ram[i] = uint32(asf) << 18
	}
	return ram, nil
}

// TurnsAmplitudeToRAM encodes phase and amplitude pairs as RAM words.
func (dds *DDS) TurnsAmplitudeToRAM(samples []PolarSample) ([]uint32, error) {
	ram := make([]uint32, len(samples))
	for i, v := range samples {
		asf, err := dds.AmplitudeToASF(v.Amplitude)
		if err != nil {
			return nil, fmt.Errorf("ad9910: invalid RAM sample %d: %w", i, err)
		}
		ram[i] = uint32(dds.TurnsToPOW(v.Phase))<<16 | uint32(asf)<<2
	}
	return ram, nil
}

// FrequencyToWord returns the DRG word of a frequency, in Hz.
func (dds *DDS) FrequencyToWord(hz float64) uint32 {
	return dds.FrequencyToFTW(hz)
}

// WordToFrequency returns the frequency, in Hz, of a DRG word.
func (dds *DDS) WordToFrequency(w uint32) float64 {
	return dds.FTWToFrequency(w)
}

// PhaseToWord returns the 32-bit DRG word of a phase, in turns.
// Unlike TurnsToPOW, the phase does not wrap around.
func PhaseToWord(turns float64) (uint32, error) {
	w := math.Round(turns * drgScale)
	if !(w >= 0 && w <= drgScale-1) {
		return 0, fmt.Errorf("%w: phase %g turns does not fit a DRG word", ErrRange, turns)
	}
	return uint32(w), nil
}

// WordToPhase returns the phase, in turns, of a DRG word.
func WordToPhase(w uint32) float64 {
	return float64(w) / drgScale
}

// AmplitudeToWord returns the 32-bit DRG word of an amplitude, as a
// fraction of full scale. The scaled value is truncated.
func AmplitudeToWord(amp float64) (uint32, error) {
	if !(amp >= 0 && amp <= 1) {
		return 0, fmt.Errorf("%w: amplitude %g not in [0, 1]", ErrRange, amp)
	}
	return uint32(amp * ampScale), nil
}

// WordToAmplitude returns the amplitude, as a fraction of full scale, of
// a DRG word.
func WordToAmplitude(w uint32) float64 {
	return float64(w) / ampScale
}
