// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import (
	"fmt"
	"strings"

	"github.com/go-lpc/urukul/ad9910/internal/regs"
)

// RAMSize is the number of words of the AD9910 RAM.
const RAMSize = regs.RAMSize

// RAMType is the kind of data held by a RAM profile.
type RAMType int

const (
	RAMFrequency RAMType = iota + 1 // frequencies, in Hz
	RAMPhase                        // phases, in turns
	RAMAmplitude                    // amplitudes, as fractions of full scale
	RAMPolar                        // phase and amplitude pairs
)

func (typ RAMType) String() string {
	switch typ {
	case RAMFrequency:
		return "frequency"
	case RAMPhase:
		return "phase"
	case RAMAmplitude:
		return "amplitude"
	case RAMPolar:
		return "polar"
	default:
		return fmt.Sprintf("RAMType(%d)", int(typ))
	}
}

// Dest returns the RAM destination field driving the parameter(s) of typ.
func (typ RAMType) Dest() RAMDest {
	switch typ {
	case RAMFrequency:
		return RAMDestFTW
	case RAMPhase:
		return RAMDestPOW
	case RAMAmplitude:
		return RAMDestASF
	case RAMPolar:
		return RAMDestPOWASF
	default:
		panic(fmt.Errorf("ad9910: invalid RAM type %d", int(typ)))
	}
}

// ParseRAMType parses the name of a RAM type.
func ParseRAMType(name string) (RAMType, error) {
	switch strings.ToLower(name) {
	case "frequency", "freq":
		return RAMFrequency, nil
	case "phase":
		return RAMPhase, nil
	case "amplitude", "amp":
		return RAMAmplitude, nil
	case "polar":
		return RAMPolar, nil
	default:
		return 0, fmt.Errorf("%w: invalid RAM type %q", ErrConfig, name)
	}
}

// RAMDest is the RAM destination field of CFR1.
type RAMDest uint32

const (
	RAMDestFTW    RAMDest = 0
	RAMDestPOW    RAMDest = 1
	RAMDestASF    RAMDest = 2
	RAMDestPOWASF RAMDest = 3
)

// RAMMode is the playback mode of a RAM profile.
type RAMMode uint32

const (
	RAMModeDirectSwitch  RAMMode = 0
	RAMModeRampUp        RAMMode = 1
	RAMModeBidirRamp     RAMMode = 2
	RAMModeContBidirRamp RAMMode = 3
	RAMModeContRampUp    RAMMode = 4
)

var ramModes = []string{
	RAMModeDirectSwitch:  "direct_switch",
	RAMModeRampUp:        "rampup",
	RAMModeBidirRamp:     "bidir_ramp",
	RAMModeContBidirRamp: "cont_bidir_ramp",
	RAMModeContRampUp:    "cont_rampup",
}

func (mode RAMMode) String() string {
	if int(mode) < len(ramModes) {
		return ramModes[mode]
	}
	return fmt.Sprintf("RAMMode(%d)", uint32(mode))
}

// ParseRAMMode parses the name of a RAM playback mode.
func ParseRAMMode(name string) (RAMMode, error) {
	name = strings.ToLower(name)
	for i, v := range ramModes {
		if v == name {
			return RAMMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid RAM mode %q", ErrConfig, name)
}

// RAMData holds the samples of a RAM profile: plain values for
// frequency, phase and amplitude profiles, pairs for polar profiles.
type RAMData struct {
	values []float64
	polar  []PolarSample
}

// Samples returns frequency, phase or amplitude RAM samples.
func Samples(vs ...float64) RAMData {
	return RAMData{values: vs}
}

// PolarSamples returns polar RAM samples.
func PolarSamples(vs ...PolarSample) RAMData {
	return RAMData{polar: vs}
}

// Len returns the number of samples.
func (data RAMData) Len() int {
	if data.polar != nil {
		return len(data.polar)
	}
	return len(data.values)
}

// RAMProfile is a waveform encoded for playback from the RAM.
// RAMProfile values must not be modified once created.
type RAMProfile struct {
	Type  RAMType
	Dest  RAMDest
	Mode  RAMMode
	Start uint32   // first RAM address
	End   uint32   // last RAM address, inclusive
	Step  uint32   // sysclk/4 cycles per RAM address
	Data  []uint32 // RAM words, in transmission order

	// Values of the registers the RAM does not drive.
	FTW uint32
	POW uint16
	ASF uint16

	// OSKEnable reports whether the output shift keying may be used.
	// It is disabled when the RAM drives the amplitude.
	OSKEnable bool
}

type ramBase struct {
	freq  float64
	phase float64
	amp   float64
}

// RAMOption configures the values of the parameters a RAM profile does
// not drive.
type RAMOption func(*ramBase)

// WithBaseFrequency sets the frequency, in Hz, of phase, amplitude and
// polar profiles.
func WithBaseFrequency(hz float64) RAMOption {
	return func(base *ramBase) {
		base.freq = hz
	}
}

// WithBasePhase sets the phase, in turns, of frequency and amplitude
// profiles.
func WithBasePhase(turns float64) RAMOption {
	return func(base *ramBase) {
		base.phase = turns
	}
}

// WithBaseAmplitude sets the amplitude of frequency and phase profiles.
func WithBaseAmplitude(amp float64) RAMOption {
	return func(base *ramBase) {
		base.amp = amp
	}
}

// NewRAMProfile encodes data for playback on dds.
// One RAM address is played back every interval seconds.
//
// Parameters not driven by the RAM default to 0 Hz, 0 turns and full
// scale amplitude.
func NewRAMProfile(dds *DDS, data RAMData, interval float64, typ RAMType, mode RAMMode, opts ...RAMOption) (*RAMProfile, error) {
	n := data.Len()
	switch {
	case n > RAMSize:
		return nil, fmt.Errorf("%w: %d samples (max=%d)", ErrCapacity, n, RAMSize)
	case n == 0:
		return nil, fmt.Errorf("%w: empty RAM profile", ErrConfig)
	}

	base := ramBase{amp: 1}
	for _, opt := range opts {
		opt(&base)
	}

	prof := &RAMProfile{
		Type: typ,
		Mode: mode,
		ASF:  asfMax,
	}

	var err error
	switch typ {
	case RAMFrequency, RAMPhase, RAMAmplitude:
		if data.polar != nil {
			return nil, fmt.Errorf("%w: polar samples for a %v RAM profile", ErrConfig, typ)
		}
	case RAMPolar:
		if data.polar == nil {
			return nil, fmt.Errorf("%w: polar RAM profile requires polar samples", ErrConfig)
		}
	default:
		return nil, fmt.Errorf("%w: invalid RAM type %d", ErrConfig, int(typ))
	}
	prof.Dest = typ.Dest()

	switch typ {
	case RAMFrequency:
		prof.Data = dds.FrequencyToRAM(data.values)
		prof.POW = dds.TurnsToPOW(base.phase)
		prof.ASF, err = dds.AmplitudeToASF(base.amp)
	case RAMPhase:
		prof.Data = dds.TurnsToRAM(data.values)
		prof.FTW = dds.FrequencyToFTW(base.freq)
		prof.ASF, err = dds.AmplitudeToASF(base.amp)
	case RAMAmplitude:
		prof.Data, err = dds.AmplitudeToRAM(data.values)
		prof.FTW = dds.FrequencyToFTW(base.freq)
		prof.POW = dds.TurnsToPOW(base.phase)
	case RAMPolar:
		prof.Data, err = dds.TurnsAmplitudeToRAM(data.polar)
		prof.FTW = dds.FrequencyToFTW(base.freq)
	}
	if err != nil {
		return nil, err
	}

	// the chip shifts in the highest RAM address first.
	reverse(prof.Data)

	prof.Start = 0
	prof.End = uint32(n - 1)
	prof.OSKEnable = typ != RAMAmplitude && typ != RAMPolar

	step := int64(interval * dds.sysclk / 4)
	if step < 0 || step > 0xffff {
		return nil, fmt.Errorf("%w: RAM step interval %g s", ErrRange, interval)
	}
	prof.Step = uint32(step)

	return prof, nil
}

// Len returns the number of RAM words of the profile.
func (prof *RAMProfile) Len() int {
	return int(prof.End-prof.Start) + 1
}

// Register returns the playback profile register of prof.
func (prof *RAMProfile) Register() ProfileRAM {
	return ProfileRAM{
		Start: prof.Start,
		End:   prof.End,
		Step:  prof.Step,
		Mode:  prof.Mode,
	}
}

func reverse(vs []uint32) {
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}
