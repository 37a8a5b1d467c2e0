// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import (
	"fmt"
)

// SourceKind is the kind of a waveform parameter source.
type SourceKind int

const (
	KindUnset   SourceKind = iota // register default or RAM base value
	KindLiteral                   // constant value
	KindRamp                      // digital ramp
	KindRAM                       // RAM profile
)

func (kind SourceKind) String() string {
	switch kind {
	case KindUnset:
		return "unset"
	case KindLiteral:
		return "literal"
	case KindRamp:
		return "drg"
	case KindRAM:
		return "ram"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(kind))
	}
}

// Source drives one parameter (frequency, phase or amplitude) of a channel.
// The zero value leaves the parameter unset.
type Source struct {
	kind  SourceKind
	value float64
	drg   *DRG
	ram   *RAMProfile
}

// Literal returns a constant source.
func Literal(v float64) Source {
	return Source{kind: KindLiteral, value: v}
}

// Ramp returns a source driven by a digital ramp.
func Ramp(drg *DRG) Source {
	return Source{kind: KindRamp, drg: drg}
}

// RAM returns a source driven by a RAM profile.
func RAM(prof *RAMProfile) Source {
	return Source{kind: KindRAM, ram: prof}
}

// Kind returns the kind of the source.
func (src Source) Kind() SourceKind { return src.kind }

// Value returns the value of a literal source.
func (src Source) Value() float64 { return src.value }

// DRG returns the digital ramp of a ramp source.
func (src Source) DRG() *DRG { return src.drg }

// RAMProfile returns the RAM profile of a RAM source.
func (src Source) RAMProfile() *RAMProfile { return src.ram }

// ChannelConfig is the register configuration of one DDS channel.
type ChannelConfig struct {
	DDS *DDS

	// Single-tone and RAM base values.
	FTW uint32
	POW uint16
	ASF uint16

	RAMEnable bool
	RAMDest   RAMDest
	DRGEnable bool
	DRGDest   DRGDest
	OSKEnable bool

	RAM *RAMProfile
	DRG *DRG
}

type slot struct {
	name string
	drg  DRGType
	rams []RAMType
}

var slots = [3]slot{
	{"frequency", DRGFrequency, []RAMType{RAMFrequency}},
	{"phase", DRGPhase, []RAMType{RAMPhase, RAMPolar}},
	{"amplitude", DRGAmplitude, []RAMType{RAMAmplitude, RAMPolar}},
}

// NewChannelConfig validates and combines the sources of the frequency,
// phase and amplitude of dds.
//
// A channel uses at most one digital ramp and one RAM profile. The only
// RAM profile that may drive two parameters is a polar profile, assigned
// to both the phase and the amplitude.
//
// Parameters without a literal source take the base values of the RAM
// profile, if any, or default to 0 Hz, 0 turns and full scale.
func NewChannelConfig(dds *DDS, freq, phase, amp Source) (*ChannelConfig, error) {
	srcs := [3]Source{freq, phase, amp}

	for i, src := range srcs {
		if src.kind != KindRamp {
			continue
		}
		if src.drg == nil {
			return nil, fmt.Errorf("%w: nil DRG for %s", ErrConfig, slots[i].name)
		}
		if src.drg.Type != slots[i].drg {
			return nil, fmt.Errorf(
				"%w: invalid DRG data destination (%v DRG for %s)",
				ErrConfig, src.drg.Type, slots[i].name,
			)
		}
	}

	for i, src := range srcs {
		if src.kind != KindRAM {
			continue
		}
		if src.ram == nil {
			return nil, fmt.Errorf("%w: nil RAM profile for %s", ErrConfig, slots[i].name)
		}
		if !hasRAMType(slots[i].rams, src.ram.Type) {
			return nil, fmt.Errorf(
				"%w: invalid RAM data destination (%v RAM profile for %s)",
				ErrConfig, src.ram.Type, slots[i].name,
			)
		}
	}

	var (
		drgs []*DRG
		rams []*RAMProfile
	)
	for _, src := range srcs {
		switch src.kind {
		case KindRamp:
			drgs = append(drgs, src.drg)
		case KindRAM:
			rams = append(rams, src.ram)
		}
	}

	if len(drgs) > 1 {
		return nil, fmt.Errorf("%w: %s configured with multiple DRGs", ErrConfig, dds.Name())
	}

	if len(rams) > 1 {
		if len(rams) > 2 || freq.kind == KindRAM {
			return nil, fmt.Errorf("%w: %s configured with multiple RAM profiles", ErrConfig, dds.Name())
		}
		if phase.ram.Type != RAMPolar || amp.ram.Type != RAMPolar {
			return nil, fmt.Errorf(
				"%w: only polar RAM profiles may drive both phase and amplitude",
				ErrConfig,
			)
		}
		if phase.ram != amp.ram {
			return nil, fmt.Errorf("%w: %s configured with 2 different polar RAM profiles", ErrConfig, dds.Name())
		}
	}

	cfg := &ChannelConfig{
		DDS: dds,
		ASF: asfMax,
	}

	if len(rams) > 0 {
		cfg.RAM = rams[0]
		cfg.RAMEnable = true
		cfg.RAMDest = cfg.RAM.Dest
		cfg.FTW = cfg.RAM.FTW
		cfg.POW = cfg.RAM.POW
		cfg.ASF = cfg.RAM.ASF
	}

	if freq.kind == KindLiteral {
		cfg.FTW = dds.FrequencyToFTW(freq.value)
	}
	if phase.kind == KindLiteral {
		cfg.POW = dds.TurnsToPOW(phase.value)
	}
	if amp.kind == KindLiteral {
		asf, err := dds.AmplitudeToASF(amp.value)
		if err != nil {
			return nil, err
		}
		cfg.ASF = asf
	}

	if len(drgs) > 0 {
		cfg.DRG = drgs[0]
		cfg.DRGEnable = true
		cfg.DRGDest = cfg.DRG.Dest
	}

	switch {
	case cfg.RAM == nil:
		// single-tone profiles carry their own amplitude.
		cfg.OSKEnable = false
	case cfg.RAM.Type == RAMAmplitude, cfg.RAM.Type == RAMPolar:
		cfg.OSKEnable = false
	case cfg.DRG != nil && cfg.DRG.Type == DRGAmplitude:
		cfg.OSKEnable = false
	default:
		cfg.OSKEnable = true
	}

	return cfg, nil
}

func hasRAMType(types []RAMType, typ RAMType) bool {
	for _, v := range types {
		if v == typ {
			return true
		}
	}
	return false
}
