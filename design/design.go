// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package design describes waveform designs: the Urukul devices of a setup,
// the digital ramps and RAM profiles played back by their DDS channels,
// and the sources driving each channel.
//
// Designs are stored as YAML files:
//
//	timing:
//	  ref_period: 1e-9
//	  slack: 125e-6
//	cplds:
//	  - name: urukul0_cpld
//	    spi: 10
//	    io_update: 11
//	devices:
//	  - name: urukul0_ch0
//	    cpld: urukul0_cpld
//	    chip_select: 4
//	    sysclk: 1e9
//	drgs:
//	  - name: sweep
//	    device: urukul0_ch0
//	    type: frequency
//	    start: 1e6
//	    end: 10e6
//	    interval: 4e-6
//	    steps: 10
//	rams:
//	  - name: amp
//	    device: urukul0_ch0
//	    type: amplitude
//	    mode: cont_rampup
//	    interval: 4e-6
//	    data: [0.1, 0.2, 0.3]
//	channels:
//	  - device: urukul0_ch0
//	    frequency: {drg: sweep}
//	    phase: {value: 0}
//	    amplitude: {ram: amp}
package design // import "github.com/go-lpc/urukul/design"

import (
	"fmt"
	"io"

	"github.com/go-lpc/urukul/conddb"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"
)

// Design is a waveform design.
type Design struct {
	Timing   Timing        `koanf:"timing" yaml:"timing"`
	CPLDs    []CPLDSpec    `koanf:"cplds" yaml:"cplds"`
	Devices  []DeviceSpec  `koanf:"devices" yaml:"devices"`
	DRGs     []DRGSpec     `koanf:"drgs" yaml:"drgs"`
	RAMs     []RAMSpec     `koanf:"rams" yaml:"rams"`
	Channels []ChannelSpec `koanf:"channels" yaml:"channels"`
}

// Timing configures the real-time timeline.
type Timing struct {
	RefPeriod float64 `koanf:"ref_period" yaml:"ref_period"` // duration of a machine unit, in seconds
	Slack     float64 `koanf:"slack" yaml:"slack"`           // margin ahead of the hardware counter, in seconds
}

// CPLDSpec describes an Urukul board.
type CPLDSpec struct {
	Name     string `koanf:"name" yaml:"name"`
	SPI      int32  `koanf:"spi" yaml:"spi"`
	IOUpdate int32  `koanf:"io_update" yaml:"io_update"`
	ClkSel   uint32 `koanf:"clk_sel" yaml:"clk_sel,omitempty"`
	ClkDiv   uint32 `koanf:"clk_div" yaml:"clk_div,omitempty"`
	SyncSel  uint32 `koanf:"sync_sel" yaml:"sync_sel,omitempty"`
}

// DeviceSpec describes an AD9910 channel.
type DeviceSpec struct {
	Name       string  `koanf:"name" yaml:"name"`
	CPLD       string  `koanf:"cpld" yaml:"cpld"`
	ChipSelect int     `koanf:"chip_select" yaml:"chip_select"`
	SysClk     float64 `koanf:"sysclk" yaml:"sysclk"`
	PLLN       uint32  `koanf:"pll_n" yaml:"pll_n,omitempty"`
}

// DRGSpec describes a digital ramp.
// Exactly one of Steps, StepGap and Fine must be set.
type DRGSpec struct {
	Name      string   `koanf:"name" yaml:"name"`
	Device    string   `koanf:"device" yaml:"device"`
	Type      string   `koanf:"type" yaml:"type"`
	Start     float64  `koanf:"start" yaml:"start"`
	End       float64  `koanf:"end" yaml:"end"`
	Interval  float64  `koanf:"interval" yaml:"interval"`
	Steps     int      `koanf:"steps" yaml:"steps,omitempty"`
	StepGap   *float64 `koanf:"step_gap" yaml:"step_gap,omitempty"`
	Fine      bool     `koanf:"fine" yaml:"fine,omitempty"`
	DwellHigh *bool    `koanf:"dwell_high" yaml:"dwell_high,omitempty"`
}

// RAMSpec describes a RAM profile.
// Polar profiles take their amplitudes from Data and their phases from
// Phase.
type RAMSpec struct {
	Name     string    `koanf:"name" yaml:"name"`
	Device   string    `koanf:"device" yaml:"device"`
	Type     string    `koanf:"type" yaml:"type"`
	Mode     string    `koanf:"mode" yaml:"mode"`
	Interval float64   `koanf:"interval" yaml:"interval"`
	Data     []float64 `koanf:"data" yaml:"data,flow"`
	Phase    []float64 `koanf:"phase" yaml:"phase,flow,omitempty"`

	BaseFrequency *float64 `koanf:"base_frequency" yaml:"base_frequency,omitempty"`
	BasePhase     *float64 `koanf:"base_phase" yaml:"base_phase,omitempty"`
	BaseAmplitude *float64 `koanf:"base_amplitude" yaml:"base_amplitude,omitempty"`
}

// ChannelSpec describes the sources driving a DDS channel.
type ChannelSpec struct {
	Device    string     `koanf:"device" yaml:"device"`
	Frequency SourceSpec `koanf:"frequency" yaml:"frequency,flow"`
	Phase     SourceSpec `koanf:"phase" yaml:"phase,flow"`
	Amplitude SourceSpec `koanf:"amplitude" yaml:"amplitude,flow"`
}

// SourceSpec selects a literal value, a digital ramp or a RAM profile.
type SourceSpec struct {
	Value *float64 `koanf:"value" yaml:"value,omitempty"`
	DRG   string   `koanf:"drg" yaml:"drg,omitempty"`
	RAM   string   `koanf:"ram" yaml:"ram,omitempty"`
}

// Default returns the default design: an empty setup on a nanosecond
// timeline.
func Default() Design {
	return Design{
		Timing: Timing{
			RefPeriod: 1e-9,
			Slack:     125e-6,
		},
	}
}

// Load reads the design file fname.
// Settings missing from the file take their default values.
func Load(fname string) (*Design, error) {
	k := koanf.New(".")
	err := k.Load(structs.Provider(Default(), "koanf"), nil)
	if err != nil {
		return nil, fmt.Errorf("design: could not load defaults: %w", err)
	}

	err = k.Load(file.Provider(fname), yaml.Parser())
	if err != nil {
		return nil, fmt.Errorf("design: could not load %q: %w", fname, err)
	}

	return unmarshal(k)
}

// Parse decodes a design from its YAML representation.
func Parse(raw []byte) (*Design, error) {
	k := koanf.New(".")
	err := k.Load(structs.Provider(Default(), "koanf"), nil)
	if err != nil {
		return nil, fmt.Errorf("design: could not load defaults: %w", err)
	}

	err = k.Load(rawbytes.Provider(raw), yaml.Parser())
	if err != nil {
		return nil, fmt.Errorf("design: could not parse design: %w", err)
	}

	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (*Design, error) {
	var d Design
	err := k.Unmarshal("", &d)
	if err != nil {
		return nil, fmt.Errorf("design: could not decode design: %w", err)
	}
	return &d, nil
}

// Write encodes the design as YAML.
func (d *Design) Write(w io.Writer) error {
	enc := yml.NewEncoder(w)
	defer enc.Close()

	err := enc.Encode(d)
	if err != nil {
		return fmt.Errorf("design: could not encode design: %w", err)
	}
	return nil
}

// UseDevices replaces the CPLDs and the channels of the design with the
// ones of a device registry.
func (d *Design) UseDevices(devs conddb.Devices) {
	d.CPLDs = make([]CPLDSpec, len(devs.CPLDs))
	for i, dev := range devs.CPLDs {
		d.CPLDs[i] = CPLDSpec{
			Name:     dev.Name,
			SPI:      dev.SPI,
			IOUpdate: dev.IOUpdate,
			ClkSel:   dev.ClkSel,
			ClkDiv:   dev.ClkDiv,
			SyncSel:  dev.SyncSel,
		}
	}

	d.Devices = make([]DeviceSpec, len(devs.Channels))
	for i, ch := range devs.Channels {
		d.Devices[i] = DeviceSpec{
			Name:       ch.Name,
			CPLD:       ch.CPLD,
			ChipSelect: ch.ChipSelect,
			SysClk:     ch.SysClk,
			PLLN:       ch.PLLN,
		}
	}
}
