// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package design

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/go-lpc/urukul/ad9910"
	"github.com/go-lpc/urukul/cpld"
	"github.com/go-lpc/urukul/rtio"
)

// Setup holds the devices, ramps and RAM profiles of a design, and the
// manager driving them.
type Setup struct {
	CPLDs   map[string]*cpld.CPLD
	DDS     map[string]*ad9910.DDS
	DRGs    map[string]*ad9910.DRG
	RAMs    map[string]*ad9910.RAMProfile
	Manager *ad9910.Manager
}

// CoreOptions returns the timeline options of the design.
func (d *Design) CoreOptions() []rtio.Option {
	var opts []rtio.Option
	if d.Timing.RefPeriod > 0 {
		opts = append(opts, rtio.WithRefPeriod(d.Timing.RefPeriod))
		if d.Timing.Slack > 0 {
			slack := int64(d.Timing.Slack / d.Timing.RefPeriod)
			opts = append(opts, rtio.WithSlack(slack))
		}
	}
	return opts
}

// Build creates the devices of the design on the timeline of core, and
// appends every channel to a new manager.
// No event is submitted to core.
func (d *Design) Build(core *rtio.Core, msg *log.Logger) (*Setup, error) {
	if msg == nil {
		msg = log.New(io.Discard, "design: ", 0)
	}

	setup := &Setup{
		CPLDs:   make(map[string]*cpld.CPLD, len(d.CPLDs)),
		DDS:     make(map[string]*ad9910.DDS, len(d.Devices)),
		DRGs:    make(map[string]*ad9910.DRG, len(d.DRGs)),
		RAMs:    make(map[string]*ad9910.RAMProfile, len(d.RAMs)),
		Manager: ad9910.NewManager(core, msg),
	}

	for _, spec := range d.CPLDs {
		if _, dup := setup.CPLDs[spec.Name]; dup {
			return nil, fmt.Errorf("design: duplicate cpld %q", spec.Name)
		}
		setup.CPLDs[spec.Name] = cpld.New(
			spec.Name, core,
			rtio.NewSPIMaster(core, spec.SPI),
			rtio.NewTTL(core, spec.IOUpdate),
			cpld.WithClkSel(spec.ClkSel),
			cpld.WithClkDiv(spec.ClkDiv),
			cpld.WithSyncSel(spec.SyncSel),
		)
	}

	for _, spec := range d.Devices {
		if _, dup := setup.DDS[spec.Name]; dup {
			return nil, fmt.Errorf("design: duplicate device %q", spec.Name)
		}
		dev, ok := setup.CPLDs[spec.CPLD]
		if !ok {
			return nil, fmt.Errorf("design: device %q refers to unknown cpld %q", spec.Name, spec.CPLD)
		}
		opts := []ad9910.Option{ad9910.WithLogger(msg)}
		if spec.SysClk != 0 {
			opts = append(opts, ad9910.WithSysClk(spec.SysClk))
		}
		switch spec.PLLN {
		case 0:
			opts = append(opts, ad9910.WithoutPLL())
		default:
			opts = append(opts, ad9910.WithPLL(spec.PLLN, 5, 7))
		}
		dds, err := ad9910.New(spec.Name, dev, spec.ChipSelect, opts...)
		if err != nil {
			return nil, fmt.Errorf("design: could not create device %q: %w", spec.Name, err)
		}
		setup.DDS[spec.Name] = dds
	}

	for _, spec := range d.DRGs {
		if _, dup := setup.DRGs[spec.Name]; dup {
			return nil, fmt.Errorf("design: duplicate drg %q", spec.Name)
		}
		drg, err := spec.build(setup)
		if err != nil {
			return nil, fmt.Errorf("design: could not build drg %q: %w", spec.Name, err)
		}
		setup.DRGs[spec.Name] = drg
	}

	for _, spec := range d.RAMs {
		if _, dup := setup.RAMs[spec.Name]; dup {
			return nil, fmt.Errorf("design: duplicate ram profile %q", spec.Name)
		}
		ram, err := spec.build(setup)
		if err != nil {
			return nil, fmt.Errorf("design: could not build ram profile %q: %w", spec.Name, err)
		}
		setup.RAMs[spec.Name] = ram
	}

	for _, spec := range d.Channels {
		dds, ok := setup.DDS[spec.Device]
		if !ok {
			return nil, fmt.Errorf("design: channel refers to unknown device %q", spec.Device)
		}
		var srcs [3]ad9910.Source
		for i, src := range []SourceSpec{spec.Frequency, spec.Phase, spec.Amplitude} {
			v, err := src.source(setup)
			if err != nil {
				return nil, fmt.Errorf(
					"design: invalid %s source for %q: %w",
					sourceNames[i], spec.Device, err,
				)
			}
			srcs[i] = v
		}
		err := setup.Manager.Append(dds, srcs[0], srcs[1], srcs[2])
		if err != nil {
			return nil, fmt.Errorf("design: could not append channel %q: %w", spec.Device, err)
		}
	}

	return setup, nil
}

var sourceNames = [3]string{"frequency", "phase", "amplitude"}

// Names returns the sorted names of the DDS channels of the setup.
func (setup *Setup) Names() []string {
	names := make([]string, 0, len(setup.DDS))
	for name := range setup.DDS {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CPLDNames returns the sorted names of the CPLDs of the setup.
func (setup *Setup) CPLDNames() []string {
	names := make([]string, 0, len(setup.CPLDs))
	for name := range setup.CPLDs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (spec DRGSpec) build(setup *Setup) (*ad9910.DRG, error) {
	dds, ok := setup.DDS[spec.Device]
	if !ok {
		return nil, fmt.Errorf("unknown device %q", spec.Device)
	}
	typ, err := ad9910.ParseDRGType(spec.Type)
	if err != nil {
		return nil, err
	}

	var opts []ad9910.DRGOption
	if spec.Steps != 0 {
		opts = append(opts, ad9910.WithNumSteps(spec.Steps))
	}
	if spec.StepGap != nil {
		opts = append(opts, ad9910.WithStepGap(*spec.StepGap))
	}
	if spec.Fine {
		opts = append(opts, ad9910.WithFineStep())
	}
	if spec.DwellHigh != nil {
		opts = append(opts, ad9910.WithDwellHigh(*spec.DwellHigh))
	}

	return ad9910.NewDRG(dds, spec.Start, spec.End, spec.Interval, typ, opts...)
}

func (spec RAMSpec) build(setup *Setup) (*ad9910.RAMProfile, error) {
	dds, ok := setup.DDS[spec.Device]
	if !ok {
		return nil, fmt.Errorf("unknown device %q", spec.Device)
	}
	typ, err := ad9910.ParseRAMType(spec.Type)
	if err != nil {
		return nil, err
	}
	mode, err := ad9910.ParseRAMMode(spec.Mode)
	if err != nil {
		return nil, err
	}

	var data ad9910.RAMData
	switch typ {
	case ad9910.RAMPolar:
		if len(spec.Phase) != len(spec.Data) {
			return nil, fmt.Errorf(
				"%w: polar profile with %d phases and %d amplitudes",
				ad9910.ErrConfig, len(spec.Phase), len(spec.Data),
			)
		}
		samples := make([]ad9910.PolarSample, len(spec.Data))
		for i := range samples {
			samples[i] = ad9910.PolarSample{
				Phase:     spec.Phase[i],
				Amplitude: spec.Data[i],
			}
		}
		data = ad9910.PolarSamples(samples...)
	default:
		if len(spec.Phase) != 0 {
			return nil, fmt.Errorf("%w: phases given for a %v profile", ad9910.ErrConfig, typ)
		}
		data = ad9910.Samples(spec.Data...)
	}

	var opts []ad9910.RAMOption
	if spec.BaseFrequency != nil {
		opts = append(opts, ad9910.WithBaseFrequency(*spec.BaseFrequency))
	}
	if spec.BasePhase != nil {
		opts = append(opts, ad9910.WithBasePhase(*spec.BasePhase))
	}
	if spec.BaseAmplitude != nil {
		opts = append(opts, ad9910.WithBaseAmplitude(*spec.BaseAmplitude))
	}

	return ad9910.NewRAMProfile(dds, data, spec.Interval, typ, mode, opts...)
}

func (spec SourceSpec) source(setup *Setup) (ad9910.Source, error) {
	n := 0
	if spec.Value != nil {
		n++
	}
	if spec.DRG != "" {
		n++
	}
	if spec.RAM != "" {
		n++
	}

	switch {
	case n > 1:
		return ad9910.Source{}, fmt.Errorf("%w: more than one source kind", ad9910.ErrConfig)
	case spec.Value != nil:
		return ad9910.Literal(*spec.Value), nil
	case spec.DRG != "":
		drg, ok := setup.DRGs[spec.DRG]
		if !ok {
			return ad9910.Source{}, fmt.Errorf("%w: unknown drg %q", ad9910.ErrConfig, spec.DRG)
		}
		return ad9910.Ramp(drg), nil
	case spec.RAM != "":
		ram, ok := setup.RAMs[spec.RAM]
		if !ok {
			return ad9910.Source{}, fmt.Errorf("%w: unknown ram profile %q", ad9910.ErrConfig, spec.RAM)
		}
		return ad9910.RAM(ram), nil
	default:
		return ad9910.Source{}, nil
	}
}
