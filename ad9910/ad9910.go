// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ad9910 encodes waveforms into AD9910 register values and loads
// them onto the DDS chips of Urukul boards.
//
// A waveform parameter (frequency, phase or amplitude) of a channel is
// either a constant, a digital ramp (DRG) or a RAM profile. A Manager
// aggregates the parameters of several channels, loads them into the
// profile 0 registers and switches every board between profile 0 and the
// single-tone profile 7 at one shared timestamp.
package ad9910 // import "github.com/go-lpc/urukul/ad9910"

import (
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/urukul/ad9910/internal/regs"
	"github.com/go-lpc/urukul/cpld"
	"github.com/go-lpc/urukul/rtio"
)

// IOUpdateMu is the width of the IO_UPDATE pulses, in machine units.
const IOUpdateMu = 8

// DDS is an AD9910 chip of an Urukul board.
type DDS struct {
	name string
	cpld *cpld.CPLD
	bus  *rtio.SPIMaster
	cs   uint32

	sysclk   float64
	ftwPerHz float64
	pll      struct {
		en  bool
		n   uint32
		vco uint32
		cp  uint32
	}

	msg *log.Logger
}

// Option configures a DDS.
type Option func(*DDS)

// WithSysClk sets the DDS core clock frequency, in Hz.
func WithSysClk(hz float64) Option {
	return func(dds *DDS) {
		dds.sysclk = hz
	}
}

// WithPLL configures the internal PLL: multiplier n, VCO band vco and
// charge pump current cp.
func WithPLL(n, vco, cp uint32) Option {
	return func(dds *DDS) {
		dds.pll.en = true
		dds.pll.n = n
		dds.pll.vco = vco
		dds.pll.cp = cp
	}
}

// WithoutPLL bypasses the internal PLL.
func WithoutPLL() Option {
	return func(dds *DDS) {
		dds.pll.en = false
	}
}

// WithLogger sets the logger of the DDS.
func WithLogger(msg *log.Logger) Option {
	return func(dds *DDS) {
		dds.msg = msg
	}
}

// New returns the DDS chip selected by cs on the bus of the provided CPLD.
func New(name string, dev *cpld.CPLD, cs int, opts ...Option) (*DDS, error) {
	if cs < cpld.CSDDSMulti || cs > cpld.CSDDSCh3 {
		return nil, fmt.Errorf("%w: invalid chip select %d for %q", ErrConfig, cs, name)
	}

	dds := &DDS{
		name:   name,
		cpld:   dev,
		bus:    dev.Bus(),
		cs:     uint32(cs),
		sysclk: 1e9,
		msg:    log.New(io.Discard, "ad9910: ", 0),
	}
	dds.pll.en = true
	dds.pll.n = 40
	dds.pll.vco = 5
	dds.pll.cp = 7

	for _, opt := range opts {
		opt(dds)
	}

	if dds.sysclk <= 0 {
		return nil, fmt.Errorf("%w: invalid sysclk %g Hz for %q", ErrConfig, dds.sysclk, name)
	}
	dds.ftwPerHz = (1 << 32) / dds.sysclk

	return dds, nil
}

// Name returns the name of the DDS.
func (dds *DDS) Name() string { return dds.name }

// CPLD returns the CPLD of the board hosting the DDS.
func (dds *DDS) CPLD() *cpld.CPLD { return dds.cpld }

// ChipSelect returns the SPI chip select of the DDS.
func (dds *DDS) ChipSelect() int { return int(dds.cs) }

// SysClk returns the DDS core clock frequency, in Hz.
func (dds *DDS) SysClk() float64 { return dds.sysclk }

func (dds *DDS) core() *rtio.Core { return dds.cpld.Core() }

func (dds *DDS) err(op string) error {
	if err := dds.core().Err(); err != nil {
		return fmt.Errorf("ad9910: %s could not %s: %w", dds.name, op, err)
	}
	return nil
}

// Write16 writes a 16-bit register.
func (dds *DDS) Write16(addr uint8, data uint16) error {
	dds.write16(addr, data)
	return dds.err(fmt.Sprintf("write register 0x%02x", addr))
}

// Write32 writes a 32-bit register.
func (dds *DDS) Write32(addr uint8, data uint32) error {
	dds.write32(addr, data)
	return dds.err(fmt.Sprintf("write register 0x%02x", addr))
}

// Write64 writes a 64-bit register.
func (dds *DDS) Write64(addr uint8, hi, lo uint32) error {
	dds.write64(addr, hi, lo)
	return dds.err(fmt.Sprintf("write register 0x%02x", addr))
}

// WriteRAM streams data into the RAM, starting at the address range of
// the currently selected RAM profile. data must be in transmission order.
func (dds *DDS) WriteRAM(data []uint32) error {
	if len(data) > regs.RAMSize {
		return fmt.Errorf("%w: %d words", ErrCapacity, len(data))
	}
	dds.writeRAM(data)
	return dds.err("write RAM")
}

func (dds *DDS) write16(addr uint8, data uint16) {
	dds.bus.SetConfig(cpld.SPIConfig|rtio.SPIEnd, 24, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(uint32(addr)<<24 | uint32(data)<<8)
}

func (dds *DDS) write32(addr uint8, data uint32) {
	dds.bus.SetConfig(cpld.SPIConfig, 8, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(uint32(addr) << 24)
	dds.bus.SetConfig(cpld.SPIConfig|rtio.SPIEnd, 32, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(data)
}

func (dds *DDS) write64(addr uint8, hi, lo uint32) {
	dds.bus.SetConfig(cpld.SPIConfig, 8, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(uint32(addr) << 24)
	dds.bus.SetConfig(cpld.SPIConfig, 32, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(hi)
	dds.bus.SetConfig(cpld.SPIConfig|rtio.SPIEnd, 32, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(lo)
}

func (dds *DDS) writeRAM(data []uint32) {
	if len(data) == 0 {
		return
	}
	dds.bus.SetConfig(cpld.SPIConfig, 8, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(regs.RAM << 24)
	dds.bus.SetConfig(cpld.SPIConfig, 32, cpld.SPITDDSWr, dds.cs)
	last := len(data) - 1
	for _, v := range data[:last] {
		dds.bus.Write(v)
	}
	dds.bus.SetConfig(cpld.SPIConfig|rtio.SPIEnd, 32, cpld.SPITDDSWr, dds.cs)
	dds.bus.Write(data[last])
}

// CFR1 describes the fields of the control function register 1.
type CFR1 struct {
	PowerDown         uint32 // 4 bits
	PhaseAutoclear    bool
	DRGLoadLRR        bool
	DRGAutoclear      bool
	PhaseClear        bool
	InternalProfile   uint32 // 4 bits
	RAMDest           RAMDest
	RAMEnable         bool
	ManualOSKExternal bool
	OSKEnable         bool
	SelectAutoOSK     bool
}

// Word returns the register value.
// SDIO is configured as input only, MSB first.
func (cfr CFR1) Word() uint32 {
	return b2u(cfr.RAMEnable)<<regs.CFR1RAMEnable |
		uint32(cfr.RAMDest)<<regs.CFR1RAMDest |
		b2u(cfr.ManualOSKExternal)<<regs.CFR1ManualOSKExternal |
		cfr.InternalProfile<<regs.CFR1InternalProfile |
		b2u(cfr.DRGLoadLRR)<<regs.CFR1DRGLoadLRR |
		b2u(cfr.DRGAutoclear)<<regs.CFR1DRGAutoclear |
		b2u(cfr.PhaseAutoclear)<<regs.CFR1PhaseAutoclear |
		b2u(cfr.PhaseClear)<<regs.CFR1PhaseClear |
		b2u(cfr.OSKEnable)<<regs.CFR1OSKEnable |
		b2u(cfr.SelectAutoOSK)<<regs.CFR1SelectAutoOSK |
		cfr.PowerDown<<regs.CFR1PowerDown |
		1<<regs.CFR1SDIOInput
}

// CFR2 describes the fields of the control function register 2.
type CFR2 struct {
	ASFProfileEnable      bool
	DRGDest               DRGDest
	DRGEnable             bool
	EffectiveFTW          bool
	MatchedLatency        bool
	SyncValidationDisable bool
}

// DefaultCFR2 returns the power-up CFR2 configuration: amplitude scale
// from the single-tone profiles and read-back of the effective FTW.
func DefaultCFR2() CFR2 {
	return CFR2{
		ASFProfileEnable: true,
		EffectiveFTW:     true,
	}
}

// Word returns the register value.
func (cfr CFR2) Word() uint32 {
	return b2u(cfr.ASFProfileEnable)<<regs.CFR2ASFProfileEnable |
		uint32(cfr.DRGDest)<<regs.CFR2DRGDest |
		b2u(cfr.DRGEnable)<<regs.CFR2DRGEnable |
		b2u(cfr.EffectiveFTW)<<regs.CFR2EffectiveFTW |
		b2u(cfr.MatchedLatency)<<regs.CFR2MatchedLatency |
		b2u(cfr.SyncValidationDisable)<<regs.CFR2SyncValidationDisable
}

// SetCFR1 writes the control function register 1.
func (dds *DDS) SetCFR1(cfr CFR1) error {
	dds.write32(regs.CFR1, cfr.Word())
	return dds.err("set CFR1")
}

// SetCFR2 writes the control function register 2.
func (dds *DDS) SetCFR2(cfr CFR2) error {
	dds.write32(regs.CFR2, cfr.Word())
	return dds.err("set CFR2")
}

// ProfileRAM describes a RAM playback profile register.
type ProfileRAM struct {
	Start        uint32 // first RAM address
	End          uint32 // last RAM address, inclusive
	Step         uint32 // address step rate, in units of 4 sysclk cycles
	NoDwellHigh  bool
	ZeroCrossing bool
	Mode         RAMMode
}

// Words returns the high and low words of the profile register.
func (p ProfileRAM) Words() (hi, lo uint32) {
	hi = p.Step<<regs.RAMStep | p.End>>2
	lo = p.End<<regs.RAMEnd |
		p.Start<<regs.RAMStart |
		b2u(p.NoDwellHigh)<<regs.RAMNoDwellHigh |
		b2u(p.ZeroCrossing)<<regs.RAMZeroCross |
		uint32(p.Mode)
	return hi, lo
}

// SetProfileRAM writes a RAM playback profile.
func (dds *DDS) SetProfileRAM(profile int, p ProfileRAM) error {
	if profile < 0 || profile > 7 {
		return fmt.Errorf("%w: invalid profile %d", ErrConfig, profile)
	}
	dds.setProfileRAM(profile, p)
	return dds.err("set RAM profile")
}

func (dds *DDS) setProfileRAM(profile int, p ProfileRAM) {
	hi, lo := p.Words()
	dds.write64(regs.Profile0+uint8(profile), hi, lo)
}

// SetMu writes a single-tone profile and pulses IO_UPDATE.
func (dds *DDS) SetMu(ftw uint32, pow uint16, asf uint16, profile int) error {
	if profile < 0 || profile > 7 {
		return fmt.Errorf("%w: invalid profile %d", ErrConfig, profile)
	}
	dds.setMu(ftw, pow, asf, profile)
	return dds.err("set single-tone profile")
}

func (dds *DDS) setMu(ftw uint32, pow uint16, asf uint16, profile int) {
	dds.write64(regs.Profile0+uint8(profile), uint32(asf)<<16|uint32(pow), ftw)
	dds.cpld.IOUpdate(IOUpdateMu)
}

// SetMuRAM writes the FTW, POW and ASF registers the RAM does not drive
// when playing back to dest, and pulses IO_UPDATE.
func (dds *DDS) SetMuRAM(ftw uint32, pow uint16, asf uint16, dest RAMDest) error {
	dds.setMuRAM(ftw, pow, asf, dest)
	return dds.err("set RAM base registers")
}

func (dds *DDS) setMuRAM(ftw uint32, pow uint16, asf uint16, dest RAMDest) {
	if dest != RAMDestFTW {
		dds.write32(regs.FTW, ftw)
	}
	if dest != RAMDestPOWASF {
		if dest != RAMDestASF {
			dds.write32(regs.ASF, uint32(asf)<<2)
		}
		if dest != RAMDestPOW {
			dds.write16(regs.POW, pow)
		}
	}
	dds.cpld.IOUpdate(IOUpdateMu)
}

// Set programs a single-tone profile from physical values: frequency in
// Hz, phase in turns and amplitude as a fraction of full scale.
func (dds *DDS) Set(freq, phase, amp float64, profile int) error {
	asf, err := dds.AmplitudeToASF(amp)
	if err != nil {
		return err
	}
	return dds.SetMu(dds.FrequencyToFTW(freq), dds.TurnsToPOW(phase), asf, profile)
}

// Init brings up the DDS: SPI mode, default CFR2 and PLL.
// The PLL lock is not polled: the bus is write-only.
func (dds *DDS) Init() error {
	core := dds.core()

	dds.write32(regs.CFR1, CFR1{}.Word())
	dds.cpld.IOUpdate(core.SecondsToMu(1e-6))
	core.DelayS(1e-3)

	cfr2 := DefaultCFR2()
	cfr2.SyncValidationDisable = true
	dds.write32(regs.CFR2, cfr2.Word())
	dds.cpld.IOUpdate(core.SecondsToMu(1e-6))

	cfr3 := uint32(regs.CFR3Base) |
		dds.pll.vco<<regs.CFR3VCO |
		dds.pll.cp<<regs.CFR3CP |
		b2u(dds.pll.en)<<regs.CFR3PLLEn |
		dds.pll.n<<regs.CFR3PLLN
	dds.write32(regs.CFR3, cfr3|1<<regs.CFR3PFDReset)
	dds.cpld.IOUpdate(core.SecondsToMu(1e-6))
	if dds.pll.en {
		dds.write32(regs.CFR3, cfr3)
		dds.cpld.IOUpdate(core.SecondsToMu(1e-6))
		core.DelayS(100e-3)
	}
	core.DelayS(10e-6)

	err := dds.err("initialize")
	if err != nil {
		return err
	}
	dds.msg.Printf("%s: initialized (sysclk=%g Hz, pll=%v)", dds.name, dds.sysclk, dds.pll.en)
	return nil
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
