// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpld drives the CPLD of an Urukul board: the configuration
// register (RF switches, profile pins, clock selection, resets), the
// step attenuators and the IO_UPDATE line shared by its four DDS chips.
package cpld // import "github.com/go-lpc/urukul/cpld"

import (
	"fmt"
	"math"

	"github.com/go-lpc/urukul/rtio"
)

// Configuration register bit offsets.
const (
	CfgRFSw     = 0
	CfgLED      = 4
	CfgProfile  = 8
	CfgIOUpdate = 12
	CfgMaskNU   = 13
	CfgClkSel0  = 17
	CfgSyncSel  = 18
	CfgRst      = 19
	CfgIORst    = 20
	CfgClkSel1  = 21
	CfgClkDiv   = 22
)

// SPI chip selects.
const (
	CSCfg      = 1
	CSAtt      = 2
	CSDDSMulti = 3
	CSDDSCh0   = 4
	CSDDSCh1   = 5
	CSDDSCh2   = 6
	CSDDSCh3   = 7
)

// SPIConfig is the base SPI configuration of the Urukul bus.
const SPIConfig = rtio.SPICSPolarity

// SPI clock dividers.
const (
	SPITCfgWr = 2
	SPITAttWr = 6
	SPITDDSWr = 2
)

// DefaultProfile is the single-tone profile selected at power-up.
const DefaultProfile = 7

// Cfg describes the fields of the configuration register.
type Cfg struct {
	RFSw     uint32 // RF switch mask, one bit per channel
	LED      uint32
	Profile  uint32
	IOUpdate uint32
	MaskNU   uint32
	ClkSel   uint32
	SyncSel  uint32
	Rst      uint32
	IORst    uint32
	ClkDiv   uint32
}

// Word returns the configuration register value.
func (cfg Cfg) Word() uint32 {
	return cfg.RFSw<<CfgRFSw |
		cfg.LED<<CfgLED |
		cfg.Profile<<CfgProfile |
		cfg.IOUpdate<<CfgIOUpdate |
		cfg.MaskNU<<CfgMaskNU |
		(cfg.ClkSel&0x01)<<CfgClkSel0 |
		(cfg.ClkSel&0x02)<<(CfgClkSel1-1) |
		cfg.SyncSel<<CfgSyncSel |
		cfg.Rst<<CfgRst |
		cfg.IORst<<CfgIORst |
		cfg.ClkDiv<<CfgClkDiv
}

// CPLD is an Urukul CPLD.
type CPLD struct {
	name string
	core *rtio.Core
	bus  *rtio.SPIMaster
	ioup *rtio.TTL

	clkSel  uint32
	clkDiv  uint32
	syncSel uint32

	cfg uint32 // shadow of the configuration register
	att uint32 // shadow of the attenuator register
}

// Option configures a CPLD.
type Option func(*CPLD)

// WithClkSel selects the reference clock source.
func WithClkSel(v uint32) Option {
	return func(dev *CPLD) {
		dev.clkSel = v
	}
}

// WithClkDiv sets the reference clock divider field.
func WithClkDiv(v uint32) Option {
	return func(dev *CPLD) {
		dev.clkDiv = v
	}
}

// WithSyncSel selects the SYNC_IN source.
func WithSyncSel(v uint32) Option {
	return func(dev *CPLD) {
		dev.syncSel = v
	}
}

// New returns a CPLD driven through the bus SPI master, with the ioup TTL
// line wired to the IO_UPDATE pin of its DDS chips.
func New(name string, core *rtio.Core, bus *rtio.SPIMaster, ioup *rtio.TTL, opts ...Option) *CPLD {
	dev := &CPLD{
		name: name,
		core: core,
		bus:  bus,
		ioup: ioup,
	}
	for _, opt := range opts {
		opt(dev)
	}
	dev.cfg = dev.baseCfg(0).Word()
	return dev
}

func (dev *CPLD) baseCfg(rfsw uint32) Cfg {
	return Cfg{
		RFSw:    rfsw,
		Profile: DefaultProfile,
		ClkSel:  dev.clkSel,
		SyncSel: dev.syncSel,
		ClkDiv:  dev.clkDiv,
	}
}

// Name returns the name of the CPLD.
func (dev *CPLD) Name() string { return dev.name }

// Core returns the RTIO core driving the CPLD.
func (dev *CPLD) Core() *rtio.Core { return dev.core }

// Bus returns the SPI master shared by the CPLD and its DDS chips.
func (dev *CPLD) Bus() *rtio.SPIMaster { return dev.bus }

// CfgReg returns the last value written to the configuration register.
func (dev *CPLD) CfgReg() uint32 { return dev.cfg }

// AttReg returns the last value written to the attenuator register.
func (dev *CPLD) AttReg() uint32 { return dev.att }

// Profile returns the currently selected profile.
func (dev *CPLD) Profile() int {
	return int(dev.cfg>>CfgProfile) & 7
}

// Init resets the DDS chips and the IO logic, and loads the default
// configuration.
func (dev *CPLD) Init() error {
	cfg := dev.baseCfg(0).Word()
	dev.CfgWrite(cfg | 1<<CfgRst | 1<<CfgIORst)
	dev.core.DelayS(100e-6)
	dev.CfgWrite(cfg)
	dev.core.DelayS(1e-3)
	return dev.err("initialize")
}

// CfgWrite writes the configuration register.
func (dev *CPLD) CfgWrite(cfg uint32) {
	dev.bus.SetConfig(SPIConfig|rtio.SPIEnd, 24, SPITCfgWr, CSCfg)
	dev.bus.Write(cfg << 8)
	dev.cfg = cfg
}

// SetProfile drives the profile pins of all the DDS chips.
func (dev *CPLD) SetProfile(profile int) {
	cfg := dev.cfg &^ (7 << CfgProfile)
	cfg |= uint32(profile&7) << CfgProfile
	dev.CfgWrite(cfg)
}

// CfgSwitch opens or closes the RF switch of channel ch.
func (dev *CPLD) CfgSwitch(ch int, on bool) {
	cfg := dev.cfg
	if on {
		cfg |= 1 << (CfgRFSw + ch)
	} else {
		cfg &^= 1 << (CfgRFSw + ch)
	}
	dev.CfgWrite(cfg)
}

// IOUpdate pulses the IO_UPDATE line for d machine units, latching the
// buffered registers of the DDS chips.
func (dev *CPLD) IOUpdate(d int64) {
	dev.ioup.PulseMu(d)
}

// SetAllAttMu writes the four attenuators at once.
func (dev *CPLD) SetAllAttMu(att uint32) {
	dev.bus.SetConfig(SPIConfig|rtio.SPIEnd, 32, SPITAttWr, CSAtt)
	dev.bus.Write(att)
	dev.att = att
}

// SetAttMu sets the attenuator of channel ch, in machine units.
func (dev *CPLD) SetAttMu(ch int, att uint8) {
	a := dev.att &^ (0xff << (8 * ch))
	a |= uint32(att) << (8 * ch)
	dev.SetAllAttMu(a)
}

// SetAtt sets the attenuation of channel ch, in dB.
func (dev *CPLD) SetAtt(ch int, att float64) error {
	mu, err := AttToMu(att)
	if err != nil {
		return err
	}
	dev.SetAttMu(ch, mu)
	return dev.err("set attenuation")
}

// AttToMu converts an attenuation in dB to the attenuator register value.
// Valid values span 0 dB to 31.875 dB, by steps of 0.125 dB.
func AttToMu(att float64) (uint8, error) {
	code := 255 - int(math.Round(att*8))
	if code < 0 || code > 255 {
		return 0, fmt.Errorf("cpld: invalid attenuation %g dB", att)
	}
	return uint8(code), nil
}

func (dev *CPLD) err(op string) error {
	if err := dev.core.Err(); err != nil {
		return fmt.Errorf("cpld: %s could not %s: %w", dev.name, op, err)
	}
	return nil
}
