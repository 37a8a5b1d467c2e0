// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import (
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/urukul/ad9910/internal/regs"
	"github.com/go-lpc/urukul/cpld"
	"github.com/go-lpc/urukul/rtio"
)

// Manager loads the waveforms of several DDS channels into their profile 0
// and switches all the involved boards between profile 0 and the
// single-tone profile 7 at the same timestamp.
//
// Once loaded, a Manager is driven with repeated
// Enable, CommitEnable, Disable, CommitDisable sequences.
// A Manager is not safe for concurrent use.
type Manager struct {
	core  *rtio.Core
	cfgs  []*ChannelConfig
	cplds []*cpld.CPLD
	msg   *log.Logger
}

// NewManager returns a new manager scheduling on the timeline of core.
func NewManager(core *rtio.Core, msg *log.Logger) *Manager {
	if msg == nil {
		msg = log.New(io.Discard, "ad9910: ", 0)
	}
	return &Manager{core: core, msg: msg}
}

// Append adds the channel of dds, with its frequency, phase and amplitude
// sources. All validation happens here, before any hardware access.
func (mgr *Manager) Append(dds *DDS, freq, phase, amp Source) error {
	if dds.core() != mgr.core {
		return fmt.Errorf("%w: %s is not driven by the manager core", ErrConfig, dds.Name())
	}
	for _, cfg := range mgr.cfgs {
		if cfg.DDS == dds {
			return fmt.Errorf("%w: %s already configured", ErrConfig, dds.Name())
		}
	}

	cfg, err := NewChannelConfig(dds, freq, phase, amp)
	if err != nil {
		return fmt.Errorf("ad9910: could not configure %s: %w", dds.Name(), err)
	}
	mgr.cfgs = append(mgr.cfgs, cfg)

	dev := dds.CPLD()
	for _, v := range mgr.cplds {
		if v == dev {
			return nil
		}
	}
	mgr.cplds = append(mgr.cplds, dev)
	return nil
}

// Channels returns the configured channels.
func (mgr *Manager) Channels() []*ChannelConfig { return mgr.cfgs }

// CPLDs returns the boards hosting the configured channels, in order of
// first appearance.
func (mgr *Manager) CPLDs() []*cpld.CPLD { return mgr.cplds }

func (mgr *Manager) hasRAM() bool {
	for _, cfg := range mgr.cfgs {
		if cfg.RAM != nil {
			return true
		}
	}
	return false
}

func (mgr *Manager) hasDRG() bool {
	for _, cfg := range mgr.cfgs {
		if cfg.DRG != nil {
			return true
		}
	}
	return false
}

func (mgr *Manager) err(op string) error {
	if err := mgr.core.Err(); err != nil {
		return fmt.Errorf("ad9910: could not %s: %w", op, err)
	}
	return nil
}

// Load writes the RAM profiles, the digital ramps and the base registers
// of every channel into profile 0.
// All boards are left on profile 7.
func (mgr *Manager) Load() error {
	for _, dev := range mgr.cplds {
		dev.SetProfile(0)
	}

	if mgr.hasRAM() {
		mgr.loadRAM()
	}
	if mgr.hasDRG() {
		mgr.loadDRG()
	}

	for _, cfg := range mgr.cfgs {
		if !cfg.RAMEnable {
			cfg.DDS.setMu(cfg.FTW, cfg.POW, cfg.ASF, 0)
			continue
		}
		cfg.DDS.setMuRAM(cfg.FTW, cfg.POW, cfg.ASF, cfg.RAMDest)
	}

	for _, dev := range mgr.cplds {
		dev.SetProfile(cpld.DefaultProfile)
	}

	err := mgr.err("load profiles")
	if err != nil {
		return err
	}
	mgr.msg.Printf("loaded %d channel(s) on %d board(s)", len(mgr.cfgs), len(mgr.cplds))
	return nil
}

func (mgr *Manager) loadRAM() {
	for _, cfg := range mgr.cfgs {
		if cfg.RAM == nil {
			continue
		}
		dds := cfg.DDS
		dds.write32(regs.CFR1, CFR1{}.Word())
		dds.cpld.IOUpdate(IOUpdateMu)

		dds.setProfileRAM(0, cfg.RAM.Register())
		dds.cpld.IOUpdate(IOUpdateMu)

		dds.writeRAM(cfg.RAM.Data)
		mgr.core.BreakRealtime()
	}
}

func (mgr *Manager) loadDRG() {
	for _, cfg := range mgr.cfgs {
		if cfg.DRG == nil {
			continue
		}
		var (
			dds = cfg.DDS
			drg = cfg.DRG
		)
		dds.write64(regs.RampLimit, uint32(drg.High), uint32(drg.Low))
		dds.write64(regs.RampStep, uint32(-drg.Step), 0)
		dds.write32(regs.RampRate, drg.Rate<<16)
	}
}

// Enable configures every channel for playback from profile 0.
// Playback starts with the next CommitEnable.
func (mgr *Manager) Enable() error {
	for _, cfg := range mgr.cfgs {
		cfg.DDS.write32(regs.CFR1, CFR1{
			RAMEnable:    cfg.RAMEnable,
			RAMDest:      cfg.RAMDest,
			DRGLoadLRR:   cfg.DRGEnable,
			DRGAutoclear: cfg.DRGEnable,
			OSKEnable:    cfg.OSKEnable,
		}.Word())
		cfg.DDS.write32(regs.CFR2, CFR2{
			ASFProfileEnable: true,
			DRGDest:          cfg.DRGDest,
			DRGEnable:        cfg.DRGEnable,
			EffectiveFTW:     true,
			MatchedLatency:   true,
		}.Word())
	}
	return mgr.err("enable profiles")
}

// CommitEnable switches every board to profile 0, at the current
// timeline position.
func (mgr *Manager) CommitEnable() error {
	mgr.commit(0)
	return mgr.err("commit enable")
}

// Disable clears the RAM, DRG and OSK enable bits of every channel.
// Playback stops with the next CommitDisable.
func (mgr *Manager) Disable() error {
	for _, cfg := range mgr.cfgs {
		cfg.DDS.write32(regs.CFR1, CFR1{}.Word())
		cfg.DDS.write32(regs.CFR2, DefaultCFR2().Word())
	}
	return mgr.err("disable profiles")
}

// CommitDisable switches every board back to profile 7, at the current
// timeline position.
func (mgr *Manager) CommitDisable() error {
	mgr.commit(cpld.DefaultProfile)
	return mgr.err("commit disable")
}

// commit issues the profile switch of every board at one timestamp.
// The timeline ends after the last switch.
func (mgr *Manager) commit(profile int) {
	now := mgr.core.Now()
	for _, dev := range mgr.cplds {
		mgr.core.At(now)
		dev.SetProfile(profile)
	}
}
