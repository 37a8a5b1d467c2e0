// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import "fmt"

// CPLD describes an Urukul board and the RTIO channels wired to it.
type CPLD struct {
	Name     string
	SPI      int32 // RTIO channel of the SPI master
	IOUpdate int32 // RTIO channel of the IO_UPDATE line
	ClkSel   uint32
	ClkDiv   uint32
	SyncSel  uint32
}

// Channel describes one AD9910 channel of an Urukul board.
type Channel struct {
	Name       string
	CPLD       string // name of the hosting CPLD
	ChipSelect int
	SysClk     float64 // Hz
	PLLN       uint32  // PLL multiplier, 0 when the PLL is bypassed
}

// Devices is the device registry of a setup.
type Devices struct {
	CPLDs    []CPLD
	Channels []Channel
}

// CPLD returns the CPLD named name.
func (devs Devices) CPLD(name string) (CPLD, bool) {
	for _, dev := range devs.CPLDs {
		if dev.Name == name {
			return dev, true
		}
	}
	return CPLD{}, false
}

// Channel returns the DDS channel named name.
func (devs Devices) Channel(name string) (Channel, bool) {
	for _, ch := range devs.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

func (devs Devices) validate() error {
	seen := make(map[string]struct{}, len(devs.CPLDs)+len(devs.Channels))
	for _, dev := range devs.CPLDs {
		if _, dup := seen[dev.Name]; dup {
			return fmt.Errorf("conddb: duplicate device %q", dev.Name)
		}
		seen[dev.Name] = struct{}{}
	}
	for _, ch := range devs.Channels {
		if _, dup := seen[ch.Name]; dup {
			return fmt.Errorf("conddb: duplicate device %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}
		if _, ok := devs.CPLD(ch.CPLD); !ok {
			return fmt.Errorf("conddb: channel %q refers to unknown cpld %q", ch.Name, ch.CPLD)
		}
	}
	return nil
}
