// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the AD9910 register map.
package regs // import "github.com/go-lpc/urukul/ad9910/internal/regs"

// Register addresses.
const (
	CFR1      = 0x00
	CFR2      = 0x01
	CFR3      = 0x02
	AuxDAC    = 0x03
	IOUpdate  = 0x04
	FTW       = 0x07
	POW       = 0x08
	ASF       = 0x09
	Sync      = 0x0a
	RampLimit = 0x0b
	RampStep  = 0x0c
	RampRate  = 0x0d
	Profile0  = 0x0e
	Profile1  = 0x0f
	Profile2  = 0x10
	Profile3  = 0x11
	Profile4  = 0x12
	Profile5  = 0x13
	Profile6  = 0x14
	Profile7  = 0x15
	RAM       = 0x16
)

// CFR1 bit offsets.
const (
	CFR1RAMEnable         = 31
	CFR1RAMDest           = 29
	CFR1ManualOSKExternal = 23
	CFR1InternalProfile   = 17
	CFR1DRGLoadLRR        = 15
	CFR1DRGAutoclear      = 14
	CFR1PhaseAutoclear    = 13
	CFR1PhaseClear        = 11
	CFR1OSKEnable         = 9
	CFR1SelectAutoOSK     = 8
	CFR1PowerDown         = 4
	CFR1SDIOInput         = 1
)

// CFR2 bit offsets.
const (
	CFR2ASFProfileEnable      = 24
	CFR2DRGDest               = 20
	CFR2DRGEnable             = 19
	CFR2EffectiveFTW          = 16
	CFR2MatchedLatency        = 7
	CFR2SyncValidationDisable = 5
)

// CFR3 fields.
const (
	CFR3Base     = 0x0807c000
	CFR3VCO      = 24
	CFR3CP       = 19
	CFR3PFDReset = 10
	CFR3PLLEn    = 8
	CFR3PLLN     = 1
)

// RAM profile fields.
const (
	RAMStep        = 8  // high word
	RAMEnd         = 30 // low word, low bits of the end address
	RAMStart       = 14
	RAMNoDwellHigh = 5
	RAMZeroCross   = 3
)

// RAMSize is the number of 32-bit words of the RAM.
const RAMSize = 1024
