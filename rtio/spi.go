// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

// SPI transfer flags.
const (
	SPIOffline     = 0x01
	SPIEnd         = 0x02
	SPIInput       = 0x04
	SPICSPolarity  = 0x08
	SPIClkPolarity = 0x10
	SPIClkPhase    = 0x20
	SPILSBFirst    = 0x40
	SPIHalfDuplex  = 0x80
)

// SPI channel addresses.
const (
	SPIDataAddr   = 0
	SPIConfigAddr = 1
)

// SPIMaster is an RTIO SPI master.
//
// Writes advance the timeline by the transfer duration derived from the
// last configured length and clock divider.
type SPIMaster struct {
	core *Core
	ch   int32
	xfer int64 // transfer duration, in machine units
}

// NewSPIMaster returns an SPI master bound to RTIO channel ch.
func NewSPIMaster(core *Core, ch int32) *SPIMaster {
	return &SPIMaster{core: core, ch: ch}
}

// Channel returns the RTIO channel of the SPI master.
func (spi *SPIMaster) Channel() int32 { return spi.ch }

// XferDuration returns the duration of one transfer with the current
// configuration, in machine units.
func (spi *SPIMaster) XferDuration() int64 { return spi.xfer }

// SetConfig configures the SPI master for the next transfers and
// advances the timeline by one coarse clock cycle.
// length is the transfer length in bits, div the clock divider and cs
// the chip select mask.
func (spi *SPIMaster) SetConfig(flags uint32, length, div int, cs uint32) {
	ref := spi.core.CoarsePeriodMu()
	spi.core.Output(
		spi.ch, SPIConfigAddr,
		flags|uint32(length-1)<<8|uint32(div-2)<<16|cs<<24,
	)
	spi.xfer = int64((length+1)*div+1) * ref
	spi.core.Delay(ref)
}

// Write submits one transfer and advances the timeline by its duration.
// Data is left-aligned: only the top length bits are shifted out.
func (spi *SPIMaster) Write(data uint32) {
	spi.core.Output(spi.ch, SPIDataAddr, data)
	spi.core.Delay(spi.xfer)
}
