// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-lpc/urukul/internal/mmap"
)

// Register map of the RTIO output interface, relative to its base address.
const (
	mmioCounter = 0x00 // u64, hardware counter (read)
	mmioNow     = 0x08 // u64, event timestamp
	mmioTarget  = 0x10 // u32, channel<<8 | address
	mmioData    = 0x14 // u32, payload
	mmioWE      = 0x18 // u32, write 1 to submit
	mmioStatus  = 0x1c // u32, output status (read), write to clear

	// MMIOSpan is the size of the RTIO output register bank.
	MMIOSpan = 0x1000
)

// Output status bits.
const (
	statusWait      = 1 << 0
	statusUnderflow = 1 << 1
	statusSequence  = 1 << 2
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// MMIO is an RTIO output queue driven through memory-mapped registers.
type MMIO struct {
	rw   rwer
	h    *mmap.Handle
	poll int

	err  error
	cerr error // counter read error, reported by the next Write
	xbuf [8]byte
}

// OpenMMIO maps the RTIO output registers located at base in the named
// memory device (usually /dev/mem).
func OpenMMIO(devmem string, base int64) (*MMIO, error) {
	h, err := mmap.Open(devmem, base, MMIOSpan)
	if err != nil {
		return nil, fmt.Errorf("rtio: could not map RTIO registers: %w", err)
	}
	return &MMIO{rw: h, h: h, poll: 1 << 16}, nil
}

// Close unmaps the RTIO registers.
func (m *MMIO) Close() error {
	if m.h == nil {
		return nil
	}
	err := m.h.Close()
	if err != nil {
		return fmt.Errorf("rtio: could not unmap RTIO registers: %w", err)
	}
	return nil
}

// Counter returns the current value of the hardware counter.
// A failed read returns 0 and fails the next Write.
func (m *MMIO) Counter() int64 {
	m.err = nil
	v := m.readU64(mmioCounter)
	if m.err != nil {
		if m.cerr == nil {
			m.cerr = m.err
		}
		m.err = nil
		return 0
	}
	return int64(v)
}

func (m *MMIO) Write(evt Event) error {
	if err := m.cerr; err != nil {
		m.cerr = nil
		return err
	}
	m.err = nil
	m.writeU64(mmioNow, uint64(evt.Time))
	m.writeU32(mmioTarget, uint32(evt.Channel)<<8|uint32(evt.Addr))
	m.writeU32(mmioData, evt.Data)
	m.writeU32(mmioWE, 1)

	var status uint32
	for i := 0; i < m.poll; i++ {
		status = m.readU32(mmioStatus)
		if status&statusWait == 0 {
			break
		}
	}
	if m.err != nil {
		return m.err
	}

	switch {
	case status&statusUnderflow != 0:
		m.writeU32(mmioStatus, statusUnderflow)
		return fmt.Errorf("%w: channel %d, timestamp %d", ErrUnderflow, evt.Channel, evt.Time)
	case status&statusSequence != 0:
		m.writeU32(mmioStatus, statusSequence)
		return fmt.Errorf("%w: channel %d, timestamp %d", ErrSequence, evt.Channel, evt.Time)
	case status&statusWait != 0:
		return fmt.Errorf("%w: channel %d, timestamp %d", ErrOverflow, evt.Channel, evt.Time)
	}
	return m.err
}

func (m *MMIO) readU32(off int64) uint32 {
	if m.err != nil {
		return 0
	}
	_, m.err = m.rw.ReadAt(m.xbuf[:4], off)
	if m.err != nil {
		m.err = fmt.Errorf("rtio: could not read register 0x%x: %w", off, m.err)
		return 0
	}
	return binary.LittleEndian.Uint32(m.xbuf[:4])
}

func (m *MMIO) readU64(off int64) uint64 {
	if m.err != nil {
		return 0
	}
	_, m.err = m.rw.ReadAt(m.xbuf[:8], off)
	if m.err != nil {
		m.err = fmt.Errorf("rtio: could not read register 0x%x: %w", off, m.err)
		return 0
	}
	return binary.LittleEndian.Uint64(m.xbuf[:8])
}

func (m *MMIO) writeU32(off int64, v uint32) {
	if m.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(m.xbuf[:4], v)
	_, m.err = m.rw.WriteAt(m.xbuf[:4], off)
	if m.err != nil {
		m.err = fmt.Errorf("rtio: could not write register 0x%x: %w", off, m.err)
	}
}

func (m *MMIO) writeU64(off int64, v uint64) {
	if m.err != nil {
		return
	}
	binary.LittleEndian.PutUint64(m.xbuf[:8], v)
	_, m.err = m.rw.WriteAt(m.xbuf[:8], off)
	if m.err != nil {
		m.err = fmt.Errorf("rtio: could not write register 0x%x: %w", off, m.err)
	}
}

var (
	_ Output = (*MMIO)(nil)
)
