// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/snksoft/crc"
)

const (
	dumpMagic   = "RTIO"
	dumpVersion = 1

	evtMarker = 0xe0 // event marker
	endMarker = 0xa0 // trailer marker
)

var crcTable = crc.NewTable(crc.XMODEM)

// Encoder writes a stream of RTIO events.
// Encoder computes the CRC-16 checksum of the stream on the fly and
// appends it, together with the number of events, when closed.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc uint64
	n   uint32
	hdr bool
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crcTable.InitCrc(),
	}
}

// Encode writes one event to the stream.
func (enc *Encoder) Encode(evt Event) error {
	enc.header()
	if enc.err != nil {
		return fmt.Errorf("rtio: could not write dump header: %w", enc.err)
	}

	enc.writeU8(evtMarker)
	enc.writeU64(uint64(evt.Time))
	enc.writeU32(uint32(evt.Channel))
	enc.writeU8(evt.Addr)
	enc.writeU32(evt.Data)
	if enc.err != nil {
		return fmt.Errorf("rtio: could not write event: %w", enc.err)
	}
	enc.n++
	return nil
}

// Close writes the stream trailer.
// Close does not close the underlying writer.
func (enc *Encoder) Close() error {
	enc.header()
	enc.writeU8(endMarker)
	enc.writeU32(enc.n)

	crc := crcTable.CRC16(enc.crc)
	enc.writeU16(crc)
	if enc.err != nil {
		return fmt.Errorf("rtio: could not write dump trailer: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) header() {
	if enc.hdr {
		return
	}
	enc.hdr = true
	enc.write([]byte(dumpMagic))
	enc.writeU16(dumpVersion)
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	enc.crc = crcTable.UpdateCrc(enc.crc, p)
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	binary.BigEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *Encoder) writeU32(v uint32) {
	binary.BigEndian.PutUint32(enc.buf[:4], v)
	enc.write(enc.buf[:4])
}

func (enc *Encoder) writeU64(v uint64) {
	binary.BigEndian.PutUint64(enc.buf[:8], v)
	enc.write(enc.buf[:8])
}
