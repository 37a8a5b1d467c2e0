// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Decoder reads and validates a stream of RTIO events.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	crc uint64
	n   uint32
	hdr bool
	eof bool
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crcTable.InitCrc(),
	}
}

// Decode reads the next event from the stream.
// Decode returns io.EOF once the trailer has been read and validated.
func (dec *Decoder) Decode(evt *Event) error {
	if dec.eof {
		return io.EOF
	}

	if !dec.hdr {
		dec.header()
		if dec.err != nil {
			return dec.err
		}
	}

	v := dec.readU8()
	if dec.err != nil {
		return fmt.Errorf("rtio: could not read marker: %w", dec.unexpected())
	}

	switch v {
	case evtMarker:
		evt.Time = int64(dec.readU64())
		evt.Channel = int32(dec.readU32())
		evt.Addr = dec.readU8()
		evt.Data = dec.readU32()
		if dec.err != nil {
			return fmt.Errorf("rtio: could not read event %d: %w", dec.n, dec.unexpected())
		}
		dec.n++
		return nil

	case endMarker:
		n := dec.readU32()
		comp := crcTable.CRC16(dec.crc)
		recv := dec.readU16()
		if dec.err != nil {
			return fmt.Errorf("rtio: could not read dump trailer: %w", dec.unexpected())
		}
		if comp != recv {
			return fmt.Errorf("rtio: inconsistent CRC: recv=0x%04x comp=0x%04x", recv, comp)
		}
		if n != dec.n {
			return fmt.Errorf("rtio: inconsistent number of events: recv=%d, decoded=%d", n, dec.n)
		}
		dec.eof = true
		return io.EOF

	default:
		return fmt.Errorf("rtio: invalid marker (got=0x%x)", v)
	}
}

func (dec *Decoder) header() {
	dec.hdr = true
	magic := make([]byte, len(dumpMagic))
	dec.read(magic)
	if dec.err != nil {
		dec.err = fmt.Errorf("rtio: could not read dump header: %w", dec.err)
		return
	}
	if string(magic) != dumpMagic {
		dec.err = fmt.Errorf("rtio: invalid dump header %q", magic)
		return
	}
	vers := dec.readU16()
	if dec.err != nil {
		dec.err = fmt.Errorf("rtio: could not read dump version: %w", dec.unexpected())
		return
	}
	if vers != dumpVersion {
		dec.err = fmt.Errorf("rtio: invalid dump version %d", vers)
	}
}

func (dec *Decoder) unexpected() error {
	if errors.Is(dec.err, io.EOF) {
		dec.err = io.ErrUnexpectedEOF
	}
	return dec.err
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
	if dec.err == nil {
		dec.crc = crcTable.UpdateCrc(dec.crc, p)
	}
}

func (dec *Decoder) readU8() uint8 {
	dec.read(dec.buf[:1])
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	dec.read(dec.buf[:2])
	return binary.BigEndian.Uint16(dec.buf[:2])
}

func (dec *Decoder) readU32() uint32 {
	dec.read(dec.buf[:4])
	return binary.BigEndian.Uint32(dec.buf[:4])
}

func (dec *Decoder) readU64() uint64 {
	dec.read(dec.buf[:8])
	return binary.BigEndian.Uint64(dec.buf[:8])
}
