// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecorder(t *testing.T) {
	var (
		buf  = new(bytes.Buffer)
		sim  = NewSim()
		rec  = NewRecorder(sim, buf)
		core = New(rec)
		spi  = NewSPIMaster(core, 2)
	)

	spi.SetConfig(SPICSPolarity, 8, 2, 4)
	spi.Write(0x07 << 24)
	spi.SetConfig(SPICSPolarity|SPIEnd, 32, 2, 4)
	spi.Write(0x12345678)

	if err := core.Err(); err != nil {
		t.Fatalf("could not run timeline: %+v", err)
	}

	err := rec.Close()
	if err != nil {
		t.Fatalf("could not close recorder: %+v", err)
	}

	got, err := ReadAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("could not decode dump: %+v", err)
	}

	if diff := cmp.Diff(sim.Events(), got); diff != "" {
		t.Fatalf("invalid round-trip (-want +got):\n%s", diff)
	}
}

func TestEmptyDump(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	err := enc.Close()
	if err != nil {
		t.Fatalf("could not close encoder: %+v", err)
	}

	evts, err := ReadAll(buf)
	if err != nil {
		t.Fatalf("could not decode empty dump: %+v", err)
	}
	if len(evts) != 0 {
		t.Fatalf("invalid number of events: got=%d, want=0", len(evts))
	}
}

func TestDecoderErrors(t *testing.T) {
	raw := func() []byte {
		buf := new(bytes.Buffer)
		enc := NewEncoder(buf)
		for i := 0; i < 3; i++ {
			err := enc.Encode(Event{Time: int64(i), Channel: 1, Data: uint32(i)})
			if err != nil {
				t.Fatalf("could not encode event: %+v", err)
			}
		}
		err := enc.Close()
		if err != nil {
			t.Fatalf("could not close encoder: %+v", err)
		}
		return buf.Bytes()
	}

	for _, tc := range []struct {
		name string
		edit func(p []byte) []byte
		err  string
	}{
		{
			name: "bad-magic",
			edit: func(p []byte) []byte {
				p[0] = 'X'
				return p
			},
			err: `rtio: invalid dump header "XTIO"`,
		},
		{
			name: "bad-version",
			edit: func(p []byte) []byte {
				p[5] = 2
				return p
			},
			err: "rtio: invalid dump version 2",
		},
		{
			name: "bad-marker",
			edit: func(p []byte) []byte {
				p[6] = 0xff
				return p
			},
			err: "rtio: invalid marker (got=0xff)",
		},
		{
			name: "bad-crc",
			edit: func(p []byte) []byte {
				p[len(p)-1] ^= 0xff
				return p
			},
			err: "rtio: inconsistent CRC",
		},
		{
			name: "bad-data",
			edit: func(p []byte) []byte {
				p[10] ^= 0x01
				return p
			},
			err: "rtio: inconsistent CRC",
		},
		{
			name: "truncated",
			edit: func(p []byte) []byte {
				return p[:12]
			},
			err: "rtio: could not read event 0: unexpected EOF",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadAll(bytes.NewReader(tc.edit(raw())))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.err; !strings.HasPrefix(got, want) {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}

	dec := NewDecoder(bytes.NewReader(raw()))
	for {
		var evt Event
		err := dec.Decode(&evt)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("could not decode: %+v", err)
		}
	}
	var evt Event
	if err := dec.Decode(&evt); err != io.EOF {
		t.Fatalf("invalid error after trailer: %+v", err)
	}
}
