// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newFakeDevMem(t *testing.T) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), "dev.mem")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create fake dev-mem: %+v", err)
	}
	defer f.Close()

	err = f.Truncate(2 * MMIOSpan)
	if err != nil {
		t.Fatalf("could not resize fake dev-mem: %+v", err)
	}
	return fname
}

func TestMMIO(t *testing.T) {
	fname := newFakeDevMem(t)

	m, err := OpenMMIO(fname, MMIOSpan)
	if err != nil {
		t.Fatalf("could not open mmio: %+v", err)
	}
	defer m.Close()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 12345)
	_, err = m.h.WriteAt(buf[:], mmioCounter)
	if err != nil {
		t.Fatalf("could not set counter: %+v", err)
	}

	if got, want := m.Counter(), int64(12345); got != want {
		t.Fatalf("invalid counter: got=%d, want=%d", got, want)
	}

	err = m.Write(Event{Time: 20000, Channel: 5, Addr: 1, Data: 0xdeadbeef})
	if err != nil {
		t.Fatalf("could not write event: %+v", err)
	}

	readU32 := func(off int64) uint32 {
		_, err := m.h.ReadAt(buf[:4], off)
		if err != nil {
			t.Fatalf("could not read register 0x%x: %+v", off, err)
		}
		return binary.LittleEndian.Uint32(buf[:4])
	}

	for _, tc := range []struct {
		name string
		off  int64
		want uint32
	}{
		{"now", mmioNow, 20000},
		{"target", mmioTarget, 5<<8 | 1},
		{"data", mmioData, 0xdeadbeef},
		{"we", mmioWE, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := readU32(tc.off), tc.want; got != want {
				t.Fatalf("invalid register: got=0x%x, want=0x%x", got, want)
			}
		})
	}

	for _, tc := range []struct {
		name   string
		status uint32
		err    error
	}{
		{"underflow", statusUnderflow, ErrUnderflow},
		{"sequence", statusSequence, ErrSequence},
		{"overflow", statusWait, ErrOverflow},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m.poll = 4
			binary.LittleEndian.PutUint32(buf[:4], tc.status)
			_, err := m.h.WriteAt(buf[:4], mmioStatus)
			if err != nil {
				t.Fatalf("could not set status: %+v", err)
			}

			err = m.Write(Event{Time: 1, Channel: 1})
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}

			binary.LittleEndian.PutUint32(buf[:4], 0)
			_, _ = m.h.WriteAt(buf[:4], mmioStatus)
		})
	}
}

type faultyRegs struct {
	fail bool
	mem  [MMIOSpan]byte
}

var errBadRegs = errors.New("bad registers")

func (r *faultyRegs) ReadAt(p []byte, off int64) (int, error) {
	if r.fail {
		return 0, errBadRegs
	}
	return copy(p, r.mem[off:]), nil
}

func (r *faultyRegs) WriteAt(p []byte, off int64) (int, error) {
	return copy(r.mem[off:], p), nil
}

func TestMMIOCounterError(t *testing.T) {
	regs := &faultyRegs{fail: true}
	m := &MMIO{rw: regs, poll: 4}

	if got, want := m.Counter(), int64(0); got != want {
		t.Fatalf("invalid counter: got=%d, want=%d", got, want)
	}

	regs.fail = false
	err := m.Write(Event{Time: 1, Channel: 1})
	if !errors.Is(err, errBadRegs) {
		t.Fatalf("invalid error: got=%v, want=%v", err, errBadRegs)
	}

	err = m.Write(Event{Time: 2, Channel: 1})
	if err != nil {
		t.Fatalf("could not write event after counter error: %+v", err)
	}

	core := New(&MMIO{rw: &faultyRegs{fail: true}, poll: 4})
	core.BreakRealtime()
	core.Output(1, 0, 0)
	if err := core.Err(); !errors.Is(err, errBadRegs) {
		t.Fatalf("invalid core error: got=%v, want=%v", err, errBadRegs)
	}
}

func TestMMIOOpenFail(t *testing.T) {
	_, err := OpenMMIO(filepath.Join(t.TempDir(), "not-there"), 0)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
