// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-lpc/urukul/ad9910/internal/regs"
	"github.com/go-lpc/urukul/cpld"
	"github.com/go-lpc/urukul/rtio"
	"github.com/google/go-cmp/cmp"
)

// board is an Urukul board wired to a simulated RTIO output.
type board struct {
	sim  *rtio.Sim
	core *rtio.Core
	cpld *cpld.CPLD
	dds  [4]*DDS
}

func newBoard(t *testing.T, sim *rtio.Sim, core *rtio.Core, name string, ch int32) *board {
	t.Helper()

	dev := cpld.New(
		name+"_cpld", core,
		rtio.NewSPIMaster(core, ch),
		rtio.NewTTL(core, ch+1),
	)
	brd := &board{sim: sim, core: core, cpld: dev}
	for i := range brd.dds {
		dds, err := New(name+"_ch"+string(rune('0'+i)), dev, cpld.CSDDSCh0+i)
		if err != nil {
			t.Fatalf("could not create dds %d: %+v", i, err)
		}
		brd.dds[i] = dds
	}
	return brd
}

func newTestBoard(t *testing.T) *board {
	t.Helper()
	sim := rtio.NewSim()
	core := rtio.New(sim)
	return newBoard(t, sim, core, "urukul0", 10)
}

// spiWrites returns the data words written on the SPI channel ch.
func spiWrites(evts []rtio.Event, ch int32) []uint32 {
	var out []uint32
	for _, evt := range evts {
		if evt.Channel == ch && evt.Addr == rtio.SPIDataAddr {
			out = append(out, evt.Data)
		}
	}
	return out
}

func TestNew(t *testing.T) {
	brd := newTestBoard(t)

	_, err := New("bad", brd.cpld, 1)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("invalid error: %+v", err)
	}

	_, err = New("bad", brd.cpld, cpld.CSDDSCh0, WithSysClk(0))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("invalid error: %+v", err)
	}

	dds, err := New("ok", brd.cpld, cpld.CSDDSCh2, WithSysClk(500e6), WithoutPLL())
	if err != nil {
		t.Fatalf("could not create dds: %+v", err)
	}
	if got, want := dds.SysClk(), 500e6; got != want {
		t.Fatalf("invalid sysclk: got=%g, want=%g", got, want)
	}
	if got, want := dds.ChipSelect(), cpld.CSDDSCh2; got != want {
		t.Fatalf("invalid chip select: got=%d, want=%d", got, want)
	}
}

func TestWrite(t *testing.T) {
	brd := newTestBoard(t)
	dds := brd.dds[0]

	for _, tc := range []struct {
		name string
		f    func() error
		want []uint32
	}{
		{
			name: "write16",
			f:    func() error { return dds.Write16(regs.POW, 0x1234) },
			want: []uint32{regs.POW<<24 | 0x1234<<8},
		},
		{
			name: "write32",
			f:    func() error { return dds.Write32(regs.FTW, 0xdeadbeef) },
			want: []uint32{regs.FTW << 24, 0xdeadbeef},
		},
		{
			name: "write64",
			f:    func() error { return dds.Write64(regs.Profile7, 0x11, 0x22) },
			want: []uint32{regs.Profile7 << 24, 0x11, 0x22},
		},
		{
			name: "write-ram",
			f:    func() error { return dds.WriteRAM([]uint32{1, 2, 3}) },
			want: []uint32{regs.RAM << 24, 1, 2, 3},
		},
		{
			name: "cfr1",
			f:    func() error { return dds.SetCFR1(CFR1{RAMEnable: true, RAMDest: RAMDestASF}) },
			want: []uint32{regs.CFR1 << 24, 1<<31 | 2<<29 | 2},
		},
		{
			name: "cfr2",
			f:    func() error { return dds.SetCFR2(DefaultCFR2()) },
			want: []uint32{regs.CFR2 << 24, 1<<24 | 1<<16},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			brd.sim.Reset()
			err := tc.f()
			if err != nil {
				t.Fatalf("could not write: %+v", err)
			}
			got := spiWrites(brd.sim.Events(), 10)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("invalid SPI writes (-want +got):\n%s", diff)
			}
		})
	}

	err := dds.WriteRAM(make([]uint32, RAMSize+1))
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestWriteRAMChipSelect(t *testing.T) {
	brd := newTestBoard(t)
	dds := brd.dds[1]

	err := dds.WriteRAM([]uint32{0xa, 0xb})
	if err != nil {
		t.Fatalf("could not write RAM: %+v", err)
	}

	var cfgs []uint32
	for _, evt := range brd.sim.Events() {
		if evt.Addr == rtio.SPIConfigAddr {
			cfgs = append(cfgs, evt.Data)
		}
	}
	const (
		cs  = cpld.CSDDSCh1 << 24
		div = (cpld.SPITDDSWr - 2) << 16
	)
	want := []uint32{
		cpld.SPIConfig | 7<<8 | div | cs,
		cpld.SPIConfig | 31<<8 | div | cs,
		cpld.SPIConfig | rtio.SPIEnd | 31<<8 | div | cs,
	}
	if diff := cmp.Diff(want, cfgs); diff != "" {
		t.Fatalf("invalid SPI configs (-want +got):\n%s", diff)
	}
}

func TestProfileRAMWords(t *testing.T) {
	for _, tc := range []struct {
		name   string
		p      ProfileRAM
		hi, lo uint32
	}{
		{
			name: "basic",
			p:    ProfileRAM{Start: 0, End: 9, Step: 100, Mode: RAMModeContRampUp},
			hi:   100<<8 | 9>>2,
			lo:   (9&3)<<30 | 4,
		},
		{
			name: "full",
			p: ProfileRAM{
				Start: 3, End: 1023, Step: 0xffff,
				NoDwellHigh: true, ZeroCrossing: true,
				Mode: RAMModeBidirRamp,
			},
			hi: 0xffff<<8 | 1023>>2,
			lo: 3<<30 | 3<<14 | 1<<5 | 1<<3 | 2,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hi, lo := tc.p.Words()
			if hi != tc.hi {
				t.Fatalf("invalid hi word: got=0x%08x, want=0x%08x", hi, tc.hi)
			}
			if lo != tc.lo {
				t.Fatalf("invalid lo word: got=0x%08x, want=0x%08x", lo, tc.lo)
			}
		})
	}
}

func TestSetMu(t *testing.T) {
	brd := newTestBoard(t)
	dds := brd.dds[0]

	err := dds.SetMu(0x12345678, 0xabcd, 0x3fff, 7)
	if err != nil {
		t.Fatalf("could not set mu: %+v", err)
	}
	got := spiWrites(brd.sim.Events(), 10)
	want := []uint32{regs.Profile7 << 24, 0x3fff<<16 | 0xabcd, 0x12345678}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("invalid SPI writes (-want +got):\n%s", diff)
	}

	var pulses int
	for _, evt := range brd.sim.Events() {
		if evt.Channel == 11 && evt.Data == 1 {
			pulses++
		}
	}
	if pulses != 1 {
		t.Fatalf("invalid number of IO_UPDATE pulses: got=%d, want=1", pulses)
	}

	err = dds.SetMu(0, 0, 0, 8)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("invalid error: %+v", err)
	}

	err = dds.Set(1e6, 0.5, 2, 0)
	if !errors.Is(err, ErrRange) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestSetMuRAM(t *testing.T) {
	const (
		ftw = 0x01020304
		pow = 0x0506
		asf = 0x0708
	)
	var (
		ftwW = []uint32{regs.FTW << 24, ftw}
		asfW = []uint32{regs.ASF << 24, asf << 2}
		powW = []uint32{regs.POW<<24 | pow<<8}
	)
	cat := func(ws ...[]uint32) []uint32 {
		var o []uint32
		for _, w := range ws {
			o = append(o, w...)
		}
		return o
	}

	for _, tc := range []struct {
		dest RAMDest
		want []uint32
	}{
		{RAMDestFTW, cat(asfW, powW)},
		{RAMDestPOW, cat(ftwW, asfW)},
		{RAMDestASF, cat(ftwW, powW)},
		{RAMDestPOWASF, cat(ftwW)},
	} {
		t.Run(fmt.Sprintf("dest-%d", tc.dest), func(t *testing.T) {
			brd := newTestBoard(t)
			err := brd.dds[0].SetMuRAM(ftw, pow, asf, tc.dest)
			if err != nil {
				t.Fatalf("could not set RAM base registers: %+v", err)
			}
			got := spiWrites(brd.sim.Events(), 10)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("invalid SPI writes for dest=%d (-want +got):\n%s", tc.dest, diff)
			}
		})
	}
}

func TestInit(t *testing.T) {
	brd := newTestBoard(t)
	err := brd.dds[0].Init()
	if err != nil {
		t.Fatalf("could not init dds: %+v", err)
	}

	got := spiWrites(brd.sim.Events(), 10)
	cfr3 := uint32(regs.CFR3Base | 5<<24 | 7<<19 | 1<<8 | 40<<1)
	want := []uint32{
		regs.CFR1 << 24, 2,
		regs.CFR2 << 24, 1<<24 | 1<<16 | 1<<5,
		regs.CFR3 << 24, cfr3 | 1<<10,
		regs.CFR3 << 24, cfr3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("invalid SPI writes (-want +got):\n%s", diff)
	}
}

func TestStickyError(t *testing.T) {
	sim := rtio.NewSim(rtio.WithHostCost(1 << 30))
	core := rtio.New(sim)
	brd := newBoard(t, sim, core, "urukul0", 10)

	err := brd.dds[0].Write32(regs.FTW, 1)
	if !errors.Is(err, rtio.ErrUnderflow) {
		t.Fatalf("invalid error: %+v", err)
	}
	n := len(sim.Events())

	err = brd.dds[0].Write32(regs.FTW, 2)
	if !errors.Is(err, rtio.ErrUnderflow) {
		t.Fatalf("invalid error: %+v", err)
	}
	if got, want := len(sim.Events()), n; got != want {
		t.Fatalf("events submitted after error: got=%d, want=%d", got, want)
	}
}
