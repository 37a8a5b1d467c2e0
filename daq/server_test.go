// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/urukul/cpld"
	"github.com/go-lpc/urukul/rtio"
	"github.com/google/go-cmp/cmp"
)

const sample = `
cplds:
  - name: urukul0_cpld
    spi: 10
    io_update: 11
  - name: urukul1_cpld
    spi: 20
    io_update: 21
devices:
  - name: urukul0_ch0
    cpld: urukul0_cpld
    chip_select: 4
    sysclk: 1e9
  - name: urukul1_ch1
    cpld: urukul1_cpld
    chip_select: 5
    sysclk: 1e9
    pll_n: 40
drgs:
  - name: sweep
    device: urukul0_ch0
    type: frequency
    start: 1e6
    end: 10e6
    interval: 4e-6
    steps: 10
rams:
  - name: amp
    device: urukul1_ch1
    type: amplitude
    mode: cont_rampup
    interval: 4e-6
    data: [0.1, 0.2, 0.3, 0.4]
channels:
  - device: urukul0_ch0
    frequency: {drg: sweep}
    amplitude: {value: 0.5}
  - device: urukul1_ch1
    frequency: {value: 80e6}
    amplitude: {ram: amp}
`

func newContext() tdaq.Context {
	return tdaq.Context{
		Ctx: context.Background(),
		Msg: log.NewMsgStream("urukul-test", log.LvlDebug, io.Discard),
	}
}

func writeDesign(t *testing.T, dir, name string) string {
	t.Helper()
	fname := filepath.Join(dir, name)
	err := os.WriteFile(fname, []byte(sample), 0644)
	if err != nil {
		t.Fatalf("could not write design file: %+v", err)
	}
	return fname
}

func TestServer(t *testing.T) {
	tmp, err := os.MkdirTemp("", "urukul-daq-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	var (
		fname = writeDesign(t, tmp, "design.yml")
		dump  = filepath.Join(tmp, "events.dump")
		sim   = rtio.NewSim()
		ctx   = newContext()
		resp  tdaq.Frame
	)

	srv := New(
		"urukul",
		WithDesign(fname),
		WithDump(dump),
		WithOutput(func() (rtio.Output, error) { return sim, nil }),
	)

	profiles := func(want int) {
		t.Helper()
		for _, dev := range srv.Setup().Manager.CPLDs() {
			if got := dev.Profile(); got != want {
				t.Fatalf("invalid profile for %s: got=%d, want=%d", dev.Name(), got, want)
			}
		}
	}

	err = srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}
	if len(sim.Events()) != 0 {
		t.Fatalf("/config submitted %d events", len(sim.Events()))
	}
	if diff := cmp.Diff([]string{"urukul0_ch0", "urukul1_ch1"}, srv.Setup().Names()); diff != "" {
		t.Fatalf("invalid channels (-want +got):\n%s", diff)
	}

	err = srv.OnInit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /init: %+v", err)
	}
	profiles(cpld.DefaultProfile)

	for i := 0; i < 2; i++ {
		err = srv.OnStart(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run /start #%d: %+v", i, err)
		}
		profiles(0)

		err = srv.OnStop(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run /stop #%d: %+v", i, err)
		}
		profiles(cpld.DefaultProfile)
	}

	if got, want := srv.Runs(), 2; got != want {
		t.Fatalf("invalid number of runs: got=%d, want=%d", got, want)
	}

	want := append([]rtio.Event(nil), sim.Events()...)

	err = srv.OnQuit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit: %+v", err)
	}
	if srv.Setup() != nil || srv.Core() != nil {
		t.Fatalf("/quit did not release the devices")
	}

	raw, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("could not read dump file: %+v", err)
	}
	got, err := rtio.ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("could not decode dump file: %+v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("invalid dump (-want +got):\n%s", diff)
	}
}

func TestServerDesignFromRequest(t *testing.T) {
	tmp, err := os.MkdirTemp("", "urukul-daq-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	_ = writeDesign(t, tmp, "run-42.yml")

	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteStr("run-42.yml")

	var (
		ctx  = newContext()
		resp tdaq.Frame
		srv  = New("urukul", WithDesignDir(tmp), WithDesign("not-there.yml"))
	)

	err = srv.OnConfig(ctx, &resp, tdaq.Frame{Body: buf.Bytes()})
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}
	if got, want := len(srv.Setup().DDS), 2; got != want {
		t.Fatalf("invalid number of devices: got=%d, want=%d", got, want)
	}

	err = srv.OnReset(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /reset: %+v", err)
	}
	if srv.Setup() != nil {
		t.Fatalf("/reset did not release the devices")
	}

	err = srv.OnStart(ctx, &resp, tdaq.Frame{})
	if !errors.Is(err, errNoDesign) {
		t.Fatalf("invalid /start error after /reset: got=%+v, want=%v", err, errNoDesign)
	}
}

func TestServerErrors(t *testing.T) {
	tmp, err := os.MkdirTemp("", "urukul-daq-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	fname := writeDesign(t, tmp, "design.yml")
	bad := filepath.Join(tmp, "bad.yml")
	err = os.WriteFile(bad, []byte(sample+"  - device: urukul9_ch0\n"), 0644)
	if err != nil {
		t.Fatalf("could not write design file: %+v", err)
	}

	type handler func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error

	for _, tc := range []struct {
		name string
		opts []Option
		cmd  func(srv *Server) handler
		op   string
		want string
	}{
		{
			name: "no-design",
			cmd:  func(srv *Server) handler { return srv.OnConfig },
			op:   "locate design",
			want: "no design file",
		},
		{
			name: "missing-design",
			opts: []Option{WithDesign(filepath.Join(tmp, "not-there.yml"))},
			cmd:  func(srv *Server) handler { return srv.OnConfig },
			op:   "load design",
			want: "could not load",
		},
		{
			name: "invalid-design",
			opts: []Option{WithDesign(bad)},
			cmd:  func(srv *Server) handler { return srv.OnConfig },
			op:   "build design",
			want: `unknown device "urukul9_ch0"`,
		},
		{
			name: "output",
			opts: []Option{
				WithDesign(fname),
				WithOutput(func() (rtio.Output, error) {
					return nil, io.ErrUnexpectedEOF
				}),
			},
			cmd:  func(srv *Server) handler { return srv.OnConfig },
			op:   "open output",
			want: "could not create rtio output",
		},
		{
			name: "init",
			cmd:  func(srv *Server) handler { return srv.OnInit },
			op:   "initialize",
			want: errNoDesign.Error(),
		},
		{
			name: "start",
			cmd:  func(srv *Server) handler { return srv.OnStart },
			op:   "start",
			want: errNoDesign.Error(),
		},
		{
			name: "stop",
			cmd:  func(srv *Server) handler { return srv.OnStop },
			op:   "stop",
			want: errNoDesign.Error(),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var ops []string
			opts := append([]Option{
				WithAlert(func(op string, err error) {
					ops = append(ops, op)
				}),
			}, tc.opts...)

			var (
				srv  = New("urukul", opts...)
				resp tdaq.Frame
			)

			err := tc.cmd(srv)(newContext(), &resp, tdaq.Frame{})
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want=%q", err, tc.want)
			}
			if diff := cmp.Diff([]string{tc.op}, ops); diff != "" {
				t.Fatalf("invalid alerts (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServerInitIdleBoard(t *testing.T) {
	tmp, err := os.MkdirTemp("", "urukul-daq-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	// urukul2 hosts a device without any configured channel.
	idle := strings.Replace(sample, "drgs:", `  - name: urukul2_ch0
    cpld: urukul2_cpld
    chip_select: 4
    sysclk: 1e9
drgs:`, 1)
	idle = strings.Replace(idle, "devices:", `  - name: urukul2_cpld
    spi: 30
    io_update: 31
devices:`, 1)

	fname := filepath.Join(tmp, "idle.yml")
	err = os.WriteFile(fname, []byte(idle), 0644)
	if err != nil {
		t.Fatalf("could not write design file: %+v", err)
	}

	var (
		sim  = rtio.NewSim()
		ctx  = newContext()
		resp tdaq.Frame
		srv  = New(
			"urukul",
			WithDesign(fname),
			WithOutput(func() (rtio.Output, error) { return sim, nil }),
		)
	)

	err = srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}
	if got, want := len(srv.Setup().Manager.CPLDs()), 2; got != want {
		t.Fatalf("invalid number of playback boards: got=%d, want=%d", got, want)
	}

	err = srv.OnInit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /init: %+v", err)
	}

	var (
		cs    []uint32
		first uint32
	)
	for _, evt := range sim.Events() {
		if evt.Channel != 30 {
			continue
		}
		switch evt.Addr {
		case rtio.SPIConfigAddr:
			cs = append(cs, evt.Data>>24)
		case rtio.SPIDataAddr:
			if len(cs) == 1 {
				first = evt.Data
			}
		}
	}
	if len(cs) == 0 {
		t.Fatalf("idle board was not initialized")
	}
	if got, want := cs[0], uint32(cpld.CSCfg); got != want {
		t.Fatalf("invalid first chip select: got=%d, want=%d", got, want)
	}
	if first&(1<<(cpld.CfgRst+8)) == 0 {
		t.Fatalf("idle board was not reset: cfg=0x%08x", first)
	}
}

func TestServerUnderflow(t *testing.T) {
	tmp, err := os.MkdirTemp("", "urukul-daq-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	var (
		fname = writeDesign(t, tmp, "design.yml")
		ctx   = newContext()
		resp  tdaq.Frame
		alert string
	)

	srv := New(
		"urukul",
		WithDesign(fname),
		WithOutput(func() (rtio.Output, error) {
			return rtio.NewSim(rtio.WithHostCost(1 << 30)), nil
		}),
		WithAlert(func(op string, err error) { alert = op }),
	)

	err = srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}

	err = srv.OnInit(ctx, &resp, tdaq.Frame{})
	if !errors.Is(err, rtio.ErrUnderflow) {
		t.Fatalf("invalid /init error: got=%+v, want=%v", err, rtio.ErrUnderflow)
	}
	if !strings.HasPrefix(alert, "initialize ") {
		t.Fatalf("invalid alert: %q", alert)
	}
}
