// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq exposes the waveform playback of Urukul boards as a TDAQ
// run-control process.
package daq // import "github.com/go-lpc/urukul/daq"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/urukul/conddb"
	"github.com/go-lpc/urukul/design"
	"github.com/go-lpc/urukul/rtio"
)

var errNoDesign = errors.New("no design configured")

// Server drives the channels of a waveform design through the TDAQ
// state machine:
//   - /config reads the design and builds the devices,
//   - /init initializes the boards and loads the waveforms,
//   - /start enables playback, /stop disables it,
//   - /reset drops the devices, /quit releases the output queue.
type Server struct {
	name string
	cfg  config

	out   rtio.Output
	dump  *os.File
	rec   *rtio.Recorder
	core  *rtio.Core
	setup *design.Setup

	nstart int
}

type config struct {
	design string // design file
	dir    string // directory of relative design files
	dbname string // device database

	newOutput func() (rtio.Output, error)
	dump      string
	alert     func(op string, err error)
	msg       *log.Logger
}

// Option configures a Server.
type Option func(*config)

// WithDesign sets the design file loaded by /config when the command
// carries no design.
func WithDesign(fname string) Option {
	return func(cfg *config) {
		cfg.design = fname
	}
}

// WithDesignDir sets the directory relative design files are resolved
// against.
func WithDesignDir(dir string) Option {
	return func(cfg *config) {
		cfg.dir = dir
	}
}

// WithDB sets the device database the CPLDs and DDS channels are read
// from. When no design file is configured, the design of the last run
// recorded in the database is used.
func WithDB(dbname string) Option {
	return func(cfg *config) {
		cfg.dbname = dbname
	}
}

// WithOutput sets the function creating the RTIO output queue.
func WithOutput(f func() (rtio.Output, error)) Option {
	return func(cfg *config) {
		cfg.newOutput = f
	}
}

// WithDump records every event submitted during a configuration into
// the named file.
func WithDump(fname string) Option {
	return func(cfg *config) {
		cfg.dump = fname
	}
}

// WithAlert sets the function called when a run-control command fails.
func WithAlert(f func(op string, err error)) Option {
	return func(cfg *config) {
		cfg.alert = f
	}
}

// WithLogger sets the logger handed to the devices.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// New returns a new run-control server.
func New(name string, opts ...Option) *Server {
	cfg := config{
		newOutput: func() (rtio.Output, error) {
			return rtio.NewSim(), nil
		},
		alert: func(string, error) {},
		msg:   log.New(io.Discard, "urukul: ", 0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Server{name: name, cfg: cfg}
}

// Name returns the name of the server.
func (srv *Server) Name() string { return srv.name }

// Setup returns the devices built by the last /config command.
func (srv *Server) Setup() *design.Setup { return srv.setup }

// Core returns the timeline of the last /config command.
func (srv *Server) Core() *rtio.Core { return srv.core }

// Runs returns the number of runs started since the last /config command.
func (srv *Server) Runs() int { return srv.nstart }

func (srv *Server) fail(ctx tdaq.Context, op string, err error) error {
	ctx.Msg.Errorf("could not %s: %+v", op, err)
	srv.cfg.alert(op, err)
	return fmt.Errorf("could not %s: %w", op, err)
}

func (srv *Server) designName(ctx context.Context, req tdaq.Frame) (string, error) {
	fname := srv.cfg.design
	if len(req.Body) != 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		fname = dec.ReadStr()
		if err := dec.Err(); err != nil {
			return "", fmt.Errorf("could not decode design name: %w", err)
		}
	}

	if fname == "" && srv.cfg.dbname != "" {
		db, err := conddb.Open(srv.cfg.dbname)
		if err != nil {
			return "", fmt.Errorf("could not open device db: %w", err)
		}
		defer db.Close()

		fname, err = db.LastDesign(ctx)
		if err != nil {
			return "", fmt.Errorf("could not retrieve last design: %w", err)
		}
	}

	if fname == "" {
		return "", errors.New("no design file")
	}

	if !filepath.IsAbs(fname) && srv.cfg.dir != "" {
		fname = filepath.Join(srv.cfg.dir, fname)
	}
	return fname, nil
}

func (srv *Server) loadDesign(ctx context.Context, fname string) (*design.Design, error) {
	d, err := design.Load(fname)
	if err != nil {
		return nil, err
	}

	if srv.cfg.dbname == "" {
		return d, nil
	}

	db, err := conddb.Open(srv.cfg.dbname)
	if err != nil {
		return nil, fmt.Errorf("could not open device db: %w", err)
	}
	defer db.Close()

	devs, err := db.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve devices: %w", err)
	}
	d.UseDevices(devs)

	return d, nil
}

func (srv *Server) openOutput() error {
	out, err := srv.cfg.newOutput()
	if err != nil {
		return fmt.Errorf("could not create rtio output: %w", err)
	}
	srv.out = out

	if srv.cfg.dump == "" {
		return nil
	}

	f, err := os.Create(srv.cfg.dump)
	if err != nil {
		return fmt.Errorf("could not create dump file: %w", err)
	}
	srv.dump = f
	srv.rec = rtio.NewRecorder(out, f)

	return nil
}

// output returns the queue events are submitted to.
func (srv *Server) output() rtio.Output {
	if srv.rec != nil {
		return srv.rec
	}
	return srv.out
}

func (srv *Server) close() error {
	defer func() {
		srv.out = nil
		srv.rec = nil
		srv.dump = nil
		srv.core = nil
		srv.setup = nil
	}()

	if srv.rec != nil {
		err := srv.rec.Close()
		if err != nil {
			return fmt.Errorf("could not close event recorder: %w", err)
		}
	}

	if srv.dump != nil {
		err := srv.dump.Close()
		if err != nil {
			return fmt.Errorf("could not close dump file: %w", err)
		}
	}

	if c, ok := srv.out.(io.Closer); ok {
		err := c.Close()
		if err != nil {
			return fmt.Errorf("could not close rtio output: %w", err)
		}
	}

	return nil
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	err := srv.close()
	if err != nil {
		return srv.fail(ctx, "release previous configuration", err)
	}

	fname, err := srv.designName(ctx.Ctx, req)
	if err != nil {
		return srv.fail(ctx, "locate design", err)
	}

	d, err := srv.loadDesign(ctx.Ctx, fname)
	if err != nil {
		return srv.fail(ctx, "load design", err)
	}

	err = srv.openOutput()
	if err != nil {
		return srv.fail(ctx, "open output", err)
	}

	core := rtio.New(srv.output(), append(d.CoreOptions(), rtio.WithLogger(srv.cfg.msg))...)
	setup, err := d.Build(core, srv.cfg.msg)
	if err != nil {
		_ = srv.close()
		return srv.fail(ctx, "build design", err)
	}

	srv.core = core
	srv.setup = setup
	srv.nstart = 0
	ctx.Msg.Infof("design %q: %d channel(s) on %d board(s)",
		fname, len(setup.Manager.Channels()), len(setup.Manager.CPLDs()),
	)

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.setup == nil {
		return srv.fail(ctx, "initialize", errNoDesign)
	}

	srv.core.Reset()
	for _, name := range srv.setup.CPLDNames() {
		err := srv.setup.CPLDs[name].Init()
		if err != nil {
			return srv.fail(ctx, "initialize "+name, err)
		}
	}

	for _, name := range srv.setup.Names() {
		dds := srv.setup.DDS[name]
		err := dds.Init()
		if err != nil {
			return srv.fail(ctx, "initialize "+name, err)
		}
		srv.core.BreakRealtime()
	}

	err := srv.setup.Manager.Load()
	if err != nil {
		return srv.fail(ctx, "load waveforms", err)
	}

	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if srv.core != nil {
		srv.core.Reset()
	}
	err := srv.close()
	if err != nil {
		return srv.fail(ctx, "reset", err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.setup == nil {
		return srv.fail(ctx, "start", errNoDesign)
	}

	mgr := srv.setup.Manager
	srv.core.BreakRealtime()
	err := mgr.Enable()
	if err != nil {
		return srv.fail(ctx, "enable playback", err)
	}

	err = mgr.CommitEnable()
	if err != nil {
		return srv.fail(ctx, "commit playback", err)
	}

	srv.nstart++
	ctx.Msg.Infof("playback started (run #%d)", srv.nstart)
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	if srv.setup == nil {
		return srv.fail(ctx, "stop", errNoDesign)
	}

	mgr := srv.setup.Manager
	srv.core.BreakRealtime()
	err := mgr.Disable()
	if err != nil {
		return srv.fail(ctx, "disable playback", err)
	}

	err = mgr.CommitDisable()
	if err != nil {
		return srv.fail(ctx, "commit stop", err)
	}

	ctx.Msg.Infof("playback stopped (run #%d)", srv.nstart)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	err := srv.close()
	if err != nil {
		return srv.fail(ctx, "quit", err)
	}
	return nil
}
