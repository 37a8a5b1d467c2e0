// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command urukul-shell is an interactive shell to inspect waveform designs
// against a simulated RTIO core.
//
// Usage: urukul-shell [OPTIONS] [SCRIPT]
//
// Example:
//
//	$> urukul-shell
//	urukul> load ./sweep.yml
//	loaded "./sweep.yml": 2 channel(s) on 1 board(s)
//	urukul> playback sweep 4
//	urukul> run
//	urukul> dump ./sweep.dump
//	urukul> quit
package main // import "github.com/go-lpc/urukul/cmd/urukul-shell"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/urukul/design"
	"github.com/go-lpc/urukul/rtio"
	"github.com/peterh/liner"
)

var cmdNames = []string{
	"dump", "help", "load", "playback", "quit", "regs", "run", "save",
}

const usage = `commands:
  load <file>          load and build a design
  regs                 display the register values of every channel
  run                  initialize, load, enable and disable all channels
  playback <drg> <n>   display the first n words of a digital ramp
  save <file>          write the current design
  dump <file>          write the events submitted so far
  help                 display this message
  quit                 leave the shell
`

func main() {
	log.SetPrefix("urukul-shell: ")
	log.SetFlags(0)

	var (
		hist = flag.String("history", filepath.Join(os.TempDir(), ".urukul-shell.history"), "path to the history file")
	)

	flag.Usage = func() {
		fmt.Printf(`urukul-shell is an interactive shell to inspect waveform designs.

Usage: urukul-shell [OPTIONS] [SCRIPT]

When a script file is given, its commands are run non-interactively.

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	sh := newShell(os.Stdout)

	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("could not open script: %+v", err)
		}
		defer f.Close()

		err = sh.script(f)
		if err != nil {
			log.Fatalf("could not run script %q: %+v", flag.Arg(0), err)
		}
		return
	}

	err := interactive(sh, *hist)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func interactive(sh *shell, hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not create history file: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("urukul> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(line)
		if err != nil {
			fmt.Fprintf(sh.w, "error: %+v\n", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

func complete(line string) []string {
	var out []string
	for _, name := range cmdNames {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	return out
}

type shell struct {
	w io.Writer

	fname string
	d     *design.Design
	sim   *rtio.Sim
	core  *rtio.Core
	setup *design.Setup
}

func newShell(w io.Writer) *shell {
	return &shell{w: w}
}

// script runs every command read from r, stopping at the first error.
func (sh *shell) script(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for i := 1; sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		quit, err := sh.exec(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

func (sh *shell) exec(line string) (quit bool, err error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}

	name, args := strings.ToLower(toks[0]), toks[1:]
	switch name {
	case "load":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: load <file>")
		}
		return false, sh.load(args[0])
	case "regs":
		return false, sh.regs()
	case "run":
		return false, sh.run()
	case "playback":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: playback <drg> <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return false, fmt.Errorf("invalid number of words %q", args[1])
		}
		return false, sh.playback(args[0], n)
	case "save":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: save <file>")
		}
		return false, sh.save(args[0])
	case "dump":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: dump <file>")
		}
		return false, sh.dump(args[0])
	case "help", "?":
		fmt.Fprint(sh.w, usage)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", toks[0])
	}
}

func (sh *shell) loaded() error {
	if sh.setup == nil {
		return fmt.Errorf("no design loaded")
	}
	return nil
}

func (sh *shell) load(fname string) error {
	d, err := design.Load(fname)
	if err != nil {
		return err
	}

	sim := rtio.NewSim()
	core := rtio.New(sim, d.CoreOptions()...)
	setup, err := d.Build(core, nil)
	if err != nil {
		return err
	}

	sh.fname = fname
	sh.d = d
	sh.sim = sim
	sh.core = core
	sh.setup = setup

	fmt.Fprintf(sh.w, "loaded %q: %d channel(s) on %d board(s)\n",
		fname, len(setup.Manager.Channels()), len(setup.Manager.CPLDs()),
	)
	return nil
}

func (sh *shell) regs() error {
	err := sh.loaded()
	if err != nil {
		return err
	}

	for _, cfg := range sh.setup.Manager.Channels() {
		dds := cfg.DDS
		fmt.Fprintf(sh.w, "=== %s (cpld=%s, cs=%d) ===\n", dds.Name(), dds.CPLD().Name(), dds.ChipSelect())
		fmt.Fprintf(sh.w, "FTW: 0x%08x (%g Hz)\n", cfg.FTW, dds.FTWToFrequency(cfg.FTW))
		fmt.Fprintf(sh.w, "POW: 0x%04x (%g turns)\n", cfg.POW, dds.POWToTurns(cfg.POW))
		fmt.Fprintf(sh.w, "ASF: 0x%04x (%g)\n", cfg.ASF, dds.ASFToAmplitude(cfg.ASF))
		fmt.Fprintf(sh.w, "RAM: enable=%v dest=%d\n", cfg.RAMEnable, cfg.RAMDest)
		fmt.Fprintf(sh.w, "DRG: enable=%v dest=%d\n", cfg.DRGEnable, cfg.DRGDest)
		fmt.Fprintf(sh.w, "OSK: enable=%v\n", cfg.OSKEnable)
		if ram := cfg.RAM; ram != nil {
			hi, lo := ram.Register().Words()
			fmt.Fprintf(sh.w, "RAM profile: type=%v mode=%v start=%d end=%d step=%d words=%d\n",
				ram.Type, ram.Mode, ram.Start, ram.End, ram.Step, len(ram.Data),
			)
			fmt.Fprintf(sh.w, "RAM profile register: 0x%08x_%08x\n", hi, lo)
		}
		if drg := cfg.DRG; drg != nil {
			fmt.Fprintf(sh.w, "DRG: type=%v low=0x%08x high=0x%08x step=0x%08x rate=%d dwell-high=%v\n",
				drg.Type, uint32(drg.Low), uint32(drg.High), uint32(drg.Step), drg.Rate, drg.DwellHigh,
			)
		}
	}
	return nil
}

func (sh *shell) run() error {
	err := sh.loaded()
	if err != nil {
		return err
	}

	var (
		core = sh.core
		mgr  = sh.setup.Manager
		n0   = len(sh.sim.Events())
	)

	core.BreakRealtime()
	for _, name := range sh.setup.CPLDNames() {
		err := sh.setup.CPLDs[name].Init()
		if err != nil {
			return err
		}
	}
	for _, name := range sh.setup.Names() {
		err := sh.setup.DDS[name].Init()
		if err != nil {
			return err
		}
		core.BreakRealtime()
	}

	for _, step := range []struct {
		name string
		f    func() error
	}{
		{"load", mgr.Load},
		{"enable", mgr.Enable},
		{"commit-enable", mgr.CommitEnable},
		{"disable", mgr.Disable},
		{"commit-disable", mgr.CommitDisable},
	} {
		core.BreakRealtime()
		t0 := core.Now()
		err := step.f()
		if err != nil {
			core.Reset()
			return fmt.Errorf("could not %s: %w", step.name, err)
		}
		fmt.Fprintf(sh.w, "%-15s t=%d dt=%d mu\n", step.name+":", t0, core.Now()-t0)
	}

	fmt.Fprintf(sh.w, "events: %d (counter=%d)\n", len(sh.sim.Events())-n0, sh.sim.Counter())
	return nil
}

func (sh *shell) playback(name string, n int) error {
	err := sh.loaded()
	if err != nil {
		return err
	}

	drg, ok := sh.setup.DRGs[name]
	if !ok {
		names := make([]string, 0, len(sh.setup.DRGs))
		for k := range sh.setup.DRGs {
			names = append(names, k)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown drg %q (known: %q)", name, names)
	}

	for i, v := range drg.Playback(n) {
		fmt.Fprintf(sh.w, "[%03d] 0x%08x\n", i, v)
	}
	return nil
}

func (sh *shell) save(fname string) error {
	err := sh.loaded()
	if err != nil {
		return err
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create design file: %w", err)
	}
	defer f.Close()

	err = sh.d.Write(f)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close design file: %w", err)
	}
	fmt.Fprintf(sh.w, "saved design to %q\n", fname)
	return nil
}

func (sh *shell) dump(fname string) error {
	err := sh.loaded()
	if err != nil {
		return err
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create dump file: %w", err)
	}
	defer f.Close()

	enc := rtio.NewEncoder(f)
	for _, evt := range sh.sim.Events() {
		err = enc.Encode(evt)
		if err != nil {
			return err
		}
	}
	err = enc.Close()
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close dump file: %w", err)
	}
	fmt.Fprintf(sh.w, "dumped %d event(s) to %q\n", len(sh.sim.Events()), fname)
	return nil
}
