// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command urukul-daq starts a TDAQ server driving the waveform playback
// of Urukul boards.
//
// Usage: urukul-daq [OPTIONS]
//
// Example:
//
//	$> urukul-daq -id urukul-01 -rc-addr :44000 -design ./sweep.yml -pmon
package main // import "github.com/go-lpc/urukul/cmd/urukul-daq"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/urukul/daq"
	"github.com/go-lpc/urukul/rtio"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

var (
	dsgFlag = flag.String("design", "", "path to the waveform design file")
	dirFlag = flag.String("design-dir", "", "directory of relative design files")
	dbFlag  = flag.String("db", "", "name of the device database")
	memFlag = flag.String("devmem", "", "memory device of the RTIO core (simulated if empty)")
	rtoFlag = flag.String("rtio-base", "0x40000000", "base address of the RTIO output registers")
	dmpFlag = flag.String("dump", "", "file where to record submitted RTIO events")

	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	monDir = flag.String("pmon-dir", os.TempDir(), "directory of pmon log files")
)

func main() {
	log.SetPrefix("urukul-daq: ")
	log.SetFlags(0)

	cmd := flags.New()

	base, err := strconv.ParseInt(*rtoFlag, 0, 64)
	if err != nil {
		log.Fatalf("could not parse RTIO base address %q: %+v", *rtoFlag, err)
	}

	dev := daq.New(
		cmd.Name,
		daq.WithDesign(*dsgFlag),
		daq.WithDesignDir(*dirFlag),
		daq.WithDB(*dbFlag),
		daq.WithDump(*dmpFlag),
		daq.WithOutput(newOutput(*memFlag, base)),
		daq.WithAlert(alert(cmd.Name)),
		daq.WithLogger(log.New(os.Stdout, "urukul: ", 0)),
	)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	var mon io.WriteCloser
	if *doMon {
		f, err := os.Create(filepath.Join(*monDir, "urukul-daq-pmon.log"))
		if err != nil {
			log.Fatalf("could not create pmon log file: %+v", err)
		}
		defer f.Close()
		mon = f
	}

	err = run(context.Background(), srv, mon, *doFreq)
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type runner interface {
	Run(ctx context.Context) error
}

// run runs the TDAQ server and, when w is not nil, monitors the resources
// of the current process until the server exits.
func run(ctx context.Context, srv runner, w io.Writer, freq time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer cancel()
		err := srv.Run(ctx)
		if err != nil {
			return fmt.Errorf("could not run tdaq server: %w", err)
		}
		return nil
	})

	if w != nil {
		grp.Go(func() error {
			return monitor(ctx, w, freq)
		})
	}

	return grp.Wait()
}

func monitor(ctx context.Context, w io.Writer, freq time.Duration) error {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return fmt.Errorf("could not start monitoring (pid=%d): %w", pid, err)
	}
	p.W = w
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	<-ctx.Done()
	err = p.Kill()
	if err != nil {
		return fmt.Errorf("could not stop monitoring (pid=%d): %w", pid, err)
	}
	return nil
}

func newOutput(devmem string, base int64) func() (rtio.Output, error) {
	if devmem == "" {
		return func() (rtio.Output, error) {
			return rtio.NewSim(), nil
		}
	}
	return func() (rtio.Output, error) {
		return rtio.OpenMMIO(devmem, base)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func alert(name string) func(op string, err error) {
	return func(op string, err error) {
		log.Printf("could not %s: %+v", op, err)
		if alertMailUsr == "" || alertMailSrv == "" {
			return
		}

		msg := newAlertMail(name, op, err)
		dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
		err = dial.DialAndSend(msg)
		if err != nil {
			log.Printf("could not send alert mail: %+v", err)
		}
	}
}

func newAlertMail(name, op string, err error) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[urukul-daq] %s: could not %s", name, op))
	msg.SetBody("text/plain", fmt.Sprintf("process: %q\ncommand: %q\nerror: %+v\ndate: %v",
		name, op, err, time.Now().UTC().Format(time.RFC3339),
	))
	return msg
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
