// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// urukul-dump decodes and displays RTIO event dumps.
//
// Usage: urukul-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> urukul-dump ./events.dump
//	=== ./events.dump ===
//	t=    125000 ch=10 addr=0 data=0x08170001
//	t=    125536 ch=10 addr=1 data=0x00070200
//	[...]
//	events: 42
//	  channel 10:     40
//	  channel 11:      2
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/go-lpc/urukul/rtio"
)

func main() {
	log.SetPrefix("urukul-dump: ")
	log.SetFlags(0)

	var (
		ch  = flag.Int("ch", -1, "only display events of this RTIO channel")
		sum = flag.Bool("summary", false, "only display the per-channel summary")
	)

	flag.Usage = func() {
		fmt.Printf(`urukul-dump decodes and displays RTIO event dumps.

Usage: urukul-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> urukul-dump ./events.dump

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input dump file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, int32(*ch), *sum)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, ch int32, summary bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		dec = rtio.NewDecoder(bufio.NewReader(f))
		n   = 0
		chs = make(map[int32]int)
	)

	fmt.Fprintf(wbuf, "=== %s ===\n", fname)
loop:
	for {
		var evt rtio.Event
		err := dec.Decode(&evt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode event: %w", err)
		}
		if ch >= 0 && evt.Channel != ch {
			continue
		}
		n++
		chs[evt.Channel]++
		if summary {
			continue
		}
		fmt.Fprintf(wbuf, "t=% 10d ch=%d addr=%d data=0x%08x\n",
			evt.Time, evt.Channel, evt.Addr, evt.Data,
		)
	}

	ids := make([]int32, 0, len(chs))
	for id := range chs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(wbuf, "events: %d\n", n)
	for _, id := range ids {
		fmt.Fprintf(wbuf, "  channel %d: % 6d\n", id, chs[id])
	}

	return nil
}
