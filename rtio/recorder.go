// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtio

import (
	"fmt"
	"io"
)

// Recorder is an output queue that dumps every accepted event to a stream
// before handing it over to the wrapped output.
type Recorder struct {
	out Output
	enc *Encoder
}

// NewRecorder returns a recorder that forwards events to out and dumps
// them to w.
func NewRecorder(out Output, w io.Writer) *Recorder {
	return &Recorder{
		out: out,
		enc: NewEncoder(w),
	}
}

// Counter returns the hardware counter of the wrapped output.
func (rec *Recorder) Counter() int64 { return rec.out.Counter() }

func (rec *Recorder) Write(evt Event) error {
	err := rec.out.Write(evt)
	if err != nil {
		return err
	}

	err = rec.enc.Encode(evt)
	if err != nil {
		return fmt.Errorf("rtio: could not record event: %w", err)
	}
	return nil
}

// Close terminates the dump stream.
// Close does not close the wrapped output nor the underlying writer.
func (rec *Recorder) Close() error {
	return rec.enc.Close()
}

// ReadAll decodes all the events of a dump stream.
func ReadAll(r io.Reader) ([]Event, error) {
	var (
		dec  = NewDecoder(r)
		evts []Event
	)
	for {
		var evt Event
		err := dec.Decode(&evt)
		if err != nil {
			if err == io.EOF {
				return evts, nil
			}
			return evts, err
		}
		evts = append(evts, evt)
	}
}

var (
	_ Output = (*Recorder)(nil)
)
