// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package urukul holds code to drive the AD9910 DDS channels of Urukul
// boards: waveform register encoding, RAM profiles, digital ramps and the
// timed profile switches playing them back on several boards at once.
//
// Sub-packages:
//   - rtio: real-time I/O timeline and output queues,
//   - cpld: Urukul configuration register,
//   - ad9910: DDS register encoding and multi-channel playback,
//   - design: YAML waveform designs,
//   - conddb: device database,
//   - daq: TDAQ run control.
package urukul // import "github.com/go-lpc/urukul"

import (
	"fmt"
	"runtime/debug"
)

const root = "github.com/go-lpc/urukul"

// Version returns the version of urukul and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}

	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
