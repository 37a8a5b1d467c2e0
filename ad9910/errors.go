// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ad9910

import "errors"

var (
	// ErrRange is returned when a physical value can not be represented
	// in the targeted hardware register.
	ErrRange = errors.New("ad9910: value out of range")

	// ErrCapacity is returned when a waveform does not fit in the RAM.
	ErrCapacity = errors.New("ad9910: RAM capacity exceeded")

	// ErrConfig is returned for an invalid combination of waveform sources
	// or ramp parameters.
	ErrConfig = errors.New("ad9910: invalid configuration")
)
