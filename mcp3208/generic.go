// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp3208

import "periph.io/x/conn/v3/physic"

// Number is the set of element types ReadInto can fill. A 12-bit code
// converts exactly to each of them: uint16 as is, uint32 zero extended,
// float32 and float64 hold every integer up to 2^24 without rounding.
type Number interface {
	~uint16 | ~uint32 | ~float32 | ~float64
}

// BurstOpts configures ReadInto. The zero value reads back to back.
type BurstOpts struct {
	// Freq paces the burst when not zero. See Dev.PacingDelay.
	Freq physic.Frequency
	// Start gates the burst. See Dev.ReadNIf.
	Start Predicate
}

// ReadInto fills data with raw codes from len(data) conversions on ch.
//
// It behaves as the Dev.ReadN family, storing into the caller's buffer.
// data is left partially written when an error is returned.
func ReadInto[T Number](d *Dev, ch Channel, data []T, o *BurstOpts) error {
	var b BurstOpts
	if o != nil {
		b = *o
	}
	return d.burst(ch, len(data), b.Freq, b.Start, func(i int, s Sample) {
		data[i] = T(s)
	})
}
