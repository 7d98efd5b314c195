// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp3208

import "fmt"

// Channel selects the input configuration of a conversion. It is the 4-bit
// field clocked into the device after the start bit: bit 3 is SGL/DIFF and
// bits 0-2 are D2..D0.
type Channel uint8

const (
	// Differential pairs, SGL/DIFF = 0. These are the raw channel numbers
	// 0-7 and encode as 0x0400 | ch<<6.
	Diff0P1N Channel = iota
	Diff1P0N
	Diff2P3N
	Diff3P2N
	Diff4P5N
	Diff5P4N
	Diff6P7N
	Diff7P6N
	// Single ended inputs, SGL/DIFF = 1.
	Single0
	Single1
	Single2
	Single3
	Single4
	Single5
	Single6
	Single7

	channelCount = 16
)

// SingleEnded returns the single ended configuration for input n (0-7).
func SingleEnded(n int) (Channel, error) {
	if n < 0 || n > 7 {
		return 0, fmt.Errorf("%w: input %d", ErrInvalidChannel, n)
	}
	return Single0 + Channel(n), nil
}

// Valid reports whether ch is a configuration the device understands.
func (ch Channel) Valid() bool {
	return ch < channelCount
}

func (ch Channel) String() string {
	switch {
	case !ch.Valid():
		return fmt.Sprintf("Channel(%d)", uint8(ch))
	case ch >= Single0:
		return fmt.Sprintf("CH%d", ch-Single0)
	default:
		// Pairs are (0,1), (2,3), ... with the odd member as the swapped one.
		p := uint8(ch)
		n := p ^ 1
		return fmt.Sprintf("CH%d+/CH%d-", p, n)
	}
}

// command is the 16-bit word shifted out to start a conversion.
//
//	bit 15..11  0
//	bit 10      start
//	bit 9..6    channel (SGL/DIFF, D2, D1, D0)
//	bit 5..0    0
//
// The device answers with a null bit followed by B11..B0; the last four data
// bits share the frame with the second command byte.
type command uint16

const (
	cmdStart     command = 0x0400
	channelShift         = 6

	sampleHiMask byte = 0x0F
)

func encodeCommand(ch Channel) command {
	return cmdStart | command(ch)<<channelShift
}

func (c command) hi() byte {
	return byte(c >> 8)
}

func (c command) lo() byte {
	return byte(c)
}

// decodeSample assembles the 12-bit result from the reply to the second
// command byte (B11..B8 in its low nibble) and the reply to the filler byte.
func decodeSample(hi, lo byte) Sample {
	return Sample(hi&sampleHiMask)<<8 | Sample(lo)
}
