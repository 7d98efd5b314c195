// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mcp3208 provides a driver for the Microchip MCP3208 12-bit, 8 input
// A/D converter on an SPI bus.
//
// Besides single conversions the driver reads bursts of samples, optionally
// paced to a requested sampling frequency. The time a conversion takes over
// the bus is measured on the device itself (see Calibrate) and the pause
// between samples is derived from it. A frequency the bus cannot sustain is
// not an error: the driver then samples back to back, as fast as it can.
// Callers that need to know must compare the achieved rate, for example with
// MeasurePacedSpeed.
//
// # Datasheet
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/21298e.pdf
package mcp3208

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	devName = "MCP3208"

	stepCount        = 1 << 12 // 12-bit A/D
	maxCode   Sample = stepCount - 1
)

var (
	// ErrInvalidChannel is returned for a Channel outside the 16 input
	// configurations of the device. Nothing is sent on the bus.
	ErrInvalidChannel = errors.New("mcp3208: invalid channel")
	// ErrTransport wraps every failure of the SPI exchange or the chip
	// select line. Failed conversions are never retried.
	ErrTransport = errors.New("mcp3208: transport fault")
	// ErrInvalidFrequency is returned for a non-positive sampling frequency.
	ErrInvalidFrequency = errors.New("mcp3208: invalid sampling frequency")
	// ErrInvalidCount is returned for a negative sample count or an empty
	// calibration burst.
	ErrInvalidCount = errors.New("mcp3208: invalid sample count")
	// ErrInvalidVoltage is returned by ToDigital for a potential outside
	// 0..VRef.
	ErrInvalidVoltage = errors.New("mcp3208: voltage out of range")

	errInvalidVRef = errors.New("mcp3208: reference voltage must be positive")
)

// Sample is a raw 12-bit conversion result, 0-4095.
type Sample uint16

// Predicate gates the start of a burst read. It is called with every
// conversion until it returns true.
type Predicate func(Sample) bool

// Clock is the time source used to calibrate and pace bursts.
//
// clock.Clock from github.com/benbjohnson/clock satisfies it.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Opts holds the configuration options.
type Opts struct {
	// Freq is the SPI clock. The device supports 2MHz at VDD=5V and 1MHz at
	// VDD=2.7V.
	Freq physic.Frequency
	// Clock defaults to the wall clock.
	Clock Clock
	// Logger receives calibration results at debug level. Defaults to a no-op
	// logger.
	Logger *zap.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Freq: 1 * physic.MegaHertz,
}

// Dev is a handle to an MCP3208.
//
// A Dev is not safe for concurrent use. The calibrated latency it caches is
// only changed by Calibrate, CalibrateN and the implicit calibration of the
// first paced read.
type Dev struct {
	c    spi.Conn
	cs   gpio.PinOut
	vRef physic.ElectricPotential
	clk  Clock
	log  *zap.Logger

	calibrated bool
	latency    time.Duration

	w, r [3]byte
}

// New opens a connection on the SPI port p and returns a handle to the
// device.
//
// cs is the GPIO driving the chip select line. The connection is then opened
// with spi.NoCS and every conversion is framed by cs going low then high. If
// cs is nil the port's own chip select is used and a conversion is a single
// 3 byte transfer.
//
// vRef is the potential applied to the VREF pin; it scales ToAnalog and
// ToDigital.
func New(p spi.Port, cs gpio.PinOut, vRef physic.ElectricPotential, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	freq := opts.Freq
	if freq == 0 {
		freq = DefaultOpts.Freq
	}
	mode := spi.Mode0
	if cs != nil {
		mode |= spi.NoCS
	}
	c, err := p.Connect(freq, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("mcp3208: %w", err)
	}
	return NewConn(c, cs, vRef, opts)
}

// NewConn returns a handle to the device using an already configured
// connection. When cs is not nil, c must not assert a chip select of its own.
func NewConn(c spi.Conn, cs gpio.PinOut, vRef physic.ElectricPotential, opts *Opts) (*Dev, error) {
	if vRef <= 0 {
		return nil, errInvalidVRef
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		c:    c,
		cs:   cs,
		vRef: vRef,
		clk:  opts.Clock,
		log:  opts.Logger,
	}
	if d.clk == nil {
		d.clk = clock.New()
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if cs != nil {
		// Park the line inactive so the first conversion sees a falling edge.
		if err := cs.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("%w: chip select: %w", ErrTransport, err)
		}
	}
	return d, nil
}

// Read performs a single conversion on ch.
func (d *Dev) Read(ch Channel) (Sample, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	return d.transact(encodeCommand(ch))
}

// ToAnalog converts a raw code to the potential on the input, truncating
// toward zero: raw * VRef / 4095.
func (d *Dev) ToAnalog(raw Sample) physic.ElectricPotential {
	return physic.ElectricPotential(int64(raw) * int64(d.vRef) / int64(maxCode))
}

// ToDigital converts a potential to the code the device would report for it,
// truncating toward zero: v * 4095 / VRef. For any code c,
// ToDigital(ToAnalog(c)) is c or c-1.
func (d *Dev) ToDigital(v physic.ElectricPotential) (Sample, error) {
	if v < 0 || v > d.vRef {
		return 0, fmt.Errorf("%w: %s", ErrInvalidVoltage, v)
	}
	return Sample(int64(v) * int64(maxCode) / int64(d.vRef)), nil
}

// VRef returns the reference voltage the device was created with.
func (d *Dev) VRef() physic.ElectricPotential {
	return d.vRef
}

// Resolution returns the potential of one step, VRef / 4095.
func (d *Dev) Resolution() physic.ElectricPotential {
	return d.vRef / physic.ElectricPotential(maxCode)
}

// Halt implements conn.Resource. It leaves the chip select line inactive.
func (d *Dev) Halt() error {
	if d.cs == nil {
		return nil
	}
	return d.cs.Out(gpio.High)
}

func (d *Dev) String() string {
	return devName
}

// transact runs one conversion. The device needs the start bit and the
// channel clocked in before it drives its output, so the reply to the first
// command byte carries nothing, the reply to the second holds B11..B8 in its
// low nibble and the reply to the filler byte holds B7..B0.
func (d *Dev) transact(cmd command) (Sample, error) {
	d.w = [3]byte{cmd.hi(), cmd.lo(), 0x00}
	if d.cs == nil {
		if err := d.c.Tx(d.w[:], d.r[:]); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return decodeSample(d.r[1], d.r[2]), nil
	}
	return d.transactCS()
}

// transactCS clocks the three bytes one at a time while holding cs low.
func (d *Dev) transactCS() (s Sample, err error) {
	if err = d.cs.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("%w: chip select: %w", ErrTransport, err)
	}
	defer func() {
		if e := d.cs.Out(gpio.High); e != nil {
			err = multierr.Append(err, fmt.Errorf("%w: chip select: %w", ErrTransport, e))
		}
		if err != nil {
			s = 0
		}
	}()
	for i := range d.w {
		if err = d.c.Tx(d.w[i:i+1], d.r[i:i+1]); err != nil {
			return 0, fmt.Errorf("%w: byte %d: %w", ErrTransport, i, err)
		}
	}
	return decodeSample(d.r[1], d.r[2]), nil
}

var _ conn.Resource = &Dev{}
