// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp3208

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

const (
	// CalibrationSamples is the burst size used by Calibrate.
	CalibrationSamples = 256
	// ImplicitCalibrationSamples is the burst size used when a paced read
	// finds the device uncalibrated.
	ImplicitCalibrationSamples = 64
)

// divRound divides n by d adding a quarter of d first. This is not round to
// nearest: it rounds up only when the remainder is at least 3/4 of d. Kept
// as is so the derived delays match the device's established behaviour.
func divRound(n, d int64) int64 {
	return (n + d>>2) / d
}

// Calibrate measures the time a conversion on ch takes over
// CalibrationSamples back to back conversions and caches it for pacing.
func (d *Dev) Calibrate(ch Channel) (time.Duration, error) {
	return d.CalibrateN(ch, CalibrationSamples)
}

// CalibrateN is Calibrate with a burst of n conversions. Larger bursts take
// longer and give a steadier estimate.
func (d *Dev) CalibrateN(ch Channel, n int) (time.Duration, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	lat, err := d.measureLatency(encodeCommand(ch), n)
	if err != nil {
		return 0, err
	}
	d.calibrated = true
	d.latency = lat
	d.log.Debug("calibrated",
		zap.Stringer("channel", ch),
		zap.Int("samples", n),
		zap.Duration("latency", lat))
	return lat, nil
}

// Latency returns the cached time per conversion and whether the device has
// been calibrated.
func (d *Dev) Latency() (time.Duration, bool) {
	return d.latency, d.calibrated
}

// MeasureSpeed returns the average time per conversion over n back to back
// conversions on ch. Unlike CalibrateN it leaves the cached latency alone.
func (d *Dev) MeasureSpeed(ch Channel, n int) (time.Duration, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	return d.measureLatency(encodeCommand(ch), n)
}

// MeasurePacedSpeed returns the average sampling period achieved over n
// conversions on ch paced for f. A result above f.Period() means the bus
// cannot sustain f.
func (d *Dev) MeasurePacedSpeed(ch Channel, n int, f physic.Frequency) (time.Duration, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	delay, err := d.PacingDelay(ch, f)
	if err != nil {
		return 0, err
	}
	cmd := encodeCommand(ch)
	t1 := d.clk.Now()
	for range n {
		if _, err := d.transact(cmd); err != nil {
			return 0, err
		}
		d.clk.Sleep(delay)
	}
	elapsed := d.clk.Now().Sub(t1)
	return time.Duration(divRound(int64(elapsed), int64(n))), nil
}

// PacingDelay returns the pause to insert after each conversion on ch so
// that sampling approaches f. The device is calibrated with
// ImplicitCalibrationSamples conversions first if it never was.
//
// The delay has microsecond granularity. When f is faster than a conversion
// the delay is 0, not an error.
func (d *Dev) PacingDelay(ch Channel, f physic.Frequency) (time.Duration, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFrequency, f)
	}
	if !d.calibrated {
		if _, err := d.CalibrateN(ch, ImplicitCalibrationSamples); err != nil {
			return 0, err
		}
	}
	// physic.Frequency counts µHz.
	period := time.Duration(divRound(int64(time.Second)*int64(physic.Hertz), int64(f)))
	delay := (period - d.latency) / time.Microsecond * time.Microsecond
	if delay < 0 {
		d.log.Debug("sampling frequency unattainable",
			zap.Stringer("freq", f),
			zap.Duration("period", period),
			zap.Duration("latency", d.latency))
		delay = 0
	}
	return delay, nil
}

func (d *Dev) measureLatency(cmd command, n int) (time.Duration, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	t1 := d.clk.Now()
	for range n {
		if _, err := d.transact(cmd); err != nil {
			return 0, err
		}
	}
	elapsed := d.clk.Now().Sub(t1)
	return time.Duration(divRound(int64(elapsed), int64(n))), nil
}

// burst reads n samples of ch, handing each to store in order.
//
// A non-zero f paces the burst: the PacingDelay for f follows every stored
// sample, the last one included. A non-nil start makes the burst wait for
// the first conversion it accepts; that conversion is dropped and collection
// begins with the next one.
func (d *Dev) burst(ch Channel, n int, f physic.Frequency, start Predicate, store func(i int, s Sample)) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	if n == 0 {
		return nil
	}
	paced := f != 0
	var delay time.Duration
	if paced {
		var err error
		if delay, err = d.PacingDelay(ch, f); err != nil {
			return err
		}
	}
	cmd := encodeCommand(ch)
	if start != nil {
		for {
			s, err := d.transact(cmd)
			if err != nil {
				return err
			}
			if start(s) {
				break
			}
		}
	}
	for i := range n {
		s, err := d.transact(cmd)
		if err != nil {
			return err
		}
		store(i, s)
		if paced {
			d.clk.Sleep(delay)
		}
	}
	return nil
}

// ReadN performs n back to back conversions on ch.
func (d *Dev) ReadN(ch Channel, n int) ([]Sample, error) {
	return d.readN(ch, n, 0, nil)
}

// ReadNPaced performs n conversions on ch paced for f. See PacingDelay.
func (d *Dev) ReadNPaced(ch Channel, n int, f physic.Frequency) ([]Sample, error) {
	if f <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrequency, f)
	}
	return d.readN(ch, n, f, nil)
}

// ReadNIf converts ch until p accepts a sample, then performs n back to back
// conversions. The accepted sample is not part of the result.
func (d *Dev) ReadNIf(ch Channel, n int, p Predicate) ([]Sample, error) {
	return d.readN(ch, n, 0, p)
}

// ReadNIfPaced is ReadNIf with the n conversions paced for f. Waiting for p
// is not paced.
func (d *Dev) ReadNIfPaced(ch Channel, n int, f physic.Frequency, p Predicate) ([]Sample, error) {
	if f <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrequency, f)
	}
	return d.readN(ch, n, f, p)
}

func (d *Dev) readN(ch Channel, n int, f physic.Frequency, p Predicate) ([]Sample, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	out := make([]Sample, n)
	if err := d.burst(ch, n, f, p, func(i int, s Sample) { out[i] = s }); err != nil {
		return nil, err
	}
	return out, nil
}
