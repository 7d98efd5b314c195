// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp3208

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"periph.io/x/conn/v3/physic"
)

func TestDivRound(t *testing.T) {
	testCases := []struct {
		n, d, want int64
	}{
		{0, 5, 0},
		{10, 4, 2},
		{7, 4, 2},
		// 1.5 rounds down: the bias is a quarter of d, not a half.
		{6, 4, 1},
		{100, 3, 33},
		{5_120_000, 256, 20_000},
		{1_000_000_000_000_000, 3_000_000_000, 333_333},
	}
	for _, tc := range testCases {
		if got := divRound(tc.n, tc.d); got != tc.want {
			t.Errorf("divRound(%d, %d)=%d expected %d", tc.n, tc.d, got, tc.want)
		}
	}
}

func TestCalibrate(t *testing.T) {
	d, sc, clk := newScripted(t)
	lat, err := d.Calibrate(Single0)
	if err != nil {
		t.Fatal(err)
	}
	if lat != 20*time.Microsecond {
		t.Errorf("latency %s expected 20µs", lat)
	}
	if sc.convs != CalibrationSamples {
		t.Errorf("%d conversions expected %d", sc.convs, CalibrationSamples)
	}
	if got, ok := d.Latency(); !ok || got != lat {
		t.Errorf("cached latency %s, %t", got, ok)
	}
	if len(clk.slept) != 0 {
		t.Errorf("calibration slept %v", clk.slept)
	}

	sc.cost = 30 * time.Microsecond
	lat, err = d.CalibrateN(Single0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := d.Latency(); got != 30*time.Microsecond || lat != got {
		t.Errorf("recalibration cached %s, returned %s", got, lat)
	}

	if _, err := d.CalibrateN(Single0, 0); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected invalid count, got %v", err)
	}
	if got, _ := d.Latency(); got != 30*time.Microsecond {
		t.Errorf("failed calibration changed the cache to %s", got)
	}
}

// mockTick advances a clock.Mock for every conversion.
type mockTick struct {
	m *clock.Mock
}

func (t *mockTick) Sleep(d time.Duration) {
	t.m.Add(d)
}

func TestCalibrateDeterministic(t *testing.T) {
	m := clock.NewMock()
	sc := &scriptConn{clk: &mockTick{m}, cost: 37 * time.Microsecond}
	d, err := NewConn(sc, nil, 3300*physic.MilliVolt, &Opts{Clock: m})
	if err != nil {
		t.Fatal(err)
	}
	first, err := d.CalibrateN(Single4, ImplicitCalibrationSamples)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.CalibrateN(Single4, ImplicitCalibrationSamples)
	if err != nil {
		t.Fatal(err)
	}
	if first != second || first != 37*time.Microsecond {
		t.Errorf("calibrations returned %s and %s", first, second)
	}
	if got, _ := d.Latency(); got != second {
		t.Errorf("cached %s", got)
	}
}

func TestMeasureSpeed(t *testing.T) {
	d, sc, _ := newScripted(t)
	sc.cost = 12 * time.Microsecond
	lat, err := d.MeasureSpeed(Single1, 8)
	if err != nil {
		t.Fatal(err)
	}
	if lat != 12*time.Microsecond {
		t.Errorf("measured %s", lat)
	}
	if _, ok := d.Latency(); ok {
		t.Error("MeasureSpeed calibrated the device")
	}
	if _, err := d.MeasureSpeed(Single1, -1); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected invalid count, got %v", err)
	}
}

func TestPacingDelay(t *testing.T) {
	d, sc, _ := newScripted(t)
	delay, err := d.PacingDelay(Single0, physic.KiloHertz)
	if err != nil {
		t.Fatal(err)
	}
	if sc.convs != ImplicitCalibrationSamples {
		t.Errorf("implicit calibration ran %d conversions", sc.convs)
	}
	if delay != 980*time.Microsecond {
		t.Errorf("delay %s expected 980µs", delay)
	}

	testCases := []struct {
		f    physic.Frequency
		want time.Duration
	}{
		{physic.Hertz, time.Second - 20*time.Microsecond},
		{3 * physic.KiloHertz, 313 * time.Microsecond},
		{40 * physic.KiloHertz, 5 * time.Microsecond},
		{50 * physic.KiloHertz, 0},
		{100 * physic.KiloHertz, 0},
		{physic.GigaHertz, 0},
		{500 * physic.MilliHertz, 2*time.Second - 20*time.Microsecond},
	}
	for _, tc := range testCases {
		got, err := d.PacingDelay(Single0, tc.f)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("PacingDelay(%s)=%s expected %s", tc.f, got, tc.want)
		}
	}
	if sc.convs != ImplicitCalibrationSamples {
		t.Errorf("calibrated again: %d conversions", sc.convs)
	}

	for _, f := range []physic.Frequency{0, -physic.Hertz} {
		if _, err := d.PacingDelay(Single0, f); !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("PacingDelay(%s) returned %v", f, err)
		}
	}
}

func TestPacingDelayMonotonic(t *testing.T) {
	d, _, _ := newScripted(t)
	if _, err := d.Calibrate(Single0); err != nil {
		t.Fatal(err)
	}
	prev := time.Duration(1<<63 - 1)
	for f := physic.Hertz; f <= 200*physic.KiloHertz; f += 997 * physic.Hertz {
		delay, err := d.PacingDelay(Single0, f)
		if err != nil {
			t.Fatal(err)
		}
		if delay < 0 {
			t.Fatalf("negative delay %s at %s", delay, f)
		}
		if delay > prev {
			t.Fatalf("delay %s at %s is above %s", delay, f, prev)
		}
		prev = delay
	}
	if prev != 0 {
		t.Errorf("expected delay to reach 0, got %s", prev)
	}
}

func TestPacingUnattainableLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	clk := &fakeClock{}
	sc := &scriptConn{clk: &tickClock{clk}, cost: 20 * time.Microsecond}
	d, err := NewConn(sc, nil, physic.Volt, &Opts{Clock: clk, Logger: zap.New(core)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.PacingDelay(Single0, physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	if n := logs.FilterMessage("calibrated").Len(); n != 1 {
		t.Errorf("%d calibration logs", n)
	}
	if n := logs.FilterMessage("sampling frequency unattainable").Len(); n != 1 {
		t.Errorf("%d unattainable logs", n)
	}
}

func TestReadN(t *testing.T) {
	d, sc, clk := newScripted(t, 10, 20, 4095, 0, 7)
	start := clk.Now()
	got, err := d.ReadN(Single3, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Sample{10, 20, 4095, 0, 7}, got); diff != "" {
		t.Errorf("ReadN() mismatch (-want +got):\n%s", diff)
	}
	if len(clk.slept) != 0 {
		t.Errorf("unpaced read slept %v", clk.slept)
	}
	if elapsed := clk.Now().Sub(start); elapsed != 5*sc.cost {
		t.Errorf("elapsed %s", elapsed)
	}
	if _, ok := d.Latency(); ok {
		t.Error("unpaced read calibrated the device")
	}

	got, err = d.ReadN(Single3, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadN(0)=%v, %v", got, err)
	}
	if _, err := d.ReadN(Single3, -1); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected invalid count, got %v", err)
	}
}

func TestReadNIf(t *testing.T) {
	d, sc, clk := newScripted(t, 1, 1, 1, 5, 2, 2)
	got, err := d.ReadNIf(Single0, 2, func(s Sample) bool { return s == 5 })
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Sample{2, 2}, got); diff != "" {
		t.Errorf("ReadNIf() mismatch (-want +got):\n%s", diff)
	}
	if sc.convs != 6 {
		t.Errorf("%d conversions", sc.convs)
	}
	if len(clk.slept) != 0 {
		t.Errorf("unpaced read slept %v", clk.slept)
	}
}

func TestReadNPaced(t *testing.T) {
	d, sc, clk := newScripted(t)
	if _, err := d.Calibrate(Single0); err != nil {
		t.Fatal(err)
	}
	sc.samples = []Sample{100, 200, 300}
	got, err := d.ReadNPaced(Single0, 3, physic.KiloHertz)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Sample{100, 200, 300}, got); diff != "" {
		t.Errorf("ReadNPaced() mismatch (-want +got):\n%s", diff)
	}
	// The last sample is followed by a pause as well.
	want := []time.Duration{980 * time.Microsecond, 980 * time.Microsecond, 980 * time.Microsecond}
	if diff := cmp.Diff(want, clk.slept); diff != "" {
		t.Errorf("pauses mismatch (-want +got):\n%s", diff)
	}

	if _, err := d.ReadNPaced(Single0, 3, 0); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("expected invalid frequency, got %v", err)
	}
}

func TestReadNIfPaced(t *testing.T) {
	d, sc, clk := newScripted(t)
	if _, err := d.Calibrate(Single0); err != nil {
		t.Fatal(err)
	}
	sc.samples = []Sample{0, 0, 3000, 1, 2, 3}
	got, err := d.ReadNIfPaced(Single0, 3, 2*physic.KiloHertz, func(s Sample) bool { return s > 2048 })
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Sample{1, 2, 3}, got); diff != "" {
		t.Errorf("ReadNIfPaced() mismatch (-want +got):\n%s", diff)
	}
	// Waiting for the trigger is not paced.
	if len(clk.slept) != 3 || clk.slept[0] != 480*time.Microsecond {
		t.Errorf("pauses %v", clk.slept)
	}
	if _, err := d.ReadNIfPaced(Single0, 3, -physic.Hertz, nil); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("expected invalid frequency, got %v", err)
	}
}

func TestMeasurePacedSpeed(t *testing.T) {
	d, _, _ := newScripted(t)
	if _, err := d.Calibrate(Single0); err != nil {
		t.Fatal(err)
	}
	period, err := d.MeasurePacedSpeed(Single0, 4, physic.KiloHertz)
	if err != nil {
		t.Fatal(err)
	}
	if period != time.Millisecond {
		t.Errorf("achieved period %s", period)
	}
	// 100kHz is out of reach: the device samples as fast as it can.
	period, err = d.MeasurePacedSpeed(Single0, 4, 100*physic.KiloHertz)
	if err != nil {
		t.Fatal(err)
	}
	if period != 20*time.Microsecond {
		t.Errorf("achieved period %s", period)
	}
	if _, err := d.MeasurePacedSpeed(Single0, 0, physic.KiloHertz); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected invalid count, got %v", err)
	}
}

func TestReadInto(t *testing.T) {
	d, sc, _ := newScripted(t, 1, 4095, 2048)
	volts := make([]float64, 3)
	if err := ReadInto(d, Single6, volts, nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 4095, 2048}, volts); diff != "" {
		t.Errorf("ReadInto[float64]() mismatch (-want +got):\n%s", diff)
	}

	sc.samples = []Sample{9, 4000, 17, 18}
	wide := make([]uint32, 2)
	if err := ReadInto(d, Single6, wide, &BurstOpts{Start: func(s Sample) bool { return s >= 4000 }}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{17, 18}, wide); diff != "" {
		t.Errorf("ReadInto[uint32]() mismatch (-want +got):\n%s", diff)
	}

	sc.fill = 3333
	single := make([]float32, 2)
	if err := ReadInto(d, Single6, single, &BurstOpts{Freq: 10 * physic.Hertz}); err != nil {
		t.Fatal(err)
	}
	if single[0] != 3333 || single[1] != 3333 {
		t.Errorf("ReadInto[float32]()=%v", single)
	}
	if _, ok := d.Latency(); !ok {
		t.Error("paced ReadInto did not calibrate")
	}

	raw := make([]Sample, 1)
	if err := ReadInto(d, Channel(99), raw, nil); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected invalid channel, got %v", err)
	}
}
