// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/adc/mcp3208"
	"github.com/GermanBionicSystems/adc/meter"
	"github.com/GermanBionicSystems/adc/scope"
	"github.com/GermanBionicSystems/adc/waveform"
)

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "convert each input once",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:    "channel",
				Aliases: []string{"c"},
				Usage:   "inputs to read; all when omitted",
			},
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "read differential pairs",
			},
		},
		Action: func(c *cli.Context) (err error) {
			inputs := c.IntSlice("channel")
			if len(inputs) == 0 {
				inputs = []int{0, 1, 2, 3, 4, 5, 6, 7}
			}
			chans := make([]mcp3208.Channel, len(inputs))
			for i, n := range inputs {
				if chans[i], err = parseChannel(n, c.Bool("diff")); err != nil {
					return err
				}
			}
			dev, closer, err := openDevice(c)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closer()) }()
			for _, ch := range chans {
				raw, err := dev.Read(ch)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%-10s %4d %s\n", ch, raw, dev.ToAnalog(raw))
			}
			return nil
		},
	}
}

func sampleCommand() *cli.Command {
	var freq physic.Frequency
	return &cli.Command{
		Name:  "sample",
		Usage: "capture a burst of samples",
		Flags: append(channelFlags(),
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   256,
				Usage:   "number of samples",
			},
			&cli.GenericFlag{
				Name:  "freq",
				Value: &freq,
				Usage: "sampling frequency; back to back when 0",
			},
			&cli.IntFlag{
				Name:  "trigger",
				Value: -1,
				Usage: "start on the first sample at or above this code",
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "print index,code,volts lines",
			},
			&cli.StringFlag{
				Name:  "plot",
				Usage: "write the waveform to this PNG file",
			},
		),
		Action: func(c *cli.Context) (err error) {
			ch, err := channelFrom(c)
			if err != nil {
				return err
			}
			n := c.Int("count")
			if n <= 0 {
				return fmt.Errorf("invalid count %d", n)
			}
			trigger, err := triggerFrom(c)
			if err != nil {
				return err
			}
			opts := &mcp3208.BurstOpts{Freq: freq, Start: trigger}

			dev, closer, err := openDevice(c)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closer()) }()

			codes := make([]uint16, n)
			start := time.Now()
			if err := mcp3208.ReadInto(dev, ch, codes, opts); err != nil {
				return err
			}
			elapsed := time.Since(start)
			loggerFrom(c).Info("captured",
				zap.Stringer("channel", ch),
				zap.Int("samples", n),
				zap.Duration("elapsed", elapsed),
				zap.Stringer("rate", achievedRate(n, elapsed)))

			printSamples(c.App.Writer, dev, codes, c.Bool("csv"))
			if path := c.String("plot"); path != "" {
				label := fmt.Sprintf("%s %d samples", ch, n)
				if freq != 0 {
					label += " @ " + freq.String()
				}
				return waveform.SavePNG(path, codes, &waveform.Opts{Width: 800, Height: 300, Label: label})
			}
			return nil
		},
	}
}

// maxCode is the largest 12-bit conversion result.
const maxCode = 4095

// triggerFrom returns the predicate selected by --trigger, nil when it is
// negative. A level no conversion can reach is rejected since the burst would
// never start.
func triggerFrom(c *cli.Context) (mcp3208.Predicate, error) {
	level := c.Int("trigger")
	if level < 0 {
		return nil, nil
	}
	if level > maxCode {
		return nil, fmt.Errorf("invalid trigger %d, must be at most %d", level, maxCode)
	}
	return atOrAbove(mcp3208.Sample(level)), nil
}

func atOrAbove(level mcp3208.Sample) mcp3208.Predicate {
	return func(s mcp3208.Sample) bool {
		return s >= level
	}
}

// achievedRate returns the sampling rate of n samples taken over elapsed, 0
// when nothing was timed.
func achievedRate(n int, elapsed time.Duration) physic.Frequency {
	if n == 0 || elapsed <= 0 {
		return 0
	}
	return physic.PeriodToFrequency(elapsed / time.Duration(n))
}

func printSamples(w io.Writer, dev *mcp3208.Dev, codes []uint16, csv bool) {
	for i, code := range codes {
		v := dev.ToAnalog(mcp3208.Sample(code))
		if csv {
			fmt.Fprintf(w, "%d,%d,%.6f\n", i, code, float64(v)/float64(physic.Volt))
			continue
		}
		fmt.Fprintf(w, "%5d %4d %s\n", i, code, v)
	}
}

func calibrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "calibrate",
		Usage: "measure the time a conversion takes",
		Flags: append(channelFlags(),
			&cli.IntFlag{
				Name:  "samples",
				Value: mcp3208.CalibrationSamples,
				Usage: "conversions to average over",
			},
		),
		Action: func(c *cli.Context) (err error) {
			ch, err := channelFrom(c)
			if err != nil {
				return err
			}
			dev, closer, err := openDevice(c)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closer()) }()
			lat, err := dev.CalibrateN(ch, c.Int("samples"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "latency: %s\nmax rate: %s\n", lat, maxRate(lat))
			return nil
		},
	}
}

func maxRate(lat time.Duration) physic.Frequency {
	if lat <= 0 {
		return 0
	}
	return physic.PeriodToFrequency(lat)
}

func meterCommand() *cli.Command {
	return &cli.Command{
		Name:  "meter",
		Usage: "show a live level meter of one input",
		Flags: append(channelFlags(),
			&cli.IntFlag{
				Name:  "width",
				Value: 40,
				Usage: "bar width in cells",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 100 * time.Millisecond,
				Usage: "time between readings",
			},
		),
		Action: func(c *cli.Context) (err error) {
			ch, err := channelFrom(c)
			if err != nil {
				return err
			}
			dev, closer, err := openDevice(c)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closer()) }()

			show := func(raw mcp3208.Sample) error {
				_, err := fmt.Fprintf(c.App.Writer, "%s %4d %s\n", ch, raw, dev.ToAnalog(raw))
				return err
			}
			if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
				m, err := meter.New(&meter.Opts{X: c.Int("width")})
				if err != nil {
					return err
				}
				defer func() { err = multierr.Append(err, m.Halt()) }()
				show = func(raw mcp3208.Sample) error {
					return m.Show(int(raw), fmt.Sprintf("%4d %s", raw, dev.ToAnalog(raw)))
				}
			}
			return poll(c.Context, c.Duration("interval"), func() error {
				raw, err := dev.Read(ch)
				if err != nil {
					return err
				}
				return show(raw)
			})
		},
	}
}

// poll calls f every interval, or back to back when interval is 0, until ctx
// is done or f fails.
func poll(ctx context.Context, interval time.Duration, f func() error) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		if err := f(); err != nil {
			return err
		}
		if tick == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}

func serveCommand() *cli.Command {
	freq := 10 * physic.KiloHertz
	return &cli.Command{
		Name:  "serve",
		Usage: "stream live waveforms over HTTP",
		Flags: append(channelFlags(),
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "listen address",
			},
			&cli.IntFlag{
				Name:  "count",
				Value: 500,
				Usage: "samples per frame",
			},
			&cli.GenericFlag{
				Name:  "freq",
				Value: &freq,
				Usage: "sampling frequency",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "png",
				Usage: "default image format, png or jpeg",
			},
			&cli.IntFlag{
				Name:  "trigger",
				Value: -1,
				Usage: "start each frame on the first sample at or above this code",
			},
		),
		Action: func(c *cli.Context) (err error) {
			ch, err := channelFrom(c)
			if err != nil {
				return err
			}
			format, err := scope.ParseImageFormat(c.String("format"))
			if err != nil {
				return err
			}
			n := c.Int("count")
			if n <= 0 {
				return fmt.Errorf("invalid count %d", n)
			}
			trigger, err := triggerFrom(c)
			if err != nil {
				return err
			}
			opts := &mcp3208.BurstOpts{Freq: freq, Start: trigger}
			logger := loggerFrom(c)

			dev, closer, err := openDevice(c)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closer()) }()

			s := scope.New(&scope.Options{Width: 800, Height: 300, Format: format, Logger: logger})
			srv := &http.Server{Addr: c.String("addr"), Handler: s}
			errs := make(chan error, 1)
			go func() {
				logger.Info("serving", zap.String("addr", srv.Addr))
				errs <- srv.ListenAndServe()
			}()

			label := fmt.Sprintf("%s %d samples @ %s", ch, n, freq)
			codes := make([]uint16, n)
			var srvErr error
			capErr := poll(c.Context, 0, func() error {
				select {
				case srvErr = <-errs:
					return srvErr
				default:
				}
				if err := mcp3208.ReadInto(dev, ch, codes, opts); err != nil {
					return err
				}
				return s.Publish(codes, label)
			})

			_ = s.Halt()
			if srvErr != nil {
				return srvErr
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(capErr, srv.Shutdown(ctx))
			if e := <-errs; !errors.Is(e, http.ErrServerClosed) {
				err = multierr.Append(err, e)
			}
			return err
		},
	}
}
