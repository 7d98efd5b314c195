// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/adc/mcp3208"
)

// config is the device wiring collected from the global flags.
type config struct {
	spi   string
	cs    string
	speed physic.Frequency
	vRef  physic.ElectricPotential
}

func configFrom(c *cli.Context) (*config, error) {
	cfg := &config{
		spi: c.String("spi"),
		cs:  c.String("cs"),
	}
	if f, ok := c.Generic("speed").(*physic.Frequency); ok {
		cfg.speed = *f
	}
	if v, ok := c.Generic("vref").(*physic.ElectricPotential); ok {
		cfg.vRef = *v
	}
	if cfg.speed <= 0 {
		return nil, fmt.Errorf("invalid SPI clock %s", cfg.speed)
	}
	if cfg.vRef <= 0 {
		return nil, fmt.Errorf("invalid reference voltage %s", cfg.vRef)
	}
	return cfg, nil
}

// openDevice initializes the host and returns the device with a function
// releasing it.
func openDevice(c *cli.Context) (*mcp3208.Dev, func() error, error) {
	cfg, err := configFrom(c)
	if err != nil {
		return nil, nil, err
	}
	logger := loggerFrom(c)
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	p, err := spireg.Open(cfg.spi)
	if err != nil {
		return nil, nil, err
	}
	var cs gpio.PinOut
	if cfg.cs != "" {
		pin := gpioreg.ByName(cfg.cs)
		if pin == nil {
			p.Close()
			return nil, nil, fmt.Errorf("unknown GPIO %q", cfg.cs)
		}
		cs = pin
	}
	dev, err := mcp3208.New(p, cs, cfg.vRef, &mcp3208.Opts{Freq: cfg.speed, Logger: logger})
	if err != nil {
		return nil, nil, multierr.Append(err, p.Close())
	}
	logger.Debug("opened device",
		zap.Stringer("port", p),
		zap.String("cs", cfg.cs),
		zap.Stringer("speed", cfg.speed),
		zap.Stringer("vref", cfg.vRef))
	closer := func() error {
		return multierr.Append(dev.Halt(), p.Close())
	}
	return dev, closer, nil
}

var errChannel = errors.New("input must be 0-7")

// channelFlags are shared by the commands reading a single input.
func channelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "channel",
			Aliases: []string{"c"},
			Usage:   "input 0-7",
		},
		&cli.BoolFlag{
			Name:  "diff",
			Usage: "read the differential pair starting at the input",
		},
	}
}

func channelFrom(c *cli.Context) (mcp3208.Channel, error) {
	return parseChannel(c.Int("channel"), c.Bool("diff"))
}

func parseChannel(n int, diff bool) (mcp3208.Channel, error) {
	if n < 0 || n > 7 {
		return 0, fmt.Errorf("%w, got %d", errChannel, n)
	}
	if diff {
		return mcp3208.Channel(n), nil
	}
	return mcp3208.SingleEnded(n)
}
