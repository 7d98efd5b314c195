// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mcp3208 reads an MCP3208 A/D converter on a periph.io host.
//
// Every flag can also be set from the environment with the MCP3208_ prefix,
// e.g. MCP3208_SPI=/dev/spidev0.1.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mcp3208: %s.\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	speed := 1 * physic.MegaHertz
	vRef := 3300 * physic.MilliVolt
	return &cli.App{
		Name:  "mcp3208",
		Usage: "read an MCP3208 12-bit A/D converter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "spi",
				Usage:   "SPI port to use",
				EnvVars: []string{"MCP3208_SPI"},
			},
			&cli.StringFlag{
				Name:    "cs",
				Usage:   "GPIO driving chip select; empty uses the port's chip select",
				EnvVars: []string{"MCP3208_CS"},
			},
			&cli.GenericFlag{
				Name:    "speed",
				Usage:   "SPI clock",
				Value:   &speed,
				EnvVars: []string{"MCP3208_SPEED"},
			},
			&cli.GenericFlag{
				Name:    "vref",
				Usage:   "potential on the VREF pin",
				Value:   &vRef,
				EnvVars: []string{"MCP3208_VREF"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"MCP3208_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger, err := newLogger(c.String("log-level"))
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{"logger": logger}
			return nil
		},
		After: func(c *cli.Context) error {
			if l := loggerFrom(c); l != nil {
				_ = l.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			readCommand(),
			sampleCommand(),
			calibrateCommand(),
			meterCommand(),
			serveCommand(),
		},
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func loggerFrom(c *cli.Context) *zap.Logger {
	if l, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
		return l
	}
	return nil
}
