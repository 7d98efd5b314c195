// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package adc is a container for A/D converter drivers and the tools built
// on them.
//
// The driver lives in mcp3208; waveform, meter and scope present captured
// samples, and cmd/mcp3208 wires them together on a periph.io host.
package adc
