// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package meter implements a 1D level meter that outputs to a terminal using
// ANSI color codes.
//
// Each refresh rewrites the current line, so a loop calling Show renders a
// live bar graph of an A/D input.
package meter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this meter.
type Opts struct {
	// X is the width of the bar in cells.
	X int
	// FullScale is the level of a full bar. Defaults to 4095.
	FullScale int
	Palette   *ansi256.Palette
	// W defaults to a color capable stdout.
	W io.Writer
}

// Dev is a level meter drawn on the console.
type Dev struct {
	w         io.Writer
	l         int
	fullScale int
	palette   ansi256.Palette

	// screen holds the cells currently shown, bar is scratch space for Show.
	screen *image.NRGBA
	bar    *image.NRGBA
	text   string
	buf    bytes.Buffer
}

var (
	low  = color.NRGBA{0x00, 0xc0, 0x00, 0xff}
	mid  = color.NRGBA{0xe0, 0xc0, 0x00, 0xff}
	high = color.NRGBA{0xe0, 0x00, 0x00, 0xff}
	off  = color.NRGBA{0x20, 0x20, 0x20, 0xff}
)

// New returns a meter X cells wide.
func New(opts *Opts) (*Dev, error) {
	if opts.X <= 0 {
		return nil, errors.New("meter: invalid width")
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	fs := opts.FullScale
	if fs <= 0 {
		fs = 4095
	}
	return &Dev{
		w:         w,
		l:         opts.X,
		fullScale: fs,
		palette:   *p,
		screen:    image.NewNRGBA(image.Rect(0, 0, opts.X, 1)),
		bar:       image.NewNRGBA(image.Rect(0, 0, opts.X, 1)),
	}, nil
}

func (d *Dev) String() string {
	return "Meter"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors and ends the line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Show draws level as a bar, green up to half scale, yellow up to 80% and red
// above, followed by text.
func (d *Dev) Show(level int, text string) error {
	lit := 0
	if level > 0 {
		lit = (min(level, d.fullScale)*d.l + d.fullScale/2) / d.fullScale
	}
	for x := range d.l {
		c := off
		if x < lit {
			switch pos := (x + 1) * 10; {
			case pos <= 5*d.l:
				c = low
			case pos <= 8*d.l:
				c = mid
			default:
				c = high
			}
		}
		d.bar.SetNRGBA(x, 0, c)
	}
	d.text = text
	return d.Draw(d.Bounds(), d.bar, image.Point{})
}

// Write accepts a stream of raw RGB pixels, one per cell from the left, and
// shows them.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("meter: invalid RGB stream length")
	}
	for x := 0; x < d.l && 3*x < len(pixels); x++ {
		p := pixels[3*x:]
		d.screen.SetNRGBA(x, 0, color.NRGBA{p[0], p[1], p[2], 0xff})
	}
	return len(pixels), d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	draw.Draw(d.screen, r, src, sp, draw.Src)
	return d.refresh()
}

// refresh rewrites the current terminal line with the cells and the text.
func (d *Dev) refresh() error {
	d.buf.Reset()
	d.buf.WriteString("\r\033[0m")
	for x := range d.l {
		d.buf.WriteString(d.palette.Block(d.screen.NRGBAAt(x, 0)))
	}
	fmt.Fprintf(&d.buf, "\033[0m %s\033[K", d.text)
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
