// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package waveform draws a burst of A/D codes as an oscilloscope style
// trace.
package waveform

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Opts represents the options available for a rendering.
type Opts struct {
	Width, Height int
	// FullScale is the code drawn at the top edge. Defaults to 4095.
	FullScale uint16
	// Label is drawn in the top left corner when not empty.
	Label string

	Background color.Color
	Grid       color.Color
	Trace      color.Color
}

// DefaultOpts is a 640x240 trace in phosphor green.
var DefaultOpts = Opts{
	Width:      640,
	Height:     240,
	FullScale:  4095,
	Background: color.NRGBA{0x10, 0x10, 0x10, 0xff},
	Grid:       color.NRGBA{0x40, 0x40, 0x40, 0xff},
	Trace:      color.NRGBA{0x33, 0xff, 0x66, 0xff},
}

const gridDivisions = 4

var (
	errSize  = errors.New("waveform: invalid image size")
	fontOnce sync.Once
	fontTTF  *truetype.Font
	fontErr  error
)

// labelFace returns a new face for the label. The parsed font is shared; a
// face holds glyph buffers and must not be used by two renderings at once.
func labelFace() (font.Face, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fontErr
	}
	return truetype.NewFace(fontTTF, &truetype.Options{Size: 12, DPI: 72, Hinting: font.HintingFull}), nil
}

// Render draws codes left to right across the image, code 0 on the bottom
// edge and FullScale on the top edge. Codes above FullScale are clipped.
func Render(codes []uint16, opts *Opts) (image.Image, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.FullScale == 0 {
			o.FullScale = DefaultOpts.FullScale
		}
		if o.Background == nil {
			o.Background = DefaultOpts.Background
		}
		if o.Grid == nil {
			o.Grid = DefaultOpts.Grid
		}
		if o.Trace == nil {
			o.Trace = DefaultOpts.Trace
		}
	}
	if o.Width <= 0 || o.Height <= 0 {
		return nil, errSize
	}
	w, h := float64(o.Width), float64(o.Height)

	dc := gg.NewContext(o.Width, o.Height)
	dc.SetColor(o.Background)
	dc.Clear()

	dc.SetColor(o.Grid)
	dc.SetLineWidth(1)
	for i := 1; i < gridDivisions; i++ {
		y := h * float64(i) / gridDivisions
		dc.DrawLine(0, y, w, y)
		x := w * float64(i) / gridDivisions
		dc.DrawLine(x, 0, x, h)
	}
	dc.Stroke()

	if len(codes) != 0 {
		dc.SetColor(o.Trace)
		dc.SetLineWidth(1.5)
		step := 0.0
		if len(codes) > 1 {
			step = (w - 1) / float64(len(codes)-1)
		}
		for i, c := range codes {
			x := float64(i) * step
			y := (h - 1) * (1 - float64(min(c, o.FullScale))/float64(o.FullScale))
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		if len(codes) == 1 {
			// A single sample is a horizontal line.
			dc.LineTo(w-1, (h-1)*(1-float64(min(codes[0], o.FullScale))/float64(o.FullScale)))
		}
		dc.Stroke()
	}

	if o.Label != "" {
		face, err := labelFace()
		if err != nil {
			return nil, err
		}
		dc.SetFontFace(face)
		dc.SetColor(o.Trace)
		dc.DrawStringAnchored(o.Label, 4, 4, 0, 1)
	}
	return dc.Image(), nil
}

// SavePNG renders codes and writes the result to path.
func SavePNG(path string, codes []uint16, opts *Opts) error {
	img, err := Render(codes, opts)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}
