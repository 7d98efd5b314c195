// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scope serves the latest captured A/D burst as a live image stream
// over HTTP.
//
// Every Publish renders the burst as a waveform and pushes it to all
// connected clients. The protocol is "MJPEG"
// (https://en.wikipedia.org/wiki/Motion_JPEG), a multipart/x-mixed-replace
// response that browsers display in an <img> tag. PNG is used by default as
// it suits line drawings better; JPEG can be selected via Options.Format or
// the "format" URL parameter.
package scope

import (
	"image"
	"image/color"
	"image/draw"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/display"

	"github.com/GermanBionicSystems/adc/waveform"
)

// Options for a Scope.
type Options struct {
	// Width and height of the rendered waveform.
	Width, Height int

	// Format specifies the image format to send to clients.
	Format ImageFormat

	// FullScale is the code drawn at the top edge. Defaults to 4095.
	FullScale uint16

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Scope renders published bursts and streams them to HTTP clients.
type Scope struct {
	defaultFormat ImageFormat
	wave          waveform.Opts
	log           *zap.Logger

	mu      sync.Mutex
	buffer  *image.RGBA
	frames  uint64
	encoded map[ImageFormat][]byte
	changed chan struct{}
	halted  chan struct{}
}

var _ display.Drawer = (*Scope)(nil)
var _ http.Handler = (*Scope)(nil)

// New creates a Scope showing an empty trace.
func New(opt *Options) *Scope {
	buffer := image.NewRGBA(image.Rect(0, 0, opt.Width, opt.Height))

	// The alpha channel starts fully transparent; make it opaque.
	draw.Draw(buffer, buffer.Bounds(), image.Black, image.Point{}, draw.Src)

	wave := waveform.DefaultOpts
	wave.Width, wave.Height = opt.Width, opt.Height
	if opt.FullScale != 0 {
		wave.FullScale = opt.FullScale
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Scope{
		defaultFormat: opt.Format,
		wave:          wave,
		log:           log,
		buffer:        buffer,
		encoded:       map[ImageFormat][]byte{},
		changed:       make(chan struct{}),
		halted:        make(chan struct{}),
	}
}

// Publish renders codes with label and sends the result to every client.
func (s *Scope) Publish(codes []uint16, label string) error {
	o := s.wave
	o.Label = label
	img, err := waveform.Render(codes, &o)
	if err != nil {
		return err
	}
	return s.Draw(s.Bounds(), img, image.Point{})
}

// Frames returns the number of images drawn since New.
func (s *Scope) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// String returns the name of the device.
func (s *Scope) String() string {
	return "Scope"
}

// Halt implements conn.Resource and ends the streams of the clients connected
// so far. New clients are still accepted.
func (s *Scope) Halt() error {
	s.mu.Lock()
	close(s.halted)
	s.halted = make(chan struct{})
	s.mu.Unlock()
	return nil
}

// ColorModel implements display.Drawer.
func (s *Scope) ColorModel() color.Model {
	return s.buffer.ColorModel()
}

// Bounds implements display.Drawer.
func (s *Scope) Bounds() image.Rectangle {
	return s.buffer.Bounds()
}

// Draw implements display.Drawer.
func (s *Scope) Draw(dstRect image.Rectangle, src image.Image, srcPts image.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draw.Draw(s.buffer, dstRect, src, srcPts, draw.Src)
	s.frames++
	clear(s.encoded)
	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}
