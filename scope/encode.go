// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scope

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"
)

// ImageFormat is the encoding of the streamed frames.
type ImageFormat int

const (
	PNG ImageFormat = iota
	JPEG

	// DefaultFormat is the format used when not set explicitly in options or
	// as a URL parameter.
	DefaultFormat = PNG
)

// jpegQuality is high enough to keep a one pixel trace legible.
const jpegQuality = 90

func (f ImageFormat) String() string {
	switch f {
	case PNG:
		return "PNG"
	case JPEG:
		return "JPEG"
	default:
		return fmt.Sprint(int(f))
	}
}

func (f ImageFormat) mimeType() string {
	switch f {
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// encode writes img to w in format f.
func (f ImageFormat) encode(w io.Writer, img image.Image) error {
	switch f {
	case PNG:
		return pngEncoder.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	}
	return fmt.Errorf("scope: unhandled image format %s", f)
}

// ParseImageFormat returns the ImageFormat for a format abbreviation, in any
// case: "png", "jpg" or "jpeg".
func ParseImageFormat(value string) (ImageFormat, error) {
	switch strings.ToLower(value) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	}
	return DefaultFormat, fmt.Errorf("scope: unrecognized image format %q", value)
}

type pngBufferPool struct {
	p sync.Pool
}

func (b *pngBufferPool) Get() *png.EncoderBuffer {
	buf, _ := b.p.Get().(*png.EncoderBuffer)
	return buf
}

func (b *pngBufferPool) Put(buf *png.EncoderBuffer) {
	b.p.Put(buf)
}

// pngEncoder is shared by all clients; frames are encoded once per publish.
var pngEncoder = png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &pngBufferPool{},
}
