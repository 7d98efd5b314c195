// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scope

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// randomBoundary returns a fresh 60 character multipart boundary.
func randomBoundary() string {
	return multipart.NewWriter(io.Discard).Boundary()
}

// frameWriter writes an endless multipart/x-mixed-replace body. Every frame
// is followed by a delimiter so clients show it before the next one exists.
type frameWriter struct {
	w        io.Writer
	boundary string
	buf      bytes.Buffer
}

// open writes the first delimiter.
func (fw *frameWriter) open() error {
	_, err := fmt.Fprintf(fw.w, "--%s\r\n", fw.boundary)
	return err
}

func (fw *frameWriter) write(header http.Header, payload []byte) error {
	header.Set("Content-Length", strconv.Itoa(len(payload)))
	fw.buf.Reset()
	if err := header.Write(&fw.buf); err != nil {
		return err
	}
	fw.buf.WriteString("\r\n")
	fw.buf.Write(payload)
	fmt.Fprintf(&fw.buf, "\r\n--%s\r\n", fw.boundary)
	_, err := fw.buf.WriteTo(fw.w)
	return err
}

// frame is what a client needs to send one image and wait for the next.
type frame struct {
	payload []byte
	// changed is closed by the next Draw.
	changed <-chan struct{}
	// halted is closed by the next Halt.
	halted <-chan struct{}
}

// current returns the latest frame encoded as f. Encodings are cached until
// the next Draw and are never modified once cached, so clients share them.
func (s *Scope) current(f ImageFormat) (frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := s.encoded[f]
	if encoded == nil {
		var buf bytes.Buffer
		if err := f.encode(&buf, s.buffer); err != nil {
			return frame{}, err
		}
		encoded = buf.Bytes()
		s.encoded[f] = encoded
	}
	return frame{payload: encoded, changed: s.changed, halted: s.halted}, nil
}

// formatFrom returns the format requested by the "format" parameter, or the
// default one.
func (s *Scope) formatFrom(r *http.Request) (ImageFormat, error) {
	if value := r.URL.Query().Get("format"); value != "" {
		return ParseImageFormat(value)
	}
	return s.defaultFormat, nil
}

// ServeHTTP handles HTTP GET requests and sends a stream of waveform images
// in response, a new one for every Publish. Clients can pick PNG or JPEG with
// the "format" parameter ("?format=png", "?format=jpeg").
func (s *Scope) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	format, err := s.formatFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fw := &frameWriter{w: w, boundary: randomBoundary()}
	w.Header().Set("Content-Type",
		mime.FormatMediaType("multipart/x-mixed-replace", map[string]string{
			"boundary": fw.boundary,
		}))
	header := http.Header{}
	header.Set("Content-Type", format.mimeType())
	header.Set("Content-Transfer-Encoding", "binary")

	log := s.log.With(zap.String("remote", r.RemoteAddr), zap.Stringer("format", format))
	log.Info("client connected")
	defer log.Debug("client disconnected")
	if err := fw.open(); err != nil {
		log.Debug("write failed", zap.Error(err))
		return
	}

	for {
		f, err := s.current(format)
		if err != nil {
			log.Error("encoding frame failed", zap.Error(err))
			return
		}
		if err := fw.write(header, f.payload); err != nil {
			// Errors can't be reported inside an image stream.
			log.Debug("write failed", zap.Error(err))
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		select {
		case <-f.changed:
		case <-f.halted:
			return
		case <-r.Context().Done():
			return
		}
	}
}
