// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

//go:build linux

// Package serialio provides link.ByteChannel implementations: a real
// Linux serial-port transport over github.com/daedaluz/goserial, and an
// in-memory fake for tests and hardware-less development.
package serialio

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

// defaultReadTimeout bounds how long a single ReadAvailable call blocks
// waiting for bytes before returning empty. The Link Loop treats a
// zero-length, nil-error read as "nothing available right now" and moves
// on to its own idle sleep, so this should stay short.
const defaultReadTimeout = 100 * time.Millisecond

// SerialChannel is a link.ByteChannel backed by a real Linux serial port.
type SerialChannel struct {
	port   *serial.Port
	device string
}

// Open opens name (e.g. "/dev/ttyUSB0") at baud, puts the line into raw
// mode, and returns a SerialChannel ready for the Link Loop.
func Open(name string, baud serial.CFlag, readTimeout time.Duration) (*SerialChannel, error) {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	opts := serial.NewOptions().SetReadTimeout(readTimeout)
	port, err := serial.Open(name, opts)
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s: %w", name, err)
	}
	if err := port.MakeRaw(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serialio: make raw %s: %w", name, err)
	}
	attrs, err := port.GetAttr()
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serialio: get attr %s: %w", name, err)
	}
	attrs.SetSpeed(baud)
	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serialio: set attr %s: %w", name, err)
	}
	return &SerialChannel{port: port, device: name}, nil
}

// ReadAvailable reads whatever arrives within the port's configured read
// timeout. Both io.EOF-free zero reads and genuine timeouts surface as a
// nil error with a zero-length slice, matching link.ByteChannel's
// "nothing available right now" contract.
func (s *SerialChannel) ReadAvailable() ([]byte, error) {
	buf := make([]byte, 512)
	n, err := s.port.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("serialio: read %s: %w", s.device, err)
	}
	return buf[:n], nil
}

// Write writes b in full to the port.
func (s *SerialChannel) Write(b []byte) error {
	n, err := s.port.Write(b)
	if err != nil {
		return fmt.Errorf("serialio: write %s: %w", s.device, err)
	}
	if n != len(b) {
		return fmt.Errorf("serialio: short write to %s: wrote %d of %d bytes", s.device, n, len(b))
	}
	return nil
}

// IsOpen reports whether the underlying file descriptor is still valid.
func (s *SerialChannel) IsOpen() bool {
	return s.port.Fd() >= 0
}

// Close releases the underlying file descriptor.
func (s *SerialChannel) Close() error {
	return s.port.Close()
}
