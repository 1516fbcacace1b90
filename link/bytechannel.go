// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package link runs the single background task that owns the byte channel:
// it reassembles inbound frames via frame.Decoder, dispatches each to a
// protocol.Engine, and writes back whatever bytes the engine hands it.
package link

// ByteChannel is the only thing the Link Loop depends on for transport. It
// deliberately knows nothing about serial ports, baud rates, or any other
// transport detail — those live in the serialio package (or a test fake).
type ByteChannel interface {
	// ReadAvailable returns whatever bytes are currently available without
	// blocking for more than the implementation's own short read timeout.
	// A zero-length, nil-error return means "nothing available right now".
	ReadAvailable() ([]byte, error)

	// Write writes b in full or returns an error.
	Write(b []byte) error

	// IsOpen reports whether the channel is still usable.
	IsOpen() bool
}
