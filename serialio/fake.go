// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package serialio

import "sync"

// FakeChannel is an in-memory link.ByteChannel for tests and for running
// the controller without a physical serial port attached. Bytes pushed
// via Inject become readable through ReadAvailable; bytes the controller
// writes accumulate in Written.
type FakeChannel struct {
	mu      sync.Mutex
	pending []byte
	written []byte
	open    bool
}

// NewFakeChannel returns an open FakeChannel.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{open: true}
}

// Inject appends b to the channel's read buffer, as if it had arrived
// over the wire.
func (f *FakeChannel) Inject(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, b...)
}

// ReadAvailable drains and returns whatever has been injected so far.
func (f *FakeChannel) ReadAvailable() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	b := f.pending
	f.pending = nil
	return b, nil
}

// Write appends b to Written for later inspection.
func (f *FakeChannel) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b...)
	return nil
}

// Written returns everything written so far.
func (f *FakeChannel) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written...)
}

// IsOpen reports the channel's open/closed state, settable via Close.
func (f *FakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Close marks the channel closed; subsequent IsOpen calls return false.
func (f *FakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
}
