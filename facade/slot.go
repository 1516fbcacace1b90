// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package facade is the caller-facing surface: dispense, check_aisle_status,
// health, and ready. It owns transaction-id allocation and the one-shot
// completion slots that carry a Protocol Engine callback's result across
// goroutines back to a blocked caller.
package facade

import "sync"

// completionSlot is a thread-safe, single-resolution, single-awaiter
// handoff: the Link Loop goroutine resolves it from an engine callback,
// the caller's goroutine awaits it with a timeout. Resolving twice is a
// no-op; awaiting after a timeout and then resolving late is always safe.
type completionSlot[T any] struct {
	once sync.Once
	ch   chan T
}

func newCompletionSlot[T any]() *completionSlot[T] {
	return &completionSlot[T]{ch: make(chan T, 1)}
}

// resolve delivers v to the awaiter, if anyone is still listening. Safe
// to call from any goroutine, any number of times; only the first call
// has an effect.
func (s *completionSlot[T]) resolve(v T) {
	s.once.Do(func() { s.ch <- v })
}

// wait blocks until resolve is called or done fires, returning the
// resolved value and true, or the zero value and false on timeout.
func (s *completionSlot[T]) wait(done <-chan struct{}) (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	case <-done:
		var zero T
		return zero, false
	}
}
