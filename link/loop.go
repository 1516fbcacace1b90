// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package link

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"code.vendctrl.io/vmc/frame"
)

const (
	defaultIdleSleep    = 10 * time.Millisecond
	defaultErrorBackoff = 100 * time.Millisecond
)

// FrameHandler dispatches one decoded inbound frame and returns the wire
// bytes to write back, if any. *protocol.Engine satisfies this.
type FrameHandler interface {
	HandleFrame(f frame.Frame) []byte
}

// Loop is the single background task that owns a ByteChannel: it feeds
// inbound bytes through a frame.Decoder, dispatches decoded frames to a
// FrameHandler, and writes back whatever bytes the handler returns.
//
// Loop is driven exclusively by Run; nothing about it is safe to call
// concurrently with an in-progress Run.
type Loop struct {
	ch      ByteChannel
	handler FrameHandler
	dec     *frame.Decoder
	log     zerolog.Logger

	idleSleep    time.Duration
	errorBackoff time.Duration
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithDiagnostics wires a sink for the Framer's dropped-frame notes (bad
// checksum, unknown command byte). Pair with a rate limiter on a noisy
// link — see the ratewatch package.
func WithDiagnostics(diag frame.DiagnosticFunc) Option {
	return func(l *Loop) { l.dec = frame.NewDecoder(diag) }
}

// WithIdleSleep overrides the default ~10ms pause between idle iterations.
func WithIdleSleep(d time.Duration) Option {
	return func(l *Loop) { l.idleSleep = d }
}

// WithErrorBackoff overrides the default ~100ms pause after a channel I/O
// error.
func WithErrorBackoff(d time.Duration) Option {
	return func(l *Loop) { l.errorBackoff = d }
}

// NewLoop constructs a Loop over ch, dispatching decoded frames to handler.
func NewLoop(ch ByteChannel, handler FrameHandler, opts ...Option) *Loop {
	l := &Loop{
		ch:           ch,
		handler:      handler,
		log:          zerolog.Nop(),
		idleSleep:    defaultIdleSleep,
		errorBackoff: defaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dec == nil {
		l.dec = frame.NewDecoder(nil)
	}
	return l
}

// Run drives the loop until ctx is cancelled. It never returns a non-nil
// error on its own account — channel I/O errors are logged and retried,
// per spec; Run only returns (with nil) once ctx.Done() fires. The nil
// return lets callers compose Run with golang.org/x/sync/errgroup, which
// expects a func() error.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !l.ch.IsOpen() {
			l.sleep(ctx, l.errorBackoff)
			continue
		}

		b, err := l.ch.ReadAvailable()
		if err != nil {
			l.log.Warn().Err(err).Msg("link read error")
			l.sleep(ctx, l.errorBackoff)
			continue
		}

		if len(b) > 0 {
			l.dec.Feed(b)
			for {
				f, ok := l.dec.Next()
				if !ok {
					break
				}
				if write := l.handler.HandleFrame(f); len(write) > 0 {
					if werr := l.ch.Write(write); werr != nil {
						l.log.Warn().Err(werr).Msg("link write error")
						l.sleep(ctx, l.errorBackoff)
					}
				}
			}
		}

		l.sleep(ctx, l.idleSleep)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
