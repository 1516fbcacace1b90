// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package controller wires the frame codec, Protocol Engine, Link Loop,
// and Request Facade into a single runnable VMC controller, analogous to
// the reference implementation's VendingMachineController.
package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"code.vendctrl.io/vmc/config"
	"code.vendctrl.io/vmc/facade"
	"code.vendctrl.io/vmc/frame"
	"code.vendctrl.io/vmc/link"
	"code.vendctrl.io/vmc/protocol"
	"code.vendctrl.io/vmc/ratewatch"
)

// Channel is the transport the controller drives the Link Loop over; it
// is exactly link.ByteChannel, re-exported so callers don't need to
// import the link package just to construct a Controller.
type Channel = link.ByteChannel

// shutdownJoinTimeout bounds how long Stop waits for the Link Loop
// goroutine to exit after its context is cancelled.
const shutdownJoinTimeout = 2 * time.Second

// Controller owns the Protocol Engine, the Link Loop goroutine, and the
// Request Facade, and reports the channel's connection state.
type Controller struct {
	engine   *protocol.Engine
	loop     *link.Loop
	facade   *facade.Facade
	channel  Channel
	watchdog *ratewatch.PollWatchdog

	connected atomic.Bool

	group  *errgroup.Group
	cancel context.CancelFunc
	log    zerolog.Logger
}

// New builds a Controller over channel using cfg's timeouts/retries.
// Callers reach its Facade through Controller.Facade. The Link Loop is not
// started until Run is called.
func New(channel Channel, cfg config.Config, log zerolog.Logger) *Controller {
	engine := protocol.NewEngine(
		protocol.WithMaxRetries(cfg.MaxRetries),
		protocol.WithCommandTimeout(cfg.CommandTimeout),
		protocol.WithLogger(log),
	)

	c := &Controller{
		engine:   engine,
		channel:  channel,
		watchdog: ratewatch.NewPollWatchdog(cfg.PollInterval, 3),
		log:      log,
	}
	c.connected.Store(channel.IsOpen())

	diagLimiter := ratewatch.NewDiagnosticLimiter()
	c.loop = link.NewLoop(channel, pollObservingHandler{engine: engine, watchdog: c.watchdog},
		link.WithLogger(log),
		link.WithDiagnostics(ratewatch.DiagnosticLogger(log, diagLimiter)),
	)

	c.facade = facade.New(engine, c.IsConnected,
		facade.WithLogger(log),
		facade.WithSerialPort(cfg.SerialPort),
		facade.WithLinkHealth(func() bool { return c.watchdog.Healthy(time.Now()) }),
	)

	return c
}

// Facade returns the caller-facing API.
func (c *Controller) Facade() *facade.Facade { return c.facade }

// IsConnected reports the channel's current open/closed state.
func (c *Controller) IsConnected() bool {
	return c.connected.Load()
}

// Run starts the Link Loop and blocks until ctx is cancelled or the loop
// exits, refreshing the connection state as it goes.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	c.group = group

	group.Go(func() error {
		return c.loop.Run(gctx)
	})
	group.Go(func() error {
		return c.watchConnection(gctx)
	})

	return group.Wait()
}

// watchConnection periodically refreshes the cached connected flag so
// Health/Ready reflect a dropped channel without blocking on the Link
// Loop.
func (c *Controller) watchConnection(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.connected.Store(c.channel.IsOpen())
			if !c.watchdog.Healthy(time.Now()) {
				c.log.Warn().Msg("no POLL observed within the expected cadence")
			}
		}
	}
}

// Stop cancels the Link Loop and waits up to shutdownJoinTimeout for it
// to exit, then resolves any still-outstanding pending transactions with
// a shutdown failure.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		done := make(chan struct{})
		go func() {
			_ = c.group.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownJoinTimeout):
			c.log.Warn().Msg("controller shutdown join timed out")
		}
	}
	c.engine.Stop()
}

// pollObservingHandler wraps the engine so the controller's watchdog sees
// every POLL frame, without protocol.Engine needing to know ratewatch
// exists.
type pollObservingHandler struct {
	engine   *protocol.Engine
	watchdog *ratewatch.PollWatchdog
}

func (h pollObservingHandler) HandleFrame(f frame.Frame) []byte {
	if f.Command == frame.POLL {
		h.watchdog.Observe(time.Now())
	}
	return h.engine.HandleFrame(f)
}
