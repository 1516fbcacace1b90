// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package protocol

import (
	"time"

	"code.vendctrl.io/vmc/frame"
)

// outboundCommand is one queued, not-yet-acknowledged wire command. The
// queue holds at most one in-flight entry at a time — the head — per the
// half-duplex POLL/ACK discipline: the host may only speak when the VMC
// hands it the floor.
type outboundCommand struct {
	wire        []byte
	command     frame.Command
	attempts    int
	maxAttempts int
	inFlight    bool
	sentAt      time.Time
}

func (c *outboundCommand) timedOut(now time.Time, timeout time.Duration) bool {
	return c.inFlight && now.Sub(c.sentAt) > timeout
}
