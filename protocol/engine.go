// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package protocol implements the VMC protocol state machine: the outbound
// command queue, the per-aisle pending-transaction table, the
// communication-number counter, and the retry/timeout bookkeeping.
//
// Engine is driven entirely by two kinds of input: decoded inbound frames,
// fed in through HandleFrame, and submissions from callers (through
// SubmitDispense / SubmitStatusCheck / RequestSync). It never performs I/O
// itself — HandleFrame returns the bytes the caller (the Link Loop) should
// write next, if any, and the Link Loop is solely responsible for the
// actual channel write. This keeps the engine's mutex free of blocking
// operations: every transition is computed and released before any byte
// leaves the process.
package protocol

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"code.vendctrl.io/vmc/frame"
)

const (
	defaultMaxRetries     = 5
	defaultCommandTimeout = 1 * time.Second
)

// Engine is the VMC protocol state machine. The zero value is not usable;
// construct with NewEngine.
type Engine struct {
	mu sync.Mutex

	commNum uint8

	queue           []*outboundCommand
	dispensePending map[uint16]*pendingEntry
	statusPending   map[uint16]*pendingEntry
	stopped         bool

	maxRetries     int
	commandTimeout time.Duration

	log zerolog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMaxRetries overrides the default of 5 attempts per queued command.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithCommandTimeout overrides the default 1s per-attempt ACK deadline.
func WithCommandTimeout(d time.Duration) Option {
	return func(e *Engine) { e.commandTimeout = d }
}

// WithLogger attaches a structured logger. Without one, Engine logs nothing.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine constructs an Engine ready to accept submissions and decoded
// frames. The communication-number counter starts at 1.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		commNum:         1,
		dispensePending: make(map[uint16]*pendingEntry),
		statusPending:   make(map[uint16]*pendingEntry),
		maxRetries:      defaultMaxRetries,
		commandTimeout:  defaultCommandTimeout,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nextCommNumberLocked returns the current communication number and
// advances the counter, wrapping 1 -> 255 -> 1. Never returns 0. Caller
// must hold mu.
func (e *Engine) nextCommNumberLocked() uint8 {
	cur := e.commNum
	e.commNum = (cur % 255) + 1
	return cur
}

func buildAck() []byte {
	// ACK carries no comm_num and no text; Encode never fails for it.
	wire, _ := frame.Encode(frame.ACK, nil)
	return wire
}

func (e *Engine) enqueueLocked(command frame.Command, payload []byte) error {
	commNum := e.nextCommNumberLocked()
	text := make([]byte, 0, len(payload)+1)
	text = append(text, commNum)
	text = append(text, payload...)
	wire, err := frame.Encode(command, text)
	if err != nil {
		return err
	}
	e.queue = append(e.queue, &outboundCommand{
		wire:        wire,
		command:     command,
		maxAttempts: e.maxRetries,
	})
	return nil
}

// SubmitDispense enqueues a dispense-family command (SELECT_BUY or
// DRIVE_AISLE_DIRECT) and registers onResult to be invoked once a terminal
// DISPENSING_STATUS for aisle arrives, or the engine is stopped. payload is
// the command's text after the comm_num prefix, which Engine assigns.
func (e *Engine) SubmitDispense(aisle uint16, command frame.Command, payload []byte, onResult func(DispenseResult)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if _, busy := e.dispensePending[aisle]; busy {
		return ErrAisleBusy
	}
	if err := e.enqueueLocked(command, payload); err != nil {
		return err
	}
	e.dispensePending[aisle] = &pendingEntry{kind: pendingDispense, aisle: aisle, onDispense: onResult}
	return nil
}

// SubmitStatusCheck enqueues a CHECK_AISLE command and registers onResult
// to be invoked once an AISLE_STATUS_RESPONSE for aisle arrives, or the
// engine is stopped.
func (e *Engine) SubmitStatusCheck(aisle uint16, payload []byte, onResult func(AisleStatusResult)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if _, busy := e.statusPending[aisle]; busy {
		return ErrAisleBusy
	}
	if err := e.enqueueLocked(frame.CHECK_AISLE, payload); err != nil {
		return err
	}
	e.statusPending[aisle] = &pendingEntry{kind: pendingStatusCheck, aisle: aisle, onStatus: onResult}
	return nil
}

// CancelDispense removes a pending dispense entry without resolving it,
// used by the facade once its own timeout has fired and it has already
// returned a timeout response to the caller. Any wire response that later
// arrives for that aisle is dropped silently by HandleFrame.
func (e *Engine) CancelDispense(aisle uint16) {
	e.mu.Lock()
	delete(e.dispensePending, aisle)
	e.mu.Unlock()
}

// CancelStatusCheck is CancelDispense's counterpart for status checks.
func (e *Engine) CancelStatusCheck(aisle uint16) {
	e.mu.Lock()
	delete(e.statusPending, aisle)
	e.mu.Unlock()
}

// RequestSync enqueues a REQUEST_SYNC command. It is not keyed to any
// aisle and carries no completion callback.
func (e *Engine) RequestSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	return e.enqueueLocked(frame.REQUEST_SYNC, nil)
}

// HandleFrame dispatches one decoded inbound frame and returns the wire
// bytes the Link Loop should write next, if any. It is the only entry
// point driven by inbound bytes; Submit* is the only entry point driven by
// callers.
func (e *Engine) HandleFrame(f frame.Frame) []byte {
	switch f.Command {
	case frame.POLL:
		return e.handlePoll()
	case frame.ACK:
		e.handleAck()
		return nil
	case frame.DISPENSING_STATUS:
		e.handleDispensingStatus(f.Text)
		return buildAck()
	case frame.AISLE_STATUS_RESPONSE:
		e.handleAisleStatusResponse(f.Text)
		return buildAck()
	case frame.REQUEST_SYNC:
		e.log.Debug().Msg("VMC requests synchronisation")
		if err := e.RequestSync(); err != nil {
			e.log.Warn().Err(err).Msg("failed to queue sync reply")
		}
		return buildAck()
	case frame.AISLE_INFO:
		e.handleAisleInfo(f.Text)
		return buildAck()
	case frame.MACHINE_STATUS_RESPONSE:
		e.handleMachineStatusResponse(f.Text)
		return buildAck()
	default:
		// POS_DISPLAY and any other known, unhandled command: liveness ACK
		// only. Unknown command bytes never reach here — the Framer already
		// filtered them.
		return buildAck()
	}
}

// handlePoll implements the only place outbound frames are written: the
// host may speak only once handed the floor by a POLL.
func (e *Engine) handlePoll() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if len(e.queue) > 0 {
		head := e.queue[0]
		if head.timedOut(now, e.commandTimeout) {
			head.attempts++
			if head.attempts >= head.maxAttempts {
				e.log.Warn().
					Str("command", head.command.String()).
					Int("attempts", head.attempts).
					Msg("command exhausted retries, discarding")
				e.queue = e.queue[1:]
			} else {
				head.inFlight = false
			}
		}
	}

	if len(e.queue) > 0 && !e.queue[0].inFlight {
		head := e.queue[0]
		head.inFlight = true
		head.sentAt = now
		e.log.Debug().
			Str("command", head.command.String()).
			Int("attempt", head.attempts+1).
			Msg("sending queued command")
		return append([]byte(nil), head.wire...)
	}
	return buildAck()
}

func (e *Engine) handleAck() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > 0 && e.queue[0].inFlight {
		head := e.queue[0]
		e.queue = e.queue[1:]
		e.log.Debug().Str("command", head.command.String()).Msg("command acknowledged")
	}
}

func (e *Engine) handleDispensingStatus(text []byte) {
	if len(text) < 4 {
		e.log.Warn().Int("len", len(text)).Msg("truncated DISPENSING_STATUS, dropping")
		return
	}
	status := DispensingStatus(text[1])
	aisle := binary.BigEndian.Uint16(text[2:4])

	e.mu.Lock()
	entry, ok := e.dispensePending[aisle]
	if !ok {
		e.mu.Unlock()
		e.log.Debug().Uint16("aisle", aisle).Msg("DISPENSING_STATUS for aisle with no pending entry, dropping")
		return
	}
	if status == DispensingInProgress {
		// Leave the entry in place: the VMC will follow up with a terminal
		// status later. This re-arm is exactly the behavior the original
		// controller relies on; a terminal status is not guaranteed to
		// follow within any particular bound, which is why the facade's own
		// timeout — not the engine — is what ultimately bounds the wait.
		e.mu.Unlock()
		e.log.Info().Uint16("aisle", aisle).Msg("dispensing in progress")
		return
	}
	delete(e.dispensePending, aisle)
	e.mu.Unlock()

	result := DispenseResult{
		Success: status == DispensingSuccess,
		Aisle:   aisle,
		Status:  status,
		Message: dispenseMessage(status),
	}
	e.log.Info().Uint16("aisle", aisle).Bool("success", result.Success).Msg(result.Message)
	entry.onDispense(result)
}

func (e *Engine) handleAisleStatusResponse(text []byte) {
	if len(text) < 4 {
		e.log.Warn().Int("len", len(text)).Msg("truncated AISLE_STATUS_RESPONSE, dropping")
		return
	}
	status := AisleStatus(text[1])
	aisle := binary.BigEndian.Uint16(text[2:4])

	e.mu.Lock()
	entry, ok := e.statusPending[aisle]
	if !ok {
		e.mu.Unlock()
		e.log.Debug().Uint16("aisle", aisle).Msg("AISLE_STATUS_RESPONSE for aisle with no pending entry, dropping")
		return
	}
	delete(e.statusPending, aisle)
	e.mu.Unlock()

	e.log.Info().Uint16("aisle", aisle).Uint8("status", uint8(status)).Msg("aisle status received")
	entry.onStatus(AisleStatusResult{Aisle: aisle, Status: status})
}

// Stop marks the engine stopped, refuses further submissions, and resolves
// every outstanding pending transaction with a shutdown failure rather than
// dropping it — spec.md §9's recommended resolution of its own open
// question about shutdown behavior.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	dispense := e.dispensePending
	status := e.statusPending
	e.dispensePending = make(map[uint16]*pendingEntry)
	e.statusPending = make(map[uint16]*pendingEntry)
	e.queue = nil
	e.mu.Unlock()

	for aisle, entry := range dispense {
		entry.onDispense(DispenseResult{
			Success: false,
			Aisle:   aisle,
			Message: "VMC controller shutting down",
		})
	}
	for aisle, entry := range status {
		entry.onStatus(AisleStatusResult{Aisle: aisle})
	}
}

// InFlightCount reports how many outbound commands are currently marked
// in-flight; it is always 0 or 1 and exists for tests of the testable
// property in spec.md §8.
func (e *Engine) InFlightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > 0 && e.queue[0].inFlight {
		return 1
	}
	return 0
}

// QueueLen reports the number of outbound commands awaiting send or ACK.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
