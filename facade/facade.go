// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package facade

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"code.vendctrl.io/vmc/frame"
	"code.vendctrl.io/vmc/protocol"
)

const (
	// DefaultDispenseTimeout matches spec.md §6's documented default.
	DefaultDispenseTimeout = 30 * time.Second
	// DefaultStatusTimeout matches spec.md §6's documented default.
	DefaultStatusTimeout = 10 * time.Second
)

// DispenseStatus is the caller-facing enum a dispense call resolves to.
// It deliberately does not reuse protocol.DispensingStatus — the facade's
// vocabulary is stable across wire-protocol revisions.
type DispenseStatus string

const (
	StatusDispensing DispenseStatus = "dispensing"
	StatusSuccess    DispenseStatus = "success"
	StatusJammed     DispenseStatus = "jammed"
	StatusMotorError DispenseStatus = "motor_error"
	StatusNotFound   DispenseStatus = "not_found"
	StatusFailed     DispenseStatus = "failed"
)

// DispenseResponse is the result of a dispense call.
type DispenseResponse struct {
	Success       bool
	Status        DispenseStatus
	Message       string
	TransactionID string
}

// AisleCallerStatus is the caller-facing enum a check_aisle_status call
// resolves to.
type AisleCallerStatus string

const (
	AisleCallerNormal     AisleCallerStatus = "normal"
	AisleCallerOutOfStock AisleCallerStatus = "out_of_stock"
	AisleCallerNotExist   AisleCallerStatus = "not_exist"
	AisleCallerPaused     AisleCallerStatus = "paused"
)

// AisleStatusResponse is the result of a check_aisle_status call.
type AisleStatusResponse struct {
	Status        AisleCallerStatus
	Message       string
	TransactionID string
}

// ConnectedFunc reports whether the underlying byte channel is currently
// open. The facade consults it before submitting any request.
type ConnectedFunc func() bool

// LinkHealthFunc reports whether the link's POLL cadence currently looks
// healthy (see ratewatch.PollWatchdog). Consulted only by Health; a nil
// LinkHealthFunc is treated as always-healthy, so health() stays usable
// for callers that don't wire in a watchdog.
type LinkHealthFunc func() bool

// Facade is the caller-facing API over a protocol.Engine: dispense,
// check_aisle_status, health, and ready.
type Facade struct {
	engine     *protocol.Engine
	connected  ConnectedFunc
	linkHealth LinkHealthFunc
	serialPort string
	log        zerolog.Logger
}

// Option configures a Facade at construction time.
type Option func(*Facade)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Facade) { f.log = log }
}

// WithSerialPort records the port name reported from health().
func WithSerialPort(name string) Option {
	return func(f *Facade) { f.serialPort = name }
}

// WithLinkHealth wires a rate-watch-derived link quality signal into
// health(), per spec.md §6's health() surface.
func WithLinkHealth(fn LinkHealthFunc) Option {
	return func(f *Facade) { f.linkHealth = fn }
}

// New builds a Facade over engine, consulting connected before every
// submission.
func New(engine *protocol.Engine, connected ConnectedFunc, opts ...Option) *Facade {
	f := &Facade{
		engine:    engine,
		connected: connected,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HealthResponse is the result of health().
type HealthResponse struct {
	Status      string
	Connected   bool
	SerialPort  string
	LinkHealthy bool
}

// Health reports the controller's current connection state, plus the
// rate-watch-derived link quality signal (see ratewatch.PollWatchdog):
// a link with an open channel but a stalled POLL cadence is reported as
// degraded, not ok.
func (f *Facade) Health() HealthResponse {
	connected := f.connected()
	linkHealthy := f.linkHealth == nil || f.linkHealth()

	status := "ok"
	if !connected || !linkHealthy {
		status = "degraded"
	}
	return HealthResponse{
		Status:      status,
		Connected:   connected,
		SerialPort:  f.serialPort,
		LinkHealthy: linkHealthy,
	}
}

// ReadyResponse is the result of ready().
type ReadyResponse struct {
	Ready   bool
	Message string
}

// Ready reports whether the controller is ready to accept requests.
func (f *Facade) Ready() ReadyResponse {
	if !f.connected() {
		return ReadyResponse{Ready: false, Message: "VMC not connected"}
	}
	return ReadyResponse{Ready: true, Message: "ready"}
}

var errValidationAisle = errors.New("facade: aisle must be >= 1")

// Dispense submits a dispense request for aisle and blocks until it
// resolves or ctx/timeout elapses, per spec.md §4.4.
func (f *Facade) Dispense(ctx context.Context, aisle uint16, useDropSensor, useElevator, force bool, timeout time.Duration) DispenseResponse {
	txID := uuid.NewString()

	if aisle < 1 {
		return DispenseResponse{Success: false, Status: StatusFailed, Message: errValidationAisle.Error(), TransactionID: txID}
	}
	if !f.connected() {
		return DispenseResponse{Success: false, Status: StatusFailed, Message: "VMC not connected", TransactionID: txID}
	}
	if timeout <= 0 {
		timeout = DefaultDispenseTimeout
	}

	slot := newCompletionSlot[protocol.DispenseResult]()
	onResult := func(r protocol.DispenseResult) { slot.resolve(r) }

	var submitErr error
	if force {
		payload := make([]byte, 4)
		if useDropSensor {
			payload[0] = 1
		}
		if useElevator {
			payload[1] = 1
		}
		binary.BigEndian.PutUint16(payload[2:4], aisle)
		submitErr = f.engine.SubmitDispense(aisle, frame.DRIVE_AISLE_DIRECT, payload, onResult)
	} else {
		payload := make([]byte, 2)
		binary.BigEndian.PutUint16(payload, aisle)
		submitErr = f.engine.SubmitDispense(aisle, frame.SELECT_BUY, payload, onResult)
	}
	if submitErr != nil {
		return DispenseResponse{Success: false, Status: StatusFailed, Message: submitErr.Error(), TransactionID: txID}
	}
	defer f.engine.CancelDispense(aisle)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, ok := slot.wait(ctx.Done())
	if !ok {
		f.log.Info().Uint16("aisle", aisle).Str("tx", txID).Msg("dispense timed out")
		return DispenseResponse{Success: false, Status: StatusFailed, Message: "Operation timed out", TransactionID: txID}
	}

	return DispenseResponse{
		Success:       result.Success,
		Status:        mapDispenseStatus(result.Status),
		Message:       result.Message,
		TransactionID: txID,
	}
}

// CheckAisleStatus submits a status-check request for aisle and blocks
// until it resolves or ctx/timeout elapses, per spec.md §4.4.
func (f *Facade) CheckAisleStatus(ctx context.Context, aisle uint16, timeout time.Duration) AisleStatusResponse {
	txID := uuid.NewString()

	if aisle < 1 {
		return AisleStatusResponse{Status: AisleCallerNotExist, Message: errValidationAisle.Error(), TransactionID: txID}
	}
	if !f.connected() {
		return AisleStatusResponse{Status: AisleCallerNotExist, Message: "VMC not connected", TransactionID: txID}
	}
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}

	slot := newCompletionSlot[protocol.AisleStatusResult]()
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, aisle)

	if err := f.engine.SubmitStatusCheck(aisle, payload, func(r protocol.AisleStatusResult) { slot.resolve(r) }); err != nil {
		return AisleStatusResponse{Status: AisleCallerNotExist, Message: err.Error(), TransactionID: txID}
	}
	defer f.engine.CancelStatusCheck(aisle)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, ok := slot.wait(ctx.Done())
	if !ok {
		f.log.Info().Uint16("aisle", aisle).Str("tx", txID).Msg("aisle status check timed out")
		return AisleStatusResponse{Status: AisleCallerNotExist, Message: "Operation timed out", TransactionID: txID}
	}

	status, message := mapAisleStatus(result.Status)
	return AisleStatusResponse{Status: status, Message: message, TransactionID: txID}
}

func mapDispenseStatus(s protocol.DispensingStatus) DispenseStatus {
	switch s {
	case protocol.DispensingInProgress:
		return StatusDispensing
	case protocol.DispensingSuccess:
		return StatusSuccess
	case protocol.DispensingJammed:
		return StatusJammed
	case protocol.DispensingMotorStuck:
		return StatusMotorError
	case protocol.DispensingMotorNotFound:
		return StatusNotFound
	default:
		return StatusFailed
	}
}

func mapAisleStatus(s protocol.AisleStatus) (AisleCallerStatus, string) {
	switch s {
	case protocol.AisleNormal:
		return AisleCallerNormal, "Aisle is ready"
	case protocol.AisleOutOfStock:
		return AisleCallerOutOfStock, "Aisle is out of stock"
	case protocol.AisleDoesntExist:
		return AisleCallerNotExist, "Aisle does not exist"
	case protocol.AislePaused:
		return AisleCallerPaused, "Aisle is paused"
	default:
		return AisleCallerNotExist, fmt.Sprintf("unknown aisle status %d", s)
	}
}
