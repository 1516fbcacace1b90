// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package facade_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.vendctrl.io/vmc/facade"
	"code.vendctrl.io/vmc/frame"
	"code.vendctrl.io/vmc/protocol"
)

func alwaysConnected() bool { return true }
func neverConnected() bool  { return false }

func TestDispenseRejectsInvalidAisle(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, alwaysConnected)

	resp := f.Dispense(context.Background(), 0, false, false, false, time.Second)
	require.False(t, resp.Success)
	require.Equal(t, facade.StatusFailed, resp.Status)
	require.NotEmpty(t, resp.TransactionID)
}

func TestDispenseWhenDisconnected(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, neverConnected)

	resp := f.Dispense(context.Background(), 5, false, false, false, time.Second)
	require.False(t, resp.Success)
	require.Equal(t, "VMC not connected", resp.Message)
}

func TestDispenseHappyPath(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, alwaysConnected)

	resultCh := make(chan facade.DispenseResponse, 1)
	go func() {
		resultCh <- f.Dispense(context.Background(), 5, false, false, false, time.Second)
	}()

	// Drive the engine as the Link Loop would: POLL flushes the queued
	// SELECT_BUY, then the VMC reports success.
	require.Eventually(t, func() bool { return e.QueueLen() == 1 }, time.Second, time.Millisecond)
	e.HandleFrame(frame.Frame{Command: frame.POLL})
	e.HandleFrame(frame.Frame{Command: frame.ACK})

	status := byte(protocol.DispensingSuccess)
	text := []byte{0x01, status, 0x00, 0x05}
	e.HandleFrame(frame.Frame{Command: frame.DISPENSING_STATUS, Text: text})

	select {
	case resp := <-resultCh:
		require.True(t, resp.Success)
		require.Equal(t, facade.StatusSuccess, resp.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("dispense did not resolve")
	}
}

func TestDispenseTimesOutAndCancelsPendingEntry(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, alwaysConnected)

	resp := f.Dispense(context.Background(), 5, false, false, false, 20*time.Millisecond)
	require.False(t, resp.Success)
	require.Equal(t, "Operation timed out", resp.Message)

	// The pending entry must be gone: a late response must not panic.
	require.NotPanics(t, func() {
		e.HandleFrame(frame.Frame{Command: frame.DISPENSING_STATUS, Text: []byte{0x01, byte(protocol.DispensingSuccess), 0x00, 0x05}})
	})

	// And a fresh submission for the same aisle must now succeed.
	require.NoError(t, e.SubmitDispense(5, frame.SELECT_BUY, []byte{0x00, 0x05}, func(protocol.DispenseResult) {}))
}

func TestCheckAisleStatusMapsEveryStatus(t *testing.T) {
	cases := []struct {
		wire        protocol.AisleStatus
		want        facade.AisleCallerStatus
		wantMessage string
	}{
		{protocol.AisleNormal, facade.AisleCallerNormal, "Aisle is ready"},
		{protocol.AisleOutOfStock, facade.AisleCallerOutOfStock, "Aisle is out of stock"},
		{protocol.AisleDoesntExist, facade.AisleCallerNotExist, "Aisle does not exist"},
		{protocol.AislePaused, facade.AisleCallerPaused, "Aisle is paused"},
	}
	for _, tc := range cases {
		e := protocol.NewEngine()
		f := facade.New(e, alwaysConnected)

		resultCh := make(chan facade.AisleStatusResponse, 1)
		go func() {
			resultCh <- f.CheckAisleStatus(context.Background(), 5, time.Second)
		}()

		require.Eventually(t, func() bool { return e.QueueLen() == 1 }, time.Second, time.Millisecond)
		e.HandleFrame(frame.Frame{Command: frame.AISLE_STATUS_RESPONSE, Text: []byte{0x01, byte(tc.wire), 0x00, 0x05}})

		select {
		case resp := <-resultCh:
			require.Equal(t, tc.want, resp.Status)
			require.Equal(t, tc.wantMessage, resp.Message)
		case <-time.After(2 * time.Second):
			t.Fatalf("status check for %v did not resolve", tc.wire)
		}
	}
}

func TestHealthAndReadyReflectConnectionState(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, neverConnected, facade.WithSerialPort("/dev/ttyUSB0"))

	health := f.Health()
	require.False(t, health.Connected)
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, "/dev/ttyUSB0", health.SerialPort)

	ready := f.Ready()
	require.False(t, ready.Ready)
	require.Equal(t, "VMC not connected", ready.Message)
}

func TestHealthDefaultsLinkHealthyWithoutAWatchdog(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, alwaysConnected)

	health := f.Health()
	require.True(t, health.LinkHealthy)
	require.Equal(t, "ok", health.Status)
}

func TestHealthReflectsStalledLinkEvenWhenChannelIsOpen(t *testing.T) {
	e := protocol.NewEngine()
	f := facade.New(e, alwaysConnected, facade.WithLinkHealth(func() bool { return false }))

	health := f.Health()
	require.True(t, health.Connected)
	require.False(t, health.LinkHealthy)
	require.Equal(t, "degraded", health.Status, "a stalled POLL cadence must degrade health even with an open channel")
}
