// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"code.vendctrl.io/vmc/config"
	"code.vendctrl.io/vmc/controller"
	"code.vendctrl.io/vmc/frame"
	"code.vendctrl.io/vmc/serialio"
)

func TestControllerDispenseEndToEnd(t *testing.T) {
	ch := serialio.NewFakeChannel()
	cfg := config.New(config.WithCommandTimeout(50 * time.Millisecond))
	ctl := controller.New(ch, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = ctl.Run(ctx)
		close(runDone)
	}()

	require.Eventually(t, func() bool { return ctl.IsConnected() }, time.Second, time.Millisecond)

	respCh := make(chan bool, 1)
	go func() {
		resp := ctl.Facade().Dispense(context.Background(), 5, false, false, false, time.Second)
		respCh <- resp.Success
	}()

	// Drive the wire protocol as the real VMC would: POLL, then ACK, then
	// a success report, each injected as raw bytes through the channel.
	pollWire, err := frame.Encode(frame.POLL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ch.Inject(pollWire)
		return len(ch.Written()) > 0
	}, time.Second, 2*time.Millisecond)

	ackWire, err := frame.Encode(frame.ACK, nil)
	require.NoError(t, err)
	ch.Inject(ackWire)

	statusWire, err := frame.Encode(frame.DISPENSING_STATUS, []byte{0x01, 0x02, 0x00, 0x05})
	require.NoError(t, err)
	ch.Inject(statusWire)

	select {
	case success := <-respCh:
		require.True(t, success)
	case <-time.After(3 * time.Second):
		t.Fatal("dispense did not complete end to end")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestControllerReportsDisconnected(t *testing.T) {
	ch := serialio.NewFakeChannel()
	ch.Close()
	ctl := controller.New(ch, config.New(), zerolog.Nop())

	require.False(t, ctl.IsConnected())
	resp := ctl.Facade().Dispense(context.Background(), 5, false, false, false, time.Second)
	require.False(t, resp.Success)
	require.Equal(t, "VMC not connected", resp.Message)
}
