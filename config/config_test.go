// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.vendctrl.io/vmc/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, "/dev/ttyUSB0", c.SerialPort)
	require.Equal(t, 57600, c.SerialBaudRate)
	require.Equal(t, 1*time.Second, c.CommandTimeout)
	require.Equal(t, 5, c.MaxRetries)
}

func TestNewAppliesOptionsOverDefaults(t *testing.T) {
	c := config.New(
		config.WithSerialPort("/dev/ttyS0"),
		config.WithMaxRetries(3),
	)
	require.Equal(t, "/dev/ttyS0", c.SerialPort)
	require.Equal(t, 3, c.MaxRetries)
	require.Equal(t, 57600, c.SerialBaudRate, "unrelated defaults remain untouched")
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("VMC_MAX_RETRIES", "7")
	t.Setenv("VMC_POLL_INTERVAL", "0.05")

	c, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM0", c.SerialPort)
	require.Equal(t, 7, c.MaxRetries)
	require.Equal(t, 50*time.Millisecond, c.PollInterval)
}

func TestLoadExplicitOptionWinsOverEnvironment(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyACM0")

	c, err := config.Load("", config.WithSerialPort("/dev/ttyOVERRIDE"))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyOVERRIDE", c.SerialPort)
}

func TestLoadRejectsMalformedNumericEnv(t *testing.T) {
	t.Setenv("VMC_MAX_RETRIES", "not-a-number")
	_, err := config.Load("")
	require.Error(t, err)
}
