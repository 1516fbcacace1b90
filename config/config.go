// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package config loads and validates the controller's runtime settings,
// following the functional-options pattern used throughout this module.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings a running controller needs. Load sources them
// from the environment variables SERIAL_PORT, SERIAL_BAUDRATE,
// SERIAL_TIMEOUT, VMC_COMMAND_TIMEOUT, VMC_MAX_RETRIES and
// VMC_POLL_INTERVAL respectively.
type Config struct {
	SerialPort     string
	SerialBaudRate int
	SerialTimeout  time.Duration
	CommandTimeout time.Duration
	MaxRetries     int
	PollInterval   time.Duration
}

var defaultConfig = Config{
	SerialPort:     "/dev/ttyUSB0",
	SerialBaudRate: 57600,
	SerialTimeout:  100 * time.Millisecond,
	CommandTimeout: 1 * time.Second,
	MaxRetries:     5,
	PollInterval:   200 * time.Millisecond,
}

// Option configures a Config at construction time.
type Option func(*Config)

func WithSerialPort(name string) Option {
	return func(c *Config) { c.SerialPort = name }
}

func WithSerialBaudRate(baud int) Option {
	return func(c *Config) { c.SerialBaudRate = baud }
}

func WithSerialTimeout(d time.Duration) Option {
	return func(c *Config) { c.SerialTimeout = d }
}

func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) { c.CommandTimeout = d }
}

func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// New builds a Config starting from the package defaults (matching
// spec.md §6's documented defaults) and applying opts in order.
func New(opts ...Option) Config {
	c := defaultConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Load reads a .env file at path (if present — a missing file is not an
// error, matching godotenv.Load's typical deployment use) and layers the
// recognised environment variables onto the package defaults via opts.
func Load(path string, opts ...Option) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	envOpts, err := fromEnvironment()
	if err != nil {
		return Config{}, err
	}

	all := make([]Option, 0, len(envOpts)+len(opts))
	all = append(all, envOpts...)
	all = append(all, opts...) // explicit opts win over environment values
	return New(all...), nil
}

func fromEnvironment() ([]Option, error) {
	var opts []Option

	if v, ok := os.LookupEnv("SERIAL_PORT"); ok {
		opts = append(opts, WithSerialPort(v))
	}
	if v, ok := os.LookupEnv("SERIAL_BAUDRATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: SERIAL_BAUDRATE: %w", err)
		}
		opts = append(opts, WithSerialBaudRate(n))
	}
	if v, ok := os.LookupEnv("SERIAL_TIMEOUT"); ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("config: SERIAL_TIMEOUT: %w", err)
		}
		opts = append(opts, WithSerialTimeout(d))
	}
	if v, ok := os.LookupEnv("VMC_COMMAND_TIMEOUT"); ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("config: VMC_COMMAND_TIMEOUT: %w", err)
		}
		opts = append(opts, WithCommandTimeout(d))
	}
	if v, ok := os.LookupEnv("VMC_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: VMC_MAX_RETRIES: %w", err)
		}
		opts = append(opts, WithMaxRetries(n))
	}
	if v, ok := os.LookupEnv("VMC_POLL_INTERVAL"); ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("config: VMC_POLL_INTERVAL: %w", err)
		}
		opts = append(opts, WithPollInterval(d))
	}

	return opts, nil
}

// parseSeconds parses a float count of seconds (e.g. "0.1"), matching the
// fractional-second settings documented in spec.md §6.
func parseSeconds(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
