// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the monitor connection settings from a TOML file, a
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
)

// Variant is the product variant of the module. The broadcast variant listens
// for status datagrams on a shared port; the direct variant only reads replies
// on its own socket.
type Variant string

const (
	VariantBroadcast Variant = "broadcast"
	VariantDirect    Variant = "direct"
)

// Duration is a time.Duration read from strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the settings of one module instance.
type Config struct {
	Label        string        `toml:"label"`
	Host         string        `toml:"host"`
	Port         int           `toml:"port"`
	ListenPort   int           `toml:"listen_port"`
	Variant      Variant       `toml:"variant"`
	Mode         lilliput.Mode `toml:"mode"`
	SerialPort   string        `toml:"serial_port"`
	Baud         int           `toml:"baud"`
	PollInterval Duration      `toml:"poll_interval"`
	ReconnectMin Duration      `toml:"reconnect_min"`
	ReconnectMax Duration      `toml:"reconnect_max"`
}

// Error reports an unusable configuration. The message is shown as the
// module's BadConfig status.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	return &Config{
		Label:        "lilliput",
		Port:         lilliput.DefaultPort,
		ListenPort:   lilliput.DefaultListenPort,
		Variant:      VariantBroadcast,
		Mode:         lilliput.ModeUDP,
		Baud:         9600,
		ReconnectMin: Duration{time.Second},
		ReconnectMax: Duration{30 * time.Second},
	}
}

// Load builds a Config from defaults, the TOML file at path (optional when
// empty), a .env file in the working directory and LILLIPUT_* environment
// variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}
	cfg.ApplyEnv()

	return cfg, nil
}

// Parse decodes TOML settings over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LILLIPUT_* environment variables
func (c *Config) ApplyEnv() {
	c.Label = getEnv("LILLIPUT_LABEL", c.Label)
	c.Host = getEnv("LILLIPUT_HOST", c.Host)
	c.Port = getEnvAsInt("LILLIPUT_PORT", c.Port)
	c.ListenPort = getEnvAsInt("LILLIPUT_LISTEN_PORT", c.ListenPort)
	c.Variant = Variant(getEnv("LILLIPUT_VARIANT", string(c.Variant)))
	c.Mode = lilliput.Mode(getEnv("LILLIPUT_MODE", string(c.Mode)))
	c.SerialPort = getEnv("LILLIPUT_SERIAL_PORT", c.SerialPort)
	c.Baud = getEnvAsInt("LILLIPUT_BAUD", c.Baud)
}

// Validate checks that the instance can connect. The returned error is a
// *Error.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return &Error{Field: "host", Reason: "IP address is missing"}
	case c.Port == 0:
		return &Error{Field: "port", Reason: "Target port is missing"}
	case c.Port < 0 || c.Port > 65535:
		return &Error{Field: "port", Reason: "Target port is invalid"}
	case c.ListensForBroadcasts() && c.ListenPort == 0:
		return &Error{Field: "listen_port", Reason: "Listen port is missing"}
	case c.ListenPort < 0 || c.ListenPort > 65535:
		return &Error{Field: "listen_port", Reason: "Listen port is invalid"}
	}

	switch c.Mode {
	case lilliput.ModeUDP, "":
	case lilliput.ModeSerial:
		if c.SerialPort == "" {
			return &Error{Field: "serial_port", Reason: "Serial port is missing"}
		}
	default:
		return &Error{Field: "mode", Reason: fmt.Sprintf("Unknown mode %q", c.Mode)}
	}

	switch c.Variant {
	case VariantBroadcast, VariantDirect, "":
	default:
		return &Error{Field: "variant", Reason: fmt.Sprintf("Unknown variant %q", c.Variant)}
	}
	return nil
}

// ListensForBroadcasts reports whether the shared status listener is used
func (c *Config) ListensForBroadcasts() bool {
	return c.Variant == VariantBroadcast || c.Variant == ""
}

// TransportMode returns the transport mode, defaulting to UDP
func (c *Config) TransportMode() lilliput.Mode {
	if c.Mode == "" {
		return lilliput.ModeUDP
	}
	return c.Mode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric environment value")
		return defaultValue
	}

	return intValue
}
