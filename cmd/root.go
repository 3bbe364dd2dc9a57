// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/lilliput-bridge/pkg/config"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Config file and logging flags
	configPath string
	logLevel   string

	// Monitor connection flags
	hostAddr   string
	targetPort int
	listenPort int
	variant    string

	// Serial connection flags
	portName string
	baudRate int
)

var rootCmd = &cobra.Command{
	Use:   "lilliput-bridge",
	Short: "Lilliput Monitor Control Bridge",
	Long: `lilliput-bridge - Control surfaces for Lilliput broadcast monitors.

Connects to a monitor's network control port, mirrors its state from status
responses and broadcasts, and exposes actions, presets, feedbacks and
variables to a terminal UI, a WebSocket server or an MQTT broker.

Connection modes:
  UDP:    --host 10.0.0.5 [--target-port 19523] [--listen-port 19522]
  Serial: --port /dev/ttyUSB0 [--baud 9600]

Settings are read from --config (TOML), then a .env file, then LILLIPUT_*
environment variables. Flags override all of them. Sending SIGHUP to a
running bridge reloads the configuration.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Monitor connection flags
	rootCmd.PersistentFlags().StringVarP(&hostAddr, "host", "H", "", "Monitor IP address")
	rootCmd.PersistentFlags().IntVarP(&targetPort, "target-port", "t", 0, "Monitor control port")
	rootCmd.PersistentFlags().IntVarP(&listenPort, "listen-port", "l", 0, "Local port for status broadcasts")
	rootCmd.PersistentFlags().StringVar(&variant, "variant", "", "Status delivery (broadcast or direct)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (selects serial mode)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	zerolog.SetGlobalLevel(level)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return nil
}

// loadConfig reads the configuration and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if hostAddr != "" {
		cfg.Host = hostAddr
	}
	if targetPort != 0 {
		cfg.Port = targetPort
	}
	if listenPort != 0 {
		cfg.ListenPort = listenPort
	}
	if variant != "" {
		cfg.Variant = config.Variant(variant)
	}
	if portName != "" {
		cfg.Mode = lilliput.ModeSerial
		cfg.SerialPort = portName
	}
	if baudRate != 0 {
		cfg.Baud = baudRate
	}
	return cfg, nil
}

// connectionInfo describes where cfg points, for command banners
func connectionInfo(cfg *config.Config) string {
	if cfg.TransportMode() == lilliput.ModeSerial {
		return fmt.Sprintf("Serial: %s @ %d baud", cfg.SerialPort, cfg.Baud)
	}
	info := fmt.Sprintf("UDP: %s:%d", cfg.Host, cfg.Port)
	if cfg.ListensForBroadcasts() {
		info += fmt.Sprintf(" (status on :%d)", cfg.ListenPort)
	}
	return info
}
