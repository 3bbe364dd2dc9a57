// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Interactive TUI for controlling a Lilliput monitor",
	Long: `Control a Lilliput monitor via an interactive terminal UI.

Features:
  - Preset list with live feedback (active presets are highlighted)
  - Custom command input with variable interpolation
  - Connection status and mirrored device variables
  - Event logging
  - Automatic reconnection with bounded backoff

Tab switches between the preset list and the command input. Enter presses the
selected preset or sends the command. Ctrl+R reloads the configuration and
reconnects.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Route all logging into the event log while the alt screen is active
	logs := newEventLogWriter()
	previous := log.Logger
	log.Logger = logs.logger()
	defer func() { log.Logger = previous }()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s := startSession(ctx, cfg.Label)
	defer s.close()
	s.watchReload(ctx)

	changes, unsubscribe := s.registry.Subscribe()
	defer unsubscribe()

	// A rejected config stays on screen as BadConfig
	_ = s.init(cfg)

	m := initialRunModel(ctx, s, connectionInfo(cfg), changes, logs.entries)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
