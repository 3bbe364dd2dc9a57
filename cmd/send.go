// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/spf13/cobra"
)

var (
	sendPreset  string
	sendTimeout time.Duration
	sendSettle  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [command]",
	Short: "Send one command and print the mirrored state",
	Long: `Connect, wait until the monitor answers, send one command and print the
device state mirrored afterwards.

The command is interpolated like a custom command, so variables such as
$(internal:time_s) are expanded. With --preset a preset is pressed instead.

Examples:
  lilliput-bridge send --host 10.0.0.5 "source sdi2,SDI1-SDI2,SDI3-SDI4"
  lilliput-bridge send --host 10.0.0.5 --preset source_hdmi`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendPreset, "preset", "", "Press the preset with this id")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "Time to wait for the monitor to answer")
	sendCmd.Flags().DurationVar(&sendSettle, "settle", time.Second, "Time to collect responses after sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" && sendPreset == "" {
		return fmt.Errorf("a command or --preset must be specified")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s := startSession(ctx, cfg.Label)
	defer s.close()

	if err := s.init(cfg); err != nil {
		return err
	}
	if err := s.waitStatus(ctx, host.StatusOk, sendTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	if sendPreset != "" {
		err = s.registry.PressPreset(ctx, sendPreset)
	} else {
		err = s.registry.ExecuteAction(ctx, "customCommand", host.Options{"command": text})
	}
	if err != nil {
		return err
	}

	select {
	case <-time.After(sendSettle):
	case <-ctx.Done():
	}

	printVariables(cmd, s.registry.Variables())
	return nil
}

func printVariables(cmd *cobra.Command, values map[string]interface{}) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(out, "%-20s %s\n", k, host.FormatVariable(values[k]))
	}
}
