// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// lilliput-bridge - Lilliput Monitor Control Bridge
//
// A CLI tool that connects to Lilliput broadcast monitors over their network
// control port and exposes presets, actions, feedbacks and variables to a
// terminal UI, a WebSocket server or an MQTT broker.

package main

import (
	"os"

	"github.com/Thermoquad/lilliput-bridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
