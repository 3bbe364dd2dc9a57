// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Commands handed to the transport or dropped because it was not ready
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lilliput_commands_total",
			Help: "Total number of commands by outcome",
		},
		[]string{"outcome"}, // sent, dropped, failed
	)

	// Device responses by outcome
	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lilliput_responses_total",
			Help: "Total number of device responses",
		},
		[]string{"outcome"}, // ok, error
	)

	DatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lilliput_datagrams_total",
			Help: "Total number of datagrams received on the status listener",
		},
		[]string{"source"}, // accepted, ignored
	)

	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lilliput_reconnects_total",
			Help: "Total number of reconnect requests after the transport closed",
		},
	)

	// Current connection health, one series per status set to 1
	ConnectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lilliput_connection_status",
			Help: "Current connection health (1 for the active status)",
		},
		[]string{"status"},
	)

	StateKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lilliput_state_keys",
			Help: "Current number of mirrored device state keys",
		},
	)
)

// SetStatus marks status as the active connection health
func SetStatus(status string, all []string) {
	for _, s := range all {
		if s == status {
			ConnectionStatus.WithLabelValues(s).Set(1)
		} else {
			ConnectionStatus.WithLabelValues(s).Set(0)
		}
	}
}
