// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
	"github.com/Thermoquad/lilliput-bridge/pkg/metrics"
)

// Transport is the device connection the bridge drives. *lilliput.Device
// implements it.
type Transport interface {
	// ID identifies the transport session; every event it emits carries it
	ID() string
	Mode() lilliput.Mode
	// IsReady reports whether a socket handle is open
	IsReady() bool
	// Process sends a device command or a #control token
	Process(text string) error
	// Decode feeds bytes received on the shared listener
	Decode(raw []byte)
}

// Dispatcher forwards commands to the current transport when it is ready and
// drops them otherwise. It never queues or retries.
type Dispatcher struct {
	mode      lilliput.Mode
	transport Transport
	target    string
	logger    zerolog.Logger
}

// NewDispatcher creates a Dispatcher that only sends through transports in mode
func NewDispatcher(mode lilliput.Mode) *Dispatcher {
	return &Dispatcher{
		mode:   mode,
		logger: log.With().Str("component", "dispatcher").Logger(),
	}
}

// SetTransport replaces the transport; nil detaches it
func (d *Dispatcher) SetTransport(t Transport, target string) {
	d.transport = t
	d.target = target
}

// SetMode changes the expected transport mode
func (d *Dispatcher) SetMode(mode lilliput.Mode) {
	d.mode = mode
}

// Ready reports whether a command would reach the transport
func (d *Dispatcher) Ready() bool {
	return d.transport != nil && d.transport.Mode() == d.mode && d.transport.IsReady()
}

// Dispatch sends text verbatim, control tokens included. Empty text is a
// no-op. It reports whether the transport accepted the command.
func (d *Dispatcher) Dispatch(text string) bool {
	if text == "" {
		return false
	}

	d.logger.Debug().Str("command", text).Str("target", d.target).Msg("Sending command")

	if !d.Ready() {
		d.logger.Debug().Str("command", text).Msg("Socket not connected, command dropped")
		metrics.CommandsTotal.WithLabelValues("dropped").Inc()
		return false
	}

	if err := d.transport.Process(text); err != nil {
		d.logger.Warn().Err(err).Str("command", text).Msg("Command rejected")
		metrics.CommandsTotal.WithLabelValues("failed").Inc()
		return false
	}

	metrics.CommandsTotal.WithLabelValues("sent").Inc()
	return true
}
