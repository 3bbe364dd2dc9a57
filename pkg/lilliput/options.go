// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import "time"

// Option configures a Device.
type Option func(*deviceOptions)

type deviceOptions struct {
	mode        Mode
	offline     bool
	serialPort  string
	baudRate    int
	dialTimeout time.Duration
	handler     Handler
	catalog     *Catalog
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		mode:        ModeUDP,
		baudRate:    9600,
		dialTimeout: 5 * time.Second,
	}
}

// WithOffline creates a Device that never opens a socket. Offline devices are
// used to inspect the catalog without side effects.
func WithOffline() Option {
	return func(o *deviceOptions) {
		o.offline = true
	}
}

// WithSerial selects the RS-232 control port instead of UDP.
func WithSerial(portName string, baudRate int) Option {
	return func(o *deviceOptions) {
		o.mode = ModeSerial
		o.serialPort = portName
		if baudRate > 0 {
			o.baudRate = baudRate
		}
	}
}

// WithDialTimeout bounds how long #connect may take.
func WithDialTimeout(d time.Duration) Option {
	return func(o *deviceOptions) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithHandler registers the event handler.
func WithHandler(h Handler) Option {
	return func(o *deviceOptions) {
		o.handler = h
	}
}

// WithCatalog overrides the embedded command catalog.
func WithCatalog(c *Catalog) Option {
	return func(o *deviceOptions) {
		o.catalog = c
	}
}
