// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import "time"

// Event is emitted by a Device. Every event carries the id of the Device that
// produced it, so consumers can drop events from a transport they have already
// discarded.
type Event interface {
	SessionID() string
}

// ConnectionStatus reports a change of the transport connection.
type ConnectionStatus struct {
	Session string
	Status  string // StatusConnected, StatusClosed, StatusError
	Detail  string
}

// SessionID implements Event
func (e ConnectionStatus) SessionID() string { return e.Session }

// SessionID implements Event
func (r Response) SessionID() string { return r.Session }

// CommandSent reports a command written to the transport.
type CommandSent struct {
	Session string
	Command string
	Bytes   int
	Time    time.Time
}

// SessionID implements Event
func (e CommandSent) SessionID() string { return e.Session }

// Handler receives device events. It is called from the Device's reader
// goroutine and from Process, so it must not block.
type Handler func(Event)
