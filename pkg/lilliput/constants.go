// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lilliput implements the control protocol spoken by Lilliput broadcast
// monitors on their UDP control port.
//
// The package provides the static command catalog for the supported monitor
// models, a frame codec (byte stuffing, CRC-16-CCITT, CBOR payloads) and a
// Device transport that connects over UDP or an RS-232 control port and reports
// connection status and device responses as events.
//
// Commands are plain text, for example:
//
//	source sdi1,SDI1-SDI2,SDI3-SDI4
//	audio 50,None,2-1
//	status?
//
// Text starting with '#' is a control token for the transport itself
// (#connect, #close).
package lilliput

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxPayloadSize = 250
	MaxFrameSize   = 5 + MaxPayloadSize // start + length + payload + crc(2) + end
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Default network ports
const (
	DefaultPort       = 19523 // monitor control port
	DefaultListenPort = 19522 // monitor status broadcasts
)

// Control tokens accepted by Device.Process
const (
	TokenConnect = "#connect"
	TokenClose   = "#close"
)

// Connection status values carried by ConnectionStatus events
const (
	StatusConnected = "connected"
	StatusClosed    = "closed"
	StatusError     = "error"
)

// Response status values
const (
	ResponseOK   = "ok"
	ResponseNak  = "nak"
	ResponseBusy = "busy"
)

// QuerySuffix marks a command as a state query ("status?").
const QuerySuffix = "?"

// Mode selects the physical transport used by a Device.
type Mode string

const (
	ModeUDP    Mode = "udp"
	ModeSerial Mode = "serial"
)

// Decoder states
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
