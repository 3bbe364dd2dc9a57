// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import (
	"fmt"
	"time"
)

// Frame is one decoded protocol frame.
type Frame struct {
	length    uint8
	payload   []byte // CBOR message bytes
	crc       uint16
	timestamp time.Time
}

// Length returns the payload length announced by the frame header
func (f *Frame) Length() uint8 {
	return f.length
}

// Payload returns the raw CBOR payload bytes
func (f *Frame) Payload() []byte {
	return f.payload
}

// CRC returns the frame's CRC value
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns the frame's decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// FrameError reports a framing failure (bad length, CRC mismatch, overflow).
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return "lilliput: frame: " + e.Reason
}

func frameErrorf(format string, args ...interface{}) error {
	return &FrameError{Reason: fmt.Sprintf(format, args...)}
}

// CalculateCRC computes the CRC-16-CCITT checksum for the given data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// EncodeFrame wraps a payload in wire framing: START, stuffed(length, payload,
// crc), END. The CRC covers the length byte and the payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, frameErrorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	data := make([]byte, 0, len(payload)+3)
	data = append(data, uint8(len(payload)))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes escapes START, END and ESC as ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}
