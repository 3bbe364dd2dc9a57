// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import "time"

// Decoder reassembles frames from a byte stream. It is not safe for concurrent
// use; Device serializes access.
type Decoder struct {
	state      int
	buffer     []byte // length + payload, the CRC'd section
	escapeNext bool
	frame      *Frame
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset returns the decoder to idle, discarding any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
	d.frame = nil
}

// Feed decodes every byte of data and returns the completed frames together
// with any framing errors met along the way.
func (d *Decoder) Feed(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

// DecodeByte processes a single byte through the decoder state machine.
// It returns a completed frame, or nil while the frame is incomplete.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	escaped := d.escapeNext
	if escaped {
		b ^= EscXor
		d.escapeNext = false
	}

	if !escaped && b == StartByte {
		d.Reset()
		d.state = stateLength
		return nil, nil
	}

	if !escaped && b == EndByte {
		if d.state == stateIdle {
			return nil, nil
		}
		if d.state != stateEnd {
			state := d.state
			d.Reset()
			return nil, frameErrorf("unexpected END byte in state %d", state)
		}
		frame := d.frame
		calculated := CalculateCRC(d.buffer)
		d.Reset()
		if frame.crc != calculated {
			return nil, frameErrorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, frame.crc)
		}
		frame.timestamp = time.Now()
		return frame, nil
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, frameErrorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.frame = &Frame{length: b, payload: make([]byte, 0, b)}
		d.buffer = append(d.buffer, b)
		if b == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.frame.payload = append(d.frame.payload, b)
		d.buffer = append(d.buffer, b)
		if len(d.frame.payload) >= int(d.frame.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.frame.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.frame.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		// Anything but END here means the frame overran its length
		d.Reset()
		return nil, frameErrorf("missing END byte after CRC")

	default:
		d.Reset()
		return nil, frameErrorf("invalid state: %d", d.state)
	}
}
