// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	crc := CalculateCRC([]byte("123456789"))
	if crc != 0x29B1 {
		t.Errorf("CRC mismatch: expected 0x29B1, got 0x%04X", crc)
	}
}

// ============================================================
// Byte Stuffing Tests
// ============================================================

// unstuffBytes reverses stuffBytes
func unstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, frameErrorf("incomplete escape sequence at end of data")
	}
	return result, nil
}

func TestStuffBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"no special bytes", []byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{"start byte", []byte{StartByte}, []byte{EscByte, StartByte ^ EscXor}},
		{"end byte", []byte{EndByte}, []byte{EscByte, EndByte ^ EscXor}},
		{"escape byte", []byte{EscByte}, []byte{EscByte, EscByte ^ EscXor}},
		{"consecutive", []byte{StartByte, EndByte}, []byte{EscByte, StartByte ^ EscXor, EscByte, EndByte ^ EscXor}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stuffBytes(tt.input)
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("stuffBytes(%X) = %X, want %X", tt.input, got, tt.expected)
			}
			back, err := unstuffBytes(got)
			if err != nil {
				t.Fatalf("unstuffBytes error: %v", err)
			}
			if !bytes.Equal(back, tt.input) {
				t.Errorf("unstuffBytes(%X) = %X, want %X", got, back, tt.input)
			}
		})
	}
}

func TestUnstuffBytes_IncompleteEscape(t *testing.T) {
	_, err := unstuffBytes([]byte{0x01, EscByte})
	if err == nil {
		t.Error("expected error for trailing escape byte")
	}
}

// ============================================================
// Encoder / Decoder Tests
// ============================================================

func TestEncodeFrame_Layout(t *testing.T) {
	frame, err := EncodeFrame([]byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("EncodeFrame error: %v", err)
	}
	if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
		t.Fatalf("frame not delimited: %X", frame)
	}
	if frame[1] != 2 {
		t.Errorf("length byte = %d, want 2", frame[1])
	}
}

func TestEncodeFrame_PayloadTooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxPayloadSize+1))
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected FrameError, got %v", err)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x10, 0x20, 0x30},
		{StartByte, EndByte, EscByte, 0x00},
	}

	for _, payload := range payloads {
		frame, err := EncodeFrame(payload)
		if err != nil {
			t.Fatalf("EncodeFrame error: %v", err)
		}

		d := NewDecoder()
		frames, errs := d.Feed(frame)
		if len(errs) != 0 {
			t.Fatalf("decode errors for %X: %v", payload, errs)
		}
		if len(frames) != 1 {
			t.Fatalf("expected 1 frame, got %d", len(frames))
		}
		if !bytes.Equal(frames[0].Payload(), payload) {
			t.Errorf("payload = %X, want %X", frames[0].Payload(), payload)
		}
		if frames[0].Timestamp().IsZero() {
			t.Error("decoded frame should carry a timestamp")
		}
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	frame, _ := EncodeFrame([]byte{0x01, 0x02, 0x03})
	// Corrupt a payload byte (index 3 is the second payload byte, not special)
	frame[3] ^= 0x01

	d := NewDecoder()
	frames, errs := d.Feed(frame)
	if len(frames) != 0 {
		t.Errorf("corrupted frame should not decode")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestDecoder_InvalidLength(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	_, err := d.DecodeByte(MaxPayloadSize + 1)
	if err == nil {
		t.Error("expected error for oversized length")
	}
}

func TestDecoder_GarbageBeforeStart(t *testing.T) {
	frame, _ := EncodeFrame([]byte{0x42})
	stream := append([]byte{0x00, 0x11, 0x22}, frame...)

	d := NewDecoder()
	frames, errs := d.Feed(stream)
	if len(errs) != 0 {
		t.Errorf("garbage while idle should be skipped silently, got %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}

func TestDecoder_StartByteResetsState(t *testing.T) {
	frame, _ := EncodeFrame([]byte{0x01, 0x02})
	// Truncated frame followed by a complete one
	stream := append(append([]byte{}, frame[:3]...), frame...)

	d := NewDecoder()
	frames, errs := d.Feed(stream)
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}

func TestDecoder_MultipleFrames(t *testing.T) {
	a, _ := EncodeFrame([]byte{0x01})
	b, _ := EncodeFrame([]byte{0x02})

	d := NewDecoder()
	frames, _ := d.Feed(append(a, b...))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Payload()[0] != 0x01 || frames[1].Payload()[0] != 0x02 {
		t.Error("frames decoded out of order")
	}
}
