// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"testing"

	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
)

func TestMirror_StructuredMerge(t *testing.T) {
	m := NewMirror()
	m.ApplyResponse(lilliput.Response{Req: "status", Value: map[string]interface{}{
		"source": "sdi1",
		"volume": int64(10),
		"tally":  "red",
	}})

	// Prior contents are overwritten key by key, other keys survive
	value := map[string]interface{}{"source": "hdmi", "volume": nil}
	if !m.ApplyResponse(lilliput.Response{Req: "status", Status: lilliput.ResponseOK, Value: value}) {
		t.Fatal("ApplyResponse should accept an ok response")
	}

	for k, want := range value {
		got, ok := m.Get(k)
		if !ok || got != want {
			t.Errorf("state[%q] = %v (present=%v), want %v", k, got, ok, want)
		}
	}
	if got, _ := m.Get("tally"); got != "red" {
		t.Errorf("state[tally] = %v, want red", got)
	}
	if _, ok := m.Get("status"); ok {
		t.Error("structured responses must not be keyed by request name")
	}
}

func TestMirror_NestedMerge(t *testing.T) {
	m := NewMirror()
	m.ApplyResponse(lilliput.Response{Req: "status", Value: map[string]interface{}{
		"levels": []interface{}{int64(1), int64(2)},
		"audio": map[string]interface{}{
			"volume": int64(40),
			"meter":  []interface{}{"ch1", "ch2"},
		},
	}})

	tests := []struct {
		key  string
		want interface{}
	}{
		{"levels.0", int64(1)},
		{"levels.1", int64(2)},
		{"audio.volume", int64(40)},
		{"audio.meter.0", "ch1"},
		{"audio.meter.1", "ch2"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := m.Get(tt.key)
			if !ok || got != tt.want {
				t.Errorf("state[%q] = %v (present=%v), want %v", tt.key, got, ok, tt.want)
			}
		})
	}

	for _, key := range []string{"levels", "audio", "audio.meter"} {
		if v, ok := m.Get(key); ok {
			t.Errorf("state[%q] = %v, composite values must be flattened", key, v)
		}
	}
	if !m.Evaluate(Level, "audio.volume", 40) {
		t.Error("level feedback on a flattened key should match")
	}
}

func TestMirror_ScalarMerge(t *testing.T) {
	m := NewMirror()

	tests := []struct {
		req   string
		value interface{}
	}{
		{"volume", int64(40)},
		{"volume", "loud"},
		{"brightness", 55.5},
		{"source", nil},
	}
	for _, tt := range tests {
		m.ApplyResponse(lilliput.Response{Req: tt.req, Value: tt.value})
		got, ok := m.Get(tt.req)
		if !ok || got != tt.value {
			t.Errorf("state[%q] = %v, want %v", tt.req, got, tt.value)
		}
	}
}

func TestMirror_ListMerge(t *testing.T) {
	m := NewMirror()
	m.ApplyResponse(lilliput.Response{Req: "levels", Value: []interface{}{"a", int64(2)}})

	if got, _ := m.Get("0"); got != "a" {
		t.Errorf("state[0] = %v", got)
	}
	if got, _ := m.Get("1"); got != int64(2) {
		t.Errorf("state[1] = %v", got)
	}
}

func TestMirror_RejectsBadResponses(t *testing.T) {
	tests := []struct {
		name string
		resp lilliput.Response
	}{
		{"decode error", lilliput.Response{Req: "volume", Value: int64(1), Err: errors.New("CRC mismatch")}},
		{"nak", lilliput.Response{Req: "volume", Status: lilliput.ResponseNak, Value: int64(1)}},
		{"unknown status", lilliput.Response{Req: "volume", Status: "???", Value: int64(1)}},
		{"scalar without request", lilliput.Response{Value: int64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMirror()
			if m.ApplyResponse(tt.resp) {
				t.Error("ApplyResponse should reject the response")
			}
			if m.Len() != 0 {
				t.Errorf("state mutated: %v", m.Snapshot())
			}
		})
	}
}

func TestMirror_Snapshot(t *testing.T) {
	m := NewMirror()
	m.ApplyResponse(lilliput.Response{Req: "volume", Value: int64(40)})

	snap := m.Snapshot()
	snap["volume"] = int64(0)
	if got, _ := m.Get("volume"); got != int64(40) {
		t.Error("Snapshot should return a copy")
	}
}

func TestMirror_Evaluate(t *testing.T) {
	m := NewMirror()
	m.ApplyResponse(lilliput.Response{Value: map[string]interface{}{
		"source":     "hdmi",
		"volume":     int64(50),
		"brightness": "75",
		"tint":       float64(20),
	}})

	tests := []struct {
		name string
		cmp  Comparison
		key  string
		want interface{}
		ok   bool
	}{
		{"source match", Categorical, "source", "hdmi", true},
		{"source mismatch", Categorical, "source", "sdi1", false},
		{"volume number", Level, "volume", 50, true},
		{"volume text", Level, "volume", "50", true},
		{"volume truncated", Level, "volume", "50.9", true},
		{"volume mismatch", Level, "volume", 51, false},
		{"brightness text state", Level, "brightness", float64(75), true},
		{"tint float state", Level, "tint", "20", true},
		{"non-numeric option", Level, "volume", "loud", false},
		{"unknown key", Categorical, "tally", "red", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Evaluate(tt.cmp, tt.key, tt.want); got != tt.ok {
				t.Errorf("Evaluate(%v, %q, %v) = %v, want %v", tt.cmp, tt.key, tt.want, got, tt.ok)
			}
		})
	}

	before := m.Snapshot()
	m.Evaluate(Level, "volume", 10)
	if len(m.Snapshot()) != len(before) {
		t.Error("Evaluate must not mutate state")
	}
}
