// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
)

// Comparison selects how a feedback compares mirrored state with its option
type Comparison int

const (
	// Categorical compares the text form of both values
	Categorical Comparison = iota
	// Level compares numerically after coercion
	Level
)

// Mirror is the last known device state, keyed by status name. It is written
// only from the Supervisor's response handler and read by feedbacks and
// surfaces.
//
// Mirror is safe for concurrent use.
type Mirror struct {
	mu    sync.RWMutex
	state map[string]interface{}
}

// NewMirror creates an empty mirror
func NewMirror() *Mirror {
	return &Mirror{state: make(map[string]interface{})}
}

// ApplyResponse merges a successful response. A structured value sets every
// key it carries; nested maps and lists are flattened to "key.sub" and
// "key.N" entries so only scalars are stored. A scalar value is keyed by the
// request name. Last write wins. Responses that failed to decode, carry a
// non-success status, or a scalar without request name change nothing and
// return false.
func (m *Mirror) ApplyResponse(resp lilliput.Response) bool {
	if !resp.OK() {
		return false
	}

	switch val := resp.Value.(type) {
	case map[string]interface{}, []interface{}:
		m.mu.Lock()
		flatten(m.state, "", val)
		m.mu.Unlock()
	default:
		if resp.Req == "" {
			return false
		}
		m.mu.Lock()
		m.state[resp.Req] = val
		m.mu.Unlock()
	}
	return true
}

// flatten stores the scalars inside v under prefix-joined keys
func flatten(dst map[string]interface{}, prefix string, v interface{}) {
	join := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "." + key
	}

	switch val := v.(type) {
	case map[string]interface{}:
		for k, sub := range val {
			flatten(dst, join(k), sub)
		}
	case []interface{}:
		for i, sub := range val {
			flatten(dst, join(strconv.Itoa(i)), sub)
		}
	default:
		dst[prefix] = val
	}
}

// Get returns the value of key
func (m *Mirror) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[key]
	return v, ok
}

// Snapshot returns a copy of the whole state
func (m *Mirror) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]interface{}, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out
}

// Len returns the number of keys
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state)
}

// Evaluate compares the state of key with want. Unknown keys never match.
func (m *Mirror) Evaluate(cmp Comparison, key string, want interface{}) bool {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return false
	}

	switch cmp {
	case Level:
		have, ok := toNumber(v)
		if !ok {
			return false
		}
		target, ok := toInteger(want)
		if !ok {
			return false
		}
		return have == target
	default:
		return host.FormatVariable(v) == host.FormatVariable(want)
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toInteger reads a feedback option the way a level option is entered: the
// integer part of a number or of numeric text.
func toInteger(v interface{}) (float64, bool) {
	f, ok := toNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Trunc(f), true
}
