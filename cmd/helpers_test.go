// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
)

// recorder collects the options of every action run through a test registry
type recorder struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	action  string
	options host.Options
}

func (r *recorder) record(ctx context.Context, ev host.ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{action: ev.ActionID, options: ev.Options})
	return nil
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

// newTestRegistry returns a registry with a custom command action, an audio
// action and a preset whose feedback follows the volume variable.
func newTestRegistry(t *testing.T) (*host.Registry, *recorder) {
	t.Helper()

	rec := &recorder{}
	r := host.NewRegistry("monitor")
	r.SetActionDefinitions([]host.ActionDefinition{
		{
			ID:       "customCommand",
			Name:     "Custom Command",
			Options:  []host.Option{{Type: host.OptionTextInput, ID: "command"}},
			Callback: rec.record,
		},
		{
			ID:   "audio",
			Name: "Audio",
			Options: []host.Option{
				{Type: host.OptionNumber, ID: "volume", Default: 50},
				{Type: host.OptionDropdown, ID: "meter", Default: "None"},
			},
			Callback: rec.record,
		},
	})
	r.SetFeedbackDefinitions([]host.FeedbackDefinition{{
		ID:      "volume",
		Name:    "Volume",
		Options: []host.Option{{Type: host.OptionNumber, ID: "volume"}},
		Callback: func(opts host.Options) bool {
			want, _ := opts.Int("volume")
			got, ok := r.Variables()["volume"]
			return ok && got == want
		},
	}})
	r.SetVariableDefinitions([]host.VariableDefinition{{ID: "volume", Name: "Volume"}})
	r.SetPresetDefinitions([]host.PresetDefinition{{
		ID:        "audio_50",
		Category:  "Audio",
		Name:      "Volume 50",
		Feedbacks: []host.PresetFeedback{{FeedbackID: "volume", Options: host.Options{"volume": 50}}},
		Steps: []host.PresetStep{{
			Down: []host.PresetAction{{ActionID: "audio", Options: host.Options{"volume": 50}}},
		}},
	}})
	return r, rec
}

// readyFlag is a switchable readiness probe
type readyFlag struct {
	v atomic.Bool
}

func (f *readyFlag) get() bool  { return f.v.Load() }
func (f *readyFlag) set(v bool) { f.v.Store(v) }

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
