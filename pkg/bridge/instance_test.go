// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"strings"
	"testing"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
)

type instanceHarness struct {
	inst     *Instance
	registry *host.Registry
	factory  *fakeFactory
}

func newInstanceHarness(t *testing.T) *instanceHarness {
	t.Helper()
	h := &instanceHarness{
		registry: host.NewRegistry("lilliput"),
		factory:  &fakeFactory{},
	}
	listeners := &fakeListeners{}
	h.inst = NewInstance(h.registry,
		WithTransportFactory(h.factory.New),
		WithListener(listeners.Listen),
		WithAfterFunc((&fakeClock{}).After),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go h.inst.Run(ctx)
	t.Cleanup(cancel)

	if err := h.inst.Init(validConfig()); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	return h
}

func (h *instanceHarness) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if err := h.inst.supervisor.do(func() {}); err != nil {
			t.Fatalf("supervisor stopped: %v", err)
		}
	}
}

func TestInstance_Definitions(t *testing.T) {
	h := newInstanceHarness(t)

	var actions []string
	for _, a := range h.registry.Actions() {
		actions = append(actions, a.ID)
	}
	if strings.Join(actions, ",") != "source,audio,picture,umd,customCommand" {
		t.Errorf("actions = %v", actions)
	}

	if got := len(h.registry.Feedbacks()); got != 10 {
		t.Errorf("feedbacks = %d, want 10", got)
	}
	if got := len(h.registry.VariableDefinitions()); got != 10 {
		t.Errorf("variables = %d, want 10", got)
	}

	// 6 sources + 5 volume levels + 5 backlight levels + 4 tally colours
	presets := h.registry.Presets()
	if len(presets) != 20 {
		t.Errorf("presets = %d, want 20", len(presets))
	}
	ids := make(map[string]host.PresetDefinition, len(presets))
	for _, p := range presets {
		ids[p.ID] = p
	}
	for _, id := range []string{"source_hdmi", "audio_25", "picture_100", "umd_red"} {
		if _, ok := ids[id]; !ok {
			t.Errorf("preset %q missing", id)
		}
	}
	if p := ids["audio_25"]; p.Name != "Volume 25" || p.Category != "Audio" {
		t.Errorf("audio_25 = %q in %q", p.Name, p.Category)
	}
	if p := ids["source_hdmi"]; p.Name != "Hdmi" {
		t.Errorf("source_hdmi name = %q", p.Name)
	}
}

func TestInstance_ActionDefaults(t *testing.T) {
	h := newInstanceHarness(t)

	for _, a := range h.registry.Actions() {
		if a.ID != "source" {
			continue
		}
		defaults := host.Defaults(a.Options)
		if defaults.String("source_name") != "sdi1" || defaults.String("mv1_2") != "SDI1-SDI2" {
			t.Errorf("source defaults = %v", defaults)
		}
	}
}

func TestInstance_PresetDispatches(t *testing.T) {
	h := newInstanceHarness(t)
	ft := h.factory.Last()
	ctx := context.Background()

	for _, id := range []string{"audio_25", "source_hdmi", "umd_red", "picture_75"} {
		if err := h.registry.PressPreset(ctx, id); err != nil {
			t.Fatalf("PressPreset(%q): %v", id, err)
		}
	}
	h.settle(t)

	got := ft.Processed()
	want := []string{
		"#connect",
		"status?",
		"audio 25,None,2-1",
		"source hdmi,SDI1-SDI2,SDI3-SDI4",
		"umd red," + EncodeUMDText("") + ",val1a,val2a",
		"picture 50,50,50,50,50,75,6500K",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("processed:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestInstance_FeedbacksFollowState(t *testing.T) {
	h := newInstanceHarness(t)
	ft := h.factory.Last()

	ft.emit(lilliput.Response{Session: ft.ID(), Req: "status", Value: map[string]interface{}{
		"source":    "hdmi",
		"volume":    int64(25),
		"backlight": "100",
		"tally":     "red",
	}})
	h.settle(t)

	active := []string{"source_hdmi", "audio_25", "picture_100", "umd_red"}
	inactive := []string{"source_sdi1", "audio_50", "picture_0", "umd_green"}
	for _, id := range active {
		if !h.registry.PresetActive(id) {
			t.Errorf("preset %q should be active", id)
		}
	}
	for _, id := range inactive {
		if h.registry.PresetActive(id) {
			t.Errorf("preset %q should be inactive", id)
		}
	}

	if h.registry.EvaluateFeedback("color-temp", host.Options{"color_temp": "6500K"}) {
		t.Error("color-temp is not in state yet")
	}
	ft.emit(lilliput.Response{Session: ft.ID(), Req: "color-temp", Value: "6500K"})
	h.settle(t)
	if !h.registry.EvaluateFeedback("color-temp", host.Options{"color_temp": "6500K"}) {
		t.Error("color-temp feedback should match")
	}
}

func TestInstance_CustomCommand(t *testing.T) {
	h := newInstanceHarness(t)
	ft := h.factory.Last()

	ft.emit(lilliput.Response{Session: ft.ID(), Req: "volume", Value: int64(30)})
	h.settle(t)

	err := h.registry.ExecuteAction(context.Background(), "customCommand", host.Options{
		"command": "audio $(lilliput:volume),None,2-1",
	})
	if err != nil {
		t.Fatalf("ExecuteAction: %v", err)
	}
	h.settle(t)

	if ft.Count("audio 30,None,2-1") != 1 {
		t.Errorf("processed = %v", ft.Processed())
	}
}

func TestInstance_ConfigUpdatedAndDestroy(t *testing.T) {
	h := newInstanceHarness(t)

	cfg := validConfig()
	cfg.Host = "10.0.0.6"
	if err := h.inst.ConfigUpdated(cfg); err != nil {
		t.Fatalf("ConfigUpdated: %v", err)
	}
	if h.factory.Created() != 2 || h.factory.Live() != 1 {
		t.Errorf("created=%d live=%d", h.factory.Created(), h.factory.Live())
	}
	if !h.inst.Ready() {
		t.Error("instance should be ready after reconnecting")
	}

	if err := h.inst.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if h.factory.Live() != 0 {
		t.Error("Destroy should close the transport")
	}
}
