// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge adapts a Lilliput monitor to a button-panel automation host.
//
// The bridge discovers the monitor's command schema from the protocol
// catalog, mirrors device state from response events, dispatches user
// commands when the transport is ready and keeps the host's variables and
// feedbacks in step with the mirrored state. Instance ties these together
// behind the host lifecycle hooks Init, ConfigUpdated and Destroy.
package bridge

import (
	"context"

	"github.com/Thermoquad/lilliput-bridge/pkg/config"
	"github.com/Thermoquad/lilliput-bridge/pkg/host"
)

// Choices holds the dropdown lists resolved once from the schema
type Choices struct {
	OnOff            []host.Choice
	Levels           []host.Choice
	Source           []host.Choice
	SourceMultiview  []host.Choice
	AudioMeter       []host.Choice
	AudioOutput      []host.Choice
	PictureColorTemp []host.Choice
	UMDTally         []host.Choice
}

func resolveChoices(schema CommandSchema) Choices {
	return Choices{
		OnOff: []host.Choice{
			{ID: "off", Label: "Off"},
			{ID: "on", Label: "On"},
		},
		Levels: []host.Choice{
			{ID: "0", Label: "0"},
			{ID: "25", Label: "25"},
			{ID: "50", Label: "50"},
			{ID: "75", Label: "75"},
			{ID: "100", Label: "100"},
		},
		Source:           GenerateChoices(schema, "source", "source"),
		SourceMultiview:  GenerateChoices(schema, "source", "mv1-2"),
		AudioMeter:       GenerateChoices(schema, "audio", "meter"),
		AudioOutput:      GenerateChoices(schema, "audio", "right-left-out"),
		PictureColorTemp: GenerateChoices(schema, "picture", "color-temp"),
		UMDTally:         GenerateChoices(schema, "umd", "tally"),
	}
}

// Instance is one configured monitor on a host.
type Instance struct {
	host       host.Host
	schema     CommandSchema
	choices    Choices
	mirror     *Mirror
	supervisor *Supervisor
}

// NewInstance discovers the schema and prepares the supervisor. Run must be
// started before Init.
func NewInstance(h host.Host, options ...SupervisorOption) *Instance {
	schema := DiscoverDeviceSchema()
	mirror := NewMirror()
	return &Instance{
		host:       h,
		schema:     schema,
		choices:    resolveChoices(schema),
		mirror:     mirror,
		supervisor: NewSupervisor(h, mirror, options...),
	}
}

// Run drives the instance's event loop until ctx ends
func (i *Instance) Run(ctx context.Context) error {
	return i.supervisor.Run(ctx)
}

// Init registers actions, variables, feedbacks and presets, then connects.
// A configuration error leaves the definitions registered and the status at
// BadConfig.
func (i *Instance) Init(cfg *config.Config) error {
	i.host.SetActionDefinitions(i.actionDefinitions())
	i.host.SetVariableDefinitions(variableDefinitions())
	i.host.SetFeedbackDefinitions(i.feedbackDefinitions())
	i.host.SetPresetDefinitions(i.presetDefinitions())
	return i.supervisor.Init(cfg)
}

// ConfigUpdated re-runs the full connection setup with cfg
func (i *Instance) ConfigUpdated(cfg *config.Config) error {
	return i.supervisor.Init(cfg)
}

// Destroy closes the transport and listener
func (i *Instance) Destroy() error {
	return i.supervisor.Destroy()
}

// Schema returns the discovered command schema
func (i *Instance) Schema() CommandSchema {
	return i.schema
}

// Choices returns the resolved dropdown lists
func (i *Instance) Choices() Choices {
	return i.choices
}

// Mirror returns the mirrored device state
func (i *Instance) Mirror() *Mirror {
	return i.mirror
}

// Ready reports whether commands currently reach the monitor
func (i *Instance) Ready() bool {
	return i.supervisor.Ready()
}
