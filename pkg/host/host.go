// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package host defines the boundary between a device module and the
// button-panel automation host that drives it: status reporting, action,
// feedback, variable and preset definitions, and variable interpolation.
//
// Registry is an in-process Host used by the CLI surfaces (TUI, websocket,
// MQTT) and by tests.
package host

import "context"

// Status is the connection health reported to the host status display.
type Status string

const (
	StatusOk                Status = "ok"
	StatusConnecting        Status = "connecting"
	StatusDisconnected      Status = "disconnected"
	StatusUnknownError      Status = "unknown_error"
	StatusConnectionFailure Status = "connection_failure"
	StatusBadConfig         Status = "bad_config"
)

// Host is the capability set a module uses to publish itself.
type Host interface {
	// UpdateStatus sets the health shown for this module. message may be empty.
	UpdateStatus(status Status, message string)

	SetActionDefinitions(defs []ActionDefinition)
	SetFeedbackDefinitions(defs []FeedbackDefinition)
	SetVariableDefinitions(defs []VariableDefinition)
	SetPresetDefinitions(defs []PresetDefinition)

	// SetVariableValues publishes variable values. Keys not in values keep
	// their previous value.
	SetVariableValues(values map[string]interface{})

	// CheckFeedbacks re-evaluates the named feedbacks, or all of them when no
	// id is given.
	CheckFeedbacks(ids ...string)

	// ParseVariablesInString expands $(label:name) references in text.
	ParseVariablesInString(ctx context.Context, text string) (string, error)
}
