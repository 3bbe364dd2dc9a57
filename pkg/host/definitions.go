// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package host

import (
	"context"
	"fmt"
	"strconv"
)

// Choice is one entry of a dropdown option
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// OptionType is the input widget of an option
type OptionType string

const (
	OptionDropdown  OptionType = "dropdown"
	OptionNumber    OptionType = "number"
	OptionTextInput OptionType = "textinput"
)

// Option describes one user-configurable input of an action or feedback.
type Option struct {
	Type         OptionType  `json:"type"`
	ID           string      `json:"id"`
	Label        string      `json:"label"`
	Choices      []Choice    `json:"choices,omitempty"`
	Default      interface{} `json:"default,omitempty"`
	Min          int         `json:"min,omitempty"`
	Max          int         `json:"max,omitempty"`
	Step         int         `json:"step,omitempty"`
	Required     bool        `json:"required,omitempty"`
	UseVariables bool        `json:"useVariables,omitempty"`
}

// Options holds the values chosen for an action or feedback, keyed by option id.
type Options map[string]interface{}

// String returns an option value as text. Missing values are "".
func (o Options) String(id string) string {
	v, ok := o[id]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Int returns an option value as an integer, parsing text when needed.
func (o Options) Int(id string) (int, bool) {
	switch val := o[id].(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Defaults returns the default value of every option
func Defaults(opts []Option) Options {
	out := make(Options, len(opts))
	for _, opt := range opts {
		if opt.Default != nil {
			out[opt.ID] = opt.Default
		}
	}
	return out
}

// ActionEvent is passed to an action callback
type ActionEvent struct {
	ActionID string
	Options  Options
	Host     Host
}

// ActionDefinition describes an action a button can run
type ActionDefinition struct {
	ID       string                                          `json:"id"`
	Name     string                                          `json:"name"`
	Options  []Option                                        `json:"options"`
	Callback func(ctx context.Context, ev ActionEvent) error `json:"-"`
}

// FeedbackDefinition describes a boolean predicate over device state
type FeedbackDefinition struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Options      []Option                `json:"options"`
	DefaultStyle Style                   `json:"defaultStyle"`
	Callback     func(opts Options) bool `json:"-"`
}

// VariableDefinition describes a variable published by the module
type VariableDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Style is the visual appearance of a button
type Style struct {
	Text    string `json:"text,omitempty"`
	Size    string `json:"size,omitempty"`
	Color   int    `json:"color"`
	BgColor int    `json:"bgcolor"`
}

// PresetFeedback attaches a feedback to a preset button
type PresetFeedback struct {
	FeedbackID string  `json:"feedbackId"`
	Style      Style   `json:"style"`
	Options    Options `json:"options"`
}

// PresetAction is one action run by a preset step
type PresetAction struct {
	ActionID string  `json:"actionId"`
	Options  Options `json:"options"`
}

// PresetStep is one press of a preset button
type PresetStep struct {
	Down []PresetAction `json:"down"`
	Up   []PresetAction `json:"up"`
}

// PresetDefinition is a ready-made button
type PresetDefinition struct {
	ID        string           `json:"id"`
	Category  string           `json:"category"`
	Name      string           `json:"name"`
	Style     Style            `json:"style"`
	Feedbacks []PresetFeedback `json:"feedbacks"`
	Steps     []PresetStep     `json:"steps"`
}

// CombineRGB packs a colour into the host's 24-bit representation
func CombineRGB(r, g, b uint8) int {
	return int(r)<<16 | int(g)<<8 | int(b)
}
