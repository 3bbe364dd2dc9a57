// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
)

// Level options span 0..100 and default to the midpoint
func levelOption(id, label string) host.Option {
	return host.Option{
		Type:     host.OptionNumber,
		ID:       id,
		Label:    label,
		Default:  50,
		Min:      0,
		Max:      100,
		Step:     1,
		Required: true,
	}
}

func dropdownOption(id, label string, choices []host.Choice) host.Option {
	return host.Option{
		Type:    host.OptionDropdown,
		ID:      id,
		Label:   label,
		Choices: choices,
		Default: firstChoice(choices),
	}
}

func (i *Instance) actionDefinitions() []host.ActionDefinition {
	c := i.choices

	// Each template action resolves to exactly one dispatch
	send := func(render func(host.Options) string) func(context.Context, host.ActionEvent) error {
		return func(ctx context.Context, ev host.ActionEvent) error {
			i.supervisor.Dispatch(render(ev.Options))
			return nil
		}
	}

	return []host.ActionDefinition{
		{
			ID:   "source",
			Name: "Source",
			Options: []host.Option{
				dropdownOption("source_name", "Source", c.Source),
				dropdownOption("mv1_2", "MV1-2", c.SourceMultiview),
				dropdownOption("mv3_4", "MV3-4", c.SourceMultiview),
			},
			Callback: send(sourceTemplate.format),
		},
		{
			ID:   "audio",
			Name: "Audio",
			Options: []host.Option{
				levelOption("volume", "Volume"),
				dropdownOption("meter", "Meter", c.AudioMeter),
				dropdownOption("output", "Output (Right, Left)", c.AudioOutput),
			},
			Callback: send(audioTemplate.format),
		},
		{
			ID:   "picture",
			Name: "Picture",
			Options: []host.Option{
				levelOption("brightness", "Brightness"),
				levelOption("contrast", "Contrast"),
				levelOption("saturation", "Saturation"),
				levelOption("tint", "Tint"),
				levelOption("sharpness", "Sharpness"),
				levelOption("backlight", "Backlight"),
				dropdownOption("color_temp", "Color Temp", c.PictureColorTemp),
			},
			Callback: send(pictureTemplate.format),
		},
		{
			ID:   "umd",
			Name: "UMD",
			Options: []host.Option{
				dropdownOption("tally", "Tally Color", c.UMDTally),
				{Type: host.OptionTextInput, ID: "text", Label: "Text", Default: ""},
			},
			Callback: send(umdCommand),
		},
		{
			ID:   "customCommand",
			Name: "Custom Command",
			Options: []host.Option{
				{
					Type:         host.OptionTextInput,
					ID:           "command",
					Label:        "Command",
					Default:      "volume $(internal:time_s)",
					UseVariables: true,
				},
			},
			Callback: func(ctx context.Context, ev host.ActionEvent) error {
				command, err := i.host.ParseVariablesInString(ctx, ev.Options.String("command"))
				if err != nil {
					return err
				}
				i.supervisor.Dispatch(command)
				return nil
			},
		},
	}
}

// feedbackSpec binds a feedback to a state key and the option it compares
type feedbackSpec struct {
	id          string
	name        string
	description string
	key         string
	option      host.Option
	cmp         Comparison
}

func (i *Instance) feedbackSpecs() []feedbackSpec {
	c := i.choices
	level := func(key, name string) feedbackSpec {
		return feedbackSpec{
			id:          key,
			name:        name,
			description: "If the system " + key + " is at the selected level, give feedback",
			key:         key,
			option:      levelOption(key, name),
			cmp:         Level,
		}
	}

	return []feedbackSpec{
		{
			id:          "source",
			name:        "Source",
			description: "If the source specified is the current source, give feedback",
			key:         "source",
			option:      dropdownOption("source_name", "Source", c.Source),
			cmp:         Categorical,
		},
		level("volume", "Volume"),
		level("brightness", "Brightness"),
		level("contrast", "Contrast"),
		level("saturation", "Saturation"),
		level("tint", "Tint"),
		level("sharpness", "Sharpness"),
		level("backlight", "Backlight"),
		{
			id:          "color-temp",
			name:        "Color Temperature",
			description: "If the color temperature specified is the current one, give feedback",
			key:         "color-temp",
			option:      dropdownOption("color_temp", "Color Temp", c.PictureColorTemp),
			cmp:         Categorical,
		},
		{
			id:          "tally",
			name:        "Tally",
			description: "If the UMD tally is the selected color, give feedback",
			key:         "tally",
			option:      dropdownOption("tally", "Tally Color", c.UMDTally),
			cmp:         Categorical,
		},
	}
}

var (
	feedbackForeground = host.CombineRGB(0, 0, 0)
	feedbackBackground = host.CombineRGB(255, 255, 0)
)

func (i *Instance) feedbackDefinitions() []host.FeedbackDefinition {
	specs := i.feedbackSpecs()
	defs := make([]host.FeedbackDefinition, 0, len(specs))
	for _, spec := range specs {
		spec := spec
		defs = append(defs, host.FeedbackDefinition{
			ID:           spec.id,
			Name:         spec.name,
			Description:  spec.description,
			Options:      []host.Option{spec.option},
			DefaultStyle: host.Style{Color: feedbackForeground, BgColor: feedbackBackground},
			Callback: func(opts host.Options) bool {
				return i.mirror.Evaluate(spec.cmp, spec.key, opts[spec.option.ID])
			},
		})
	}
	return defs
}

func variableDefinitions() []host.VariableDefinition {
	return []host.VariableDefinition{
		{ID: "source", Name: "Source"},
		{ID: "volume", Name: "Volume"},
		{ID: "brightness", Name: "Brightness"},
		{ID: "contrast", Name: "Contrast"},
		{ID: "saturation", Name: "Saturation"},
		{ID: "tint", Name: "Tint"},
		{ID: "sharpness", Name: "Sharpness"},
		{ID: "backlight", Name: "Backlight"},
		{ID: "color-temp", Name: "Color Temperature"},
		{ID: "tally", Name: "Tally"},
	}
}
