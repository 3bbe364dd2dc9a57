// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "github.com/Thermoquad/lilliput-bridge/pkg/host"

// presetGroup expands to one preset per choice: the action with setting set
// to the choice and every other option fixed, plus the matching feedback.
type presetGroup struct {
	action     string
	setting    string
	feedback   string
	label      string
	category   string
	choices    []host.Choice
	additional host.Options
}

func (i *Instance) presetGroups() []presetGroup {
	c := i.choices
	return []presetGroup{
		{
			action:     "source",
			setting:    "source_name",
			feedback:   "source",
			category:   "Source",
			choices:    c.Source,
			additional: host.Options{"mv1_2": "SDI1-SDI2", "mv3_4": "SDI3-SDI4"},
		},
		{
			action:     "audio",
			setting:    "volume",
			feedback:   "volume",
			label:      "Volume ",
			category:   "Audio",
			choices:    c.Levels,
			additional: host.Options{"meter": "None", "output": "2-1"},
		},
		{
			action:   "picture",
			setting:  "backlight",
			feedback: "backlight",
			label:    "Backlight ",
			category: "Picture",
			choices:  c.Levels,
			additional: host.Options{
				"brightness": 50,
				"contrast":   50,
				"saturation": 50,
				"tint":       50,
				"sharpness":  50,
				"color_temp": "6500K",
			},
		},
		{
			action:     "umd",
			setting:    "tally",
			feedback:   "tally",
			label:      "Tally ",
			category:   "UMD",
			choices:    c.UMDTally,
			additional: host.Options{"text": ""},
		},
	}
}

func (i *Instance) presetDefinitions() []host.PresetDefinition {
	var presets []host.PresetDefinition
	for _, g := range i.presetGroups() {
		for _, choice := range g.choices {
			opts := make(host.Options, len(g.additional)+1)
			for k, v := range g.additional {
				opts[k] = v
			}
			opts[g.setting] = choice.ID

			text := g.label + choice.Label
			presets = append(presets, host.PresetDefinition{
				ID:       g.action + "_" + choice.ID,
				Category: g.category,
				Name:     text,
				Style: host.Style{
					Text:    text,
					Size:    "14",
					Color:   host.CombineRGB(255, 255, 255),
					BgColor: host.CombineRGB(0, 0, 0),
				},
				Feedbacks: []host.PresetFeedback{{
					FeedbackID: g.feedback,
					Style:      host.Style{Color: feedbackForeground, BgColor: feedbackBackground},
					Options:    opts,
				}},
				Steps: []host.PresetStep{{
					Down: []host.PresetAction{{ActionID: g.action, Options: opts}},
					Up:   []host.PresetAction{},
				}},
			})
		}
	}
	return presets
}
