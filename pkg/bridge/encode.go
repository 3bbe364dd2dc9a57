// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
)

// UMD label geometry
const (
	umdSlots   = 16
	umdPadding = "0x20"
	umdTrailer = "val1a,val2a"
)

// commandTemplate renders "name v1,v2,..." from action options in order
type commandTemplate struct {
	name    string
	options []string
}

func (c commandTemplate) format(opts host.Options) string {
	values := make([]string, len(c.options))
	for i, id := range c.options {
		values[i] = opts.String(id)
	}
	return c.name + " " + strings.Join(values, ",")
}

var (
	sourceTemplate = commandTemplate{
		name:    "source",
		options: []string{"source_name", "mv1_2", "mv3_4"},
	}
	audioTemplate = commandTemplate{
		name:    "audio",
		options: []string{"volume", "meter", "output"},
	}
	pictureTemplate = commandTemplate{
		name:    "picture",
		options: []string{"brightness", "contrast", "saturation", "tint", "sharpness", "backlight", "color_temp"},
	}
)

// EncodeUMDText encodes a label as 16 comma separated hex tokens, one per
// UTF-16 code unit, padded with 0x20. Longer labels are cut at 16 units.
func EncodeUMDText(text string) string {
	units := utf16.Encode([]rune(text))
	tokens := make([]string, umdSlots)
	for i := range tokens {
		if i < len(units) {
			tokens[i] = fmt.Sprintf("0x%x", units[i])
		} else {
			tokens[i] = umdPadding
		}
	}
	return strings.Join(tokens, ",")
}

// umdCommand renders the UMD command from its tally and text options
func umdCommand(opts host.Options) string {
	return "umd " + opts.String("tally") + "," + EncodeUMDText(opts.String("text")) + "," + umdTrailer
}
