// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"unicode"
	"unicode/utf8"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
)

// FieldChoice is one positional field of a command and its enumerable values.
// Values is empty, never nil, for free-form fields.
type FieldChoice struct {
	Field  string
	Values []string
}

// CommandSchema maps a command name to its fields in catalog order. Commands
// without arguments map to a nil slice.
type CommandSchema map[string][]FieldChoice

// DiscoverSchema builds the schema from a catalog. It does no I/O.
func DiscoverSchema(catalog *lilliput.Catalog) CommandSchema {
	schema := make(CommandSchema)
	if catalog == nil {
		return schema
	}

	for _, cmd := range catalog.Commands {
		if len(cmd.Values) == 0 {
			schema[cmd.Name] = nil
			continue
		}
		fields := make([]FieldChoice, 0, len(cmd.Values))
		for _, f := range cmd.Values {
			if f.Name == "" {
				continue
			}
			fields = append(fields, FieldChoice{Field: f.Name, Values: f.ItemNames()})
		}
		schema[cmd.Name] = fields
	}
	return schema
}

// DiscoverDeviceSchema inspects the catalog of a throwaway offline device, so
// no socket is opened.
func DiscoverDeviceSchema() CommandSchema {
	dev := lilliput.NewDevice("", 0, lilliput.WithOffline())
	return DiscoverSchema(dev.Catalog())
}

// Values returns the allowed values of command/field, or an empty list
func (s CommandSchema) Values(command, field string) []string {
	for _, f := range s[command] {
		if f.Field == field {
			return f.Values
		}
	}
	return []string{}
}

// GenerateChoices returns the dropdown choices for command/field. The label is
// the id with its first character upper-cased. An unknown command or field, or
// a field without items, yields an empty list: the feature is unsupported on
// this model.
func GenerateChoices(schema CommandSchema, command, field string) []host.Choice {
	values := schema.Values(command, field)
	choices := make([]host.Choice, 0, len(values))
	for _, v := range values {
		choices = append(choices, host.Choice{ID: v, Label: capitalize(v)})
	}
	return choices
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// firstChoice is the default of a dropdown: its first id, or "" when empty
func firstChoice(choices []host.Choice) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[0].ID
}
