// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Thermoquad/lilliput-bridge/pkg/bridge"
	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the monitor command schema and choice lists",
	Long: `Print the commands the monitor understands, their positional fields and
the values each enumerated field accepts, followed by the dropdown lists used
by actions and presets.

The schema comes from the embedded protocol catalog. No connection is made.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	schema := bridge.DiscoverDeviceSchema()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Commands\n")
	printSchema(out, schema)

	choices := bridge.NewInstance(host.NewRegistry("catalog")).Choices()
	fmt.Fprintf(out, "\nChoices\n")
	printChoices(out, "on/off", choices.OnOff)
	printChoices(out, "levels", choices.Levels)
	printChoices(out, "source", choices.Source)
	printChoices(out, "multiview", choices.SourceMultiview)
	printChoices(out, "audio meter", choices.AudioMeter)
	printChoices(out, "audio output", choices.AudioOutput)
	printChoices(out, "color temp", choices.PictureColorTemp)
	printChoices(out, "tally", choices.UMDTally)
	return nil
}

func printSchema(out io.Writer, schema bridge.CommandSchema) {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fields := schema[name]
		if len(fields) == 0 {
			fmt.Fprintf(out, "  %s (no arguments)\n", name)
			continue
		}
		fmt.Fprintf(out, "  %s\n", name)
		for _, f := range fields {
			if len(f.Values) == 0 {
				fmt.Fprintf(out, "    %-16s (free value)\n", f.Field)
				continue
			}
			fmt.Fprintf(out, "    %-16s %s\n", f.Field, strings.Join(f.Values, ", "))
		}
	}
}

func printChoices(out io.Writer, name string, choices []host.Choice) {
	labels := make([]string, 0, len(choices))
	for _, c := range choices {
		labels = append(labels, c.Label)
	}
	if len(labels) == 0 {
		fmt.Fprintf(out, "  %-14s (unsupported)\n", name)
		return
	}
	fmt.Fprintf(out, "  %-14s %s\n", name, strings.Join(labels, ", "))
}
