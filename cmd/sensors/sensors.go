// Package sensors is a subcommand of the root command. It runs the preflight
// sampling pass and lists which pm_table sensors move.
package sensors

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"pmeye/internal/common"
	"pmeye/internal/engine"
	"pmeye/internal/pmtable"
	"pmeye/internal/sampler"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cmdName = "sensors"

var examples = []string{
	fmt.Sprintf("  List moving sensors:                  $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  List every sensor:                    $ %s %s --all", common.AppName, cmdName),
	fmt.Sprintf("  Custom selection expression:          $ %s %s --filter 'variance > 0.01 && mean < 200'", common.AppName, cmdName),
	fmt.Sprintf("  With names from a sensor map:         $ %s %s --names sensors.yaml", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "List pm_table sensors and their preflight statistics",
	Long:          "",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagAll     bool
	flagFilter  string
	flagNames   string
	flagSamples int
	flagCore    int
)

const (
	flagAllName     = "all"
	flagFilterName  = "filter"
	flagNamesName   = "names"
	flagSamplesName = "samples"
	flagCoreName    = "core"
)

func init() {
	Cmd.Flags().BoolVar(&flagAll, flagAllName, false, "list all sensors, not only the moving ones")
	Cmd.Flags().StringVar(&flagFilter, flagFilterName, "", "selection expression over index, min, max, mean, variance, range")
	Cmd.Flags().StringVar(&flagNames, flagNamesName, "", "YAML file mapping sensor indices to names")
	Cmd.Flags().IntVar(&flagSamples, flagSamplesName, engine.DefaultPreflightSamples, "number of 1 ms preflight samples")
	Cmd.Flags().IntVar(&flagCore, flagCoreName, 0, "measurement core")
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagSamples < 2 {
		return fmt.Errorf("--%s must be at least 2", flagSamplesName)
	}
	if flagAll && flagFilter != "" {
		return fmt.Errorf("--%s and --%s are mutually exclusive", flagAllName, flagFilterName)
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)

	var names map[int]string
	if flagNames != "" {
		var err error
		if names, err = common.LoadSensorNames(flagNames); err != nil {
			return err
		}
	}

	rdr, err := pmtable.Open(appContext.SMUDir)
	if err != nil {
		return err
	}
	defer rdr.Close()

	cfg := sampler.DefaultConfig()
	cfg.Core = flagCore
	sensorStats, err := engine.Preflight(rdr, cfg, flagSamples)
	if err != nil {
		return err
	}

	selected, err := engine.SelectSensors(sensorStats, flagFilter)
	if err != nil {
		return err
	}
	isSelected := make(map[int]bool, len(selected))
	for _, idx := range selected {
		isSelected[idx] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tMIN\tMAX\tMEAN\tVARIANCE\tMOVING")
	for _, st := range sensorStats {
		if !flagAll && !isSelected[st.Index] {
			continue
		}
		moving := ""
		if isSelected[st.Index] {
			moving = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%.3f\t%.3f\t%.6g\t%s\n",
			st.Index, names[st.Index], st.Min, st.Max, st.Mean, st.Variance, moving)
	}
	w.Flush()

	p := message.NewPrinter(language.English)
	p.Printf("%d of %d sensors selected over %d samples\n", len(selected), len(sensorStats), flagSamples)
	return nil
}
