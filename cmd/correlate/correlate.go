// Package correlate is a subcommand of the root command. It runs the Mode B
// per-core stress sweep and writes the sensor-to-core attribution reports.
package correlate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"pmeye/internal/common"
	corr "pmeye/internal/correlate"
	"pmeye/internal/engine"
	"pmeye/internal/eye"
	"pmeye/internal/pmtable"
	"pmeye/internal/progress"
	"pmeye/internal/sampler"
	"pmeye/internal/stimulus"
	"pmeye/internal/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cmdName = "correlate"

var examples = []string{
	fmt.Sprintf("  Attribute sensors to cores:            $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Known-schedule attribution:            $ %s %s --phase-means", common.AppName, cmdName),
	fmt.Sprintf("  Named sensors and an XLSX workbook:    $ %s %s --names sensors.yaml --xlsx", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Aliases:       []string{"corr"},
	Short:         "Attribute pm_table sensors to the cores that move them",
	Long:          "",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagMeasurementCore int
	flagBaselineMS      int
	flagActiveMS        int
	flagPhaseMeans      bool
	flagAccumulateMS    int
	flagReportPrefix    string
	flagNames           string
	flagXLSX            bool
	flagPrometheus      string
)

const (
	flagMeasurementCoreName = "measurement-core"
	flagBaselineMSName      = "baseline-ms"
	flagActiveMSName        = "active-ms"
	flagPhaseMeansName      = "phase-means"
	flagAccumulateMSName    = "accumulate-ms"
	flagReportPrefixName    = "report-prefix"
	flagNamesName           = "names"
	flagXLSXName            = "xlsx"
	flagPrometheusName      = "prometheus"
)

func init() {
	Cmd.Flags().IntVar(&flagMeasurementCore, flagMeasurementCoreName, 0, "sampler core")
	Cmd.Flags().IntVar(&flagBaselineMS, flagBaselineMSName, 1500, "idle baseline window per core in ms")
	Cmd.Flags().IntVar(&flagActiveMS, flagActiveMSName, 2000, "stressed window per core in ms")
	Cmd.Flags().BoolVar(&flagPhaseMeans, flagPhaseMeansName, false, "use the known-schedule on/off phase means algorithm")
	Cmd.Flags().IntVar(&flagAccumulateMS, flagAccumulateMSName, 3000, "history accumulation window for --phase-means in ms")
	Cmd.Flags().StringVar(&flagReportPrefix, flagReportPrefixName, "correlation", "report filename prefix")
	Cmd.Flags().StringVar(&flagNames, flagNamesName, "", "YAML file mapping sensor indices to names")
	Cmd.Flags().BoolVar(&flagXLSX, flagXLSXName, false, "also write an XLSX workbook")
	Cmd.Flags().StringVar(&flagPrometheus, flagPrometheusName, "", "serve live metrics on this address, e.g. :9090")
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagBaselineMS < 100 {
		return fmt.Errorf("--%s must be at least 100", flagBaselineMSName)
	}
	if flagActiveMS < 100 {
		return fmt.Errorf("--%s must be at least 100", flagActiveMSName)
	}
	if flagMeasurementCore < 0 {
		return fmt.Errorf("--%s must not be negative", flagMeasurementCoreName)
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

	samplerCfg := sampler.DefaultConfig()
	samplerCfg.Core = flagMeasurementCore

	engineCfg := engine.DefaultConfig()
	engineCfg.SamplerConfig = samplerCfg
	if flagPrometheus != "" {
		engineCfg.OnJitterReport = telemetry.UpdateJitter
	}

	// the cell engine observes every sensor; the eye selection is irrelevant
	// here, so track none
	e, err := engine.New(engineCfg, rdr, eye.NewSelection(nil), eye.DefaultProcessorConfig())
	if err != nil {
		return err
	}

	if flagPrometheus != "" {
		telemetry.StartServer(flagPrometheus)
	}

	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChannel)
	go func() {
		<-sigChannel
		fmt.Println()
		e.Flags.Terminate.Store(true)
	}()

	e.Start()
	defer e.Stop()

	pool := stimulus.NewPool(runtime.NumCPU())
	pool.Start()
	defer pool.Stop()

	display := progress.NewSweepDisplay(pool.CoreCount())
	display.Start()

	if flagPhaseMeans {
		opts := corr.DefaultPhaseMeansOptions()
		opts.Accumulate = time.Duration(flagAccumulateMS) * time.Millisecond
		e.Cells().RunPhaseMeans(pool, &e.Flags, opts)
	} else {
		opts := corr.DefaultSweepOptions()
		opts.Baseline = time.Duration(flagBaselineMS) * time.Millisecond
		opts.Active = time.Duration(flagActiveMS) * time.Millisecond
		opts.Progress = func(coreID int, status string) {
			display.Status(coreID, status)
		}
		e.Cells().RunSweep(pool, &e.Flags, opts)
	}
	display.Finish()

	if e.Flags.Terminate.Load() {
		fmt.Println("Interrupted; partial results will be reported.")
	}

	cells := e.Cells().Snapshot()
	if flagPrometheus != "" {
		telemetry.UpdateCells(cells, names)
	}

	reporter := &corr.Reporter{
		OutputDir: appContext.OutputDir,
		Prefix:    flagReportPrefix,
		Names:     names,
		XLSX:      flagXLSX,
	}
	paths, err := reporter.Write(cells, time.Now().Local())
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Printf("Report written: %s\n", path)
	}

	p := message.NewPrinter(language.English)
	attributed := 0
	for _, cell := range cells {
		if len(cell.TopCorrelations) > 0 && cell.TopCorrelations[0].Strength > 0.5 {
			attributed++
		}
	}
	p.Printf("%d of %d sensors attributed with strength above 0.5\n", attributed, len(cells))
	return nil
}
