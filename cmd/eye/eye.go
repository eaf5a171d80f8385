// Package eye is a subcommand of the root command. It runs the Mode A
// duty-cycled burst stimulus on a victim core and renders live eye diagrams
// of the sensors that respond.
package eye

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
	"pmeye/internal/engine"
	eyeproc "pmeye/internal/eye"
	"pmeye/internal/pmtable"
	"pmeye/internal/sampler"
	"pmeye/internal/stimulus"
	"pmeye/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const cmdName = "eye"

var examples = []string{
	fmt.Sprintf("  Eye diagram for core 3:                 $ %s %s --core 3", common.AppName, cmdName),
	fmt.Sprintf("  Longer bursts, deeper accumulation:     $ %s %s --core 3 --cycles 100 --accumulations 60", common.AppName, cmdName),
	fmt.Sprintf("  Publish snapshots to Prometheus:        $ %s %s --core 3 --prometheus :9090", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Capture eye diagrams triggered by a burst stimulus on a victim core",
	Long:          "",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagVictimCores     []int
	flagMeasurementCore int
	flagPeriod          int
	flagDuty            int
	flagCycles          int
	flagWindowBefore    int
	flagWindowAfter     int
	flagAccumulations   int
	flagRingCapacity    int
	flagTrimPercent     float64
	flagBursts          int
	flagAllSensors      bool
	flagPrometheus      string
)

const (
	flagVictimCoreName      = "core"
	flagMeasurementCoreName = "measurement-core"
	flagPeriodName          = "period"
	flagDutyName            = "duty"
	flagCyclesName          = "cycles"
	flagWindowBeforeName    = "window-before"
	flagWindowAfterName     = "window-after"
	flagAccumulationsName   = "accumulations"
	flagRingCapacityName    = "ring-capacity"
	flagTrimPercentName     = "trim"
	flagBurstsName          = "bursts"
	flagAllSensorsName      = "all"
	flagPrometheusName      = "prometheus"
)

func init() {
	Cmd.Flags().IntSliceVar(&flagVictimCores, flagVictimCoreName, []int{1}, "victim core(s) under stimulus; multiple cores are cycled between bursts")
	Cmd.Flags().IntVar(&flagMeasurementCore, flagMeasurementCoreName, 0, "sampler core")
	Cmd.Flags().IntVar(&flagPeriod, flagPeriodName, 150, "stimulus period in ms")
	Cmd.Flags().IntVar(&flagDuty, flagDutyName, 50, "stimulus duty cycle in percent (10-90)")
	Cmd.Flags().IntVar(&flagCycles, flagCyclesName, 30, "busy/idle cycles per burst")
	Cmd.Flags().IntVar(&flagWindowBefore, flagWindowBeforeName, 50, "pre-trigger window in ms")
	Cmd.Flags().IntVar(&flagWindowAfter, flagWindowAfterName, 150, "post-trigger window in ms")
	Cmd.Flags().IntVar(&flagAccumulations, flagAccumulationsName, 30, "per-bin accumulation depth")
	Cmd.Flags().IntVar(&flagRingCapacity, flagRingCapacityName, 600, "sample ring capacity")
	Cmd.Flags().Float64Var(&flagTrimPercent, flagTrimPercentName, 10, "trimmed-mean tail percentage")
	Cmd.Flags().IntVar(&flagBursts, flagBurstsName, 0, "number of bursts to run, 0 runs until interrupted")
	Cmd.Flags().BoolVar(&flagAllSensors, flagAllSensorsName, false, "track every sensor instead of the preflight selection")
	Cmd.Flags().StringVar(&flagPrometheus, flagPrometheusName, "", "serve live metrics on this address, e.g. :9090")

	Cmd.SetUsageFunc(usageFunc)
}

func usageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	cmd.Println("Flags:")
	for _, group := range getFlagGroups() {
		cmd.Printf("  %s:\n", group.GroupName)
		for _, flag := range group.Flags {
			flagDefault := ""
			if cmd.Flags().Lookup(flag.Name).DefValue != "" {
				flagDefault = fmt.Sprintf(" (default: %s)", cmd.Flags().Lookup(flag.Name).DefValue)
			}
			cmd.Printf("    --%-20s %s%s\n", flag.Name, flag.Help, flagDefault)
		}
	}
	cmd.Println("\nGlobal Flags:")
	cmd.Parent().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
		flagDefault := ""
		if cmd.Parent().PersistentFlags().Lookup(pf.Name).DefValue != "" {
			flagDefault = fmt.Sprintf(" (default: %s)", pf.DefValue)
		}
		cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, flagDefault)
	})
	return nil
}

func getFlagGroups() []common.FlagGroup {
	var groups []common.FlagGroup
	groups = append(groups, common.FlagGroup{
		GroupName: "Stimulus",
		Flags: []common.Flag{
			{Name: flagVictimCoreName, Help: "victim core(s) under stimulus; multiple cores are cycled between bursts"},
			{Name: flagPeriodName, Help: "stimulus period in ms"},
			{Name: flagDutyName, Help: "stimulus duty cycle in percent (10-90)"},
			{Name: flagCyclesName, Help: "busy/idle cycles per burst"},
			{Name: flagBurstsName, Help: "number of bursts to run, 0 runs until interrupted"},
		},
	})
	groups = append(groups, common.FlagGroup{
		GroupName: "Capture",
		Flags: []common.Flag{
			{Name: flagWindowBeforeName, Help: "pre-trigger window in ms"},
			{Name: flagWindowAfterName, Help: "post-trigger window in ms"},
			{Name: flagAccumulationsName, Help: "per-bin accumulation depth"},
			{Name: flagTrimPercentName, Help: "trimmed-mean tail percentage"},
			{Name: flagAllSensorsName, Help: "track every sensor instead of the preflight selection"},
		},
	})
	groups = append(groups, common.FlagGroup{
		GroupName: "Sampling",
		Flags: []common.Flag{
			{Name: flagMeasurementCoreName, Help: "sampler core"},
			{Name: flagRingCapacityName, Help: "sample ring capacity"},
			{Name: flagPrometheusName, Help: "serve live metrics on this address"},
		},
	})
	return groups
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagDuty < 10 || flagDuty > 90 {
		return fmt.Errorf("--%s must be in [10, 90]", flagDutyName)
	}
	if flagCycles < 1 {
		return fmt.Errorf("--%s must be at least 1", flagCyclesName)
	}
	if flagWindowBefore < 0 {
		return fmt.Errorf("--%s must not be negative", flagWindowBeforeName)
	}
	if flagWindowAfter < 1 {
		return fmt.Errorf("--%s must be at least 1", flagWindowAfterName)
	}
	if flagAccumulations < 1 {
		return fmt.Errorf("--%s must be at least 1", flagAccumulationsName)
	}
	if flagRingCapacity < 64 {
		return fmt.Errorf("--%s must be at least 64", flagRingCapacityName)
	}
	if flagTrimPercent < 0 || flagTrimPercent >= 50 {
		return fmt.Errorf("--%s must be in [0, 50)", flagTrimPercentName)
	}
	if flagMeasurementCore < 0 {
		return fmt.Errorf("--%s must not be negative", flagMeasurementCoreName)
	}
	if len(flagVictimCores) == 0 {
		return fmt.Errorf("--%s requires at least one core", flagVictimCoreName)
	}
	return nil
}

// clampVictim keeps the victim off the measurement core by moving it to a
// neighbor.
func clampVictim(victim, measurement int) int {
	if victim != measurement {
		return victim
	}
	clamped := measurement + 1
	if clamped >= runtime.NumCPU() {
		clamped = measurement - 1
	}
	fmt.Fprintf(os.Stderr, "Warning: victim core %d equals the measurement core, using core %d instead.\n", victim, clamped)
	return clamped
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)

	rdr, err := pmtable.Open(appContext.SMUDir)
	if err != nil {
		return err
	}
	defer rdr.Close()

	samplerCfg := sampler.DefaultConfig()
	samplerCfg.Core = flagMeasurementCore

	// find the sensors worth plotting before the pipeline starts
	var selection *eyeproc.Selection
	if flagAllSensors {
		selection = eyeproc.AllSensors(rdr.FloatCount())
	} else {
		sensorStats, err := engine.Preflight(rdr, samplerCfg, engine.DefaultPreflightSamples)
		if err != nil {
			return err
		}
		interesting, err := engine.SelectSensors(sensorStats, "")
		if err != nil {
			return err
		}
		if len(interesting) == 0 {
			return fmt.Errorf("no moving sensors found; try --%s", flagAllSensorsName)
		}
		fmt.Printf("Tracking %d moving sensors out of %d.\n", len(interesting), rdr.FloatCount())
		selection = eyeproc.NewSelection(interesting)
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.SamplerConfig = samplerCfg
	engineCfg.RingCapacity = flagRingCapacity
	if flagPrometheus != "" {
		engineCfg.OnJitterReport = telemetry.UpdateJitter
	}

	procCfg := eyeproc.ProcessorConfig{
		WindowBeforeMS:   flagWindowBefore,
		WindowAfterMS:    flagWindowAfter,
		MaxAccumulations: flagAccumulations,
		TrimPercent:      flagTrimPercent,
	}

	e, err := engine.New(engineCfg, rdr, selection, procCfg)
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

	victims := make([]int, len(flagVictimCores))
	for i, core := range flagVictimCores {
		victims[i] = clampVictim(core, flagMeasurementCore)
	}
	burstCfg := func(victim int) stimulus.BurstConfig {
		return stimulus.BurstConfig{
			CoreID:      victim,
			PeriodMS:    flagPeriod,
			DutyPercent: flagDuty,
			Cycles:      flagCycles,
		}
	}

	burstDone := make(chan struct{}, 1)
	runBurst := func(victim int) {
		stimulus.RunBurst(&e.Flags, burstCfg(victim))
		burstDone <- struct{}{}
	}
	go runBurst(victims[0])

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	burstsRun := 0
	for !e.Flags.Terminate.Load() {
		select {
		case <-burstDone:
			burstsRun++
			if flagBursts > 0 && burstsRun >= flagBursts {
				printSummary(e)
				return nil
			}
			last := victims[(burstsRun-1)%len(victims)]
			next := victims[burstsRun%len(victims)]
			if next != last {
				// discard accumulations gathered for the previous victim
				e.Commands().Push(eyeproc.ChangeVictimCore{CoreID: next})
			}
			go runBurst(next)
		case <-ticker.C:
			printSummary(e)
			if flagPrometheus != "" {
				telemetry.UpdateCells(e.Cells().Snapshot(), nil)
			}
		}
	}
	return nil
}

// printSummary writes one line for each of the first eight tracked sensors
// whose published snapshot holds data, then a count of the remaining ones.
func printSummary(e *engine.Engine) {
	proc := e.Processor()
	sel := proc.Selection()
	published := 0
	for i := range sel.Count() {
		snap := proc.Published(i)
		if len(snap.XMS) == 0 {
			continue
		}
		published++
		if published <= 8 {
			center := 0
			for k, x := range snap.XMS {
				if x == 0 {
					center = k
					break
				}
			}
			fmt.Printf("sensor %4d: %3d accumulations, %3d bins, y(0) = %.3f [%.3f, %.3f]\n",
				snap.OriginalSensorIndex, snap.AccumulationCount, len(snap.XMS),
				snap.YMean[center], snap.YMin[center], snap.YMax[center])
		}
	}
	if published > 8 {
		fmt.Printf("... and %d more sensors\n", published-8)
	}
}
