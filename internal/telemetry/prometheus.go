// Package telemetry publishes live pipeline state to Prometheus: per-sensor
// values, sampler jitter aggregates and correlation strengths.
package telemetry

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pmeye/internal/sampler"
	"pmeye/internal/stats"
)

var (
	sensorValueGaugeVec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmeye_sensor_value",
			Help: "Live pm_table sensor values",
		},
		[]string{"index", "name"},
	)
	jitterGaugeVec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmeye_sampler_period_us",
			Help: "Sampler period statistics per reporting interval",
		},
		[]string{"stat"},
	)
	overPeriodGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pmeye_sampler_over_period_total",
			Help: "Samples exceeding the target period in the last reporting interval",
		},
	)
	correlationGaugeVec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmeye_correlation_strength",
			Help: "Per-sensor top core correlation strengths",
		},
		[]string{"index", "core"},
	)
)

// StartServer registers the gauges and serves /metrics on listenAddr.
func StartServer(listenAddr string) {
	prometheus.MustRegister(sensorValueGaugeVec, jitterGaugeVec, overPeriodGauge, correlationGaugeVec)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("starting Prometheus metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
		}
	}()
}

// UpdateCells refreshes the sensor value and correlation gauges from a cell
// snapshot. Intended to be called at display cadence, not per sample.
func UpdateCells(cells []stats.CellStats, names map[int]string) {
	for i, cell := range cells {
		idx := fmt.Sprintf("%d", i)
		sensorValueGaugeVec.WithLabelValues(idx, names[i]).Set(float64(cell.Current))
		for _, corr := range cell.TopCorrelations {
			correlationGaugeVec.WithLabelValues(idx, fmt.Sprintf("%d", corr.CoreID)).Set(corr.Strength)
		}
	}
}

// UpdateJitter refreshes the sampler period gauges from one jitter report.
// Wire it as the jitter monitor's OnReport hook.
func UpdateJitter(st sampler.JitterStats) {
	jitterGaugeVec.WithLabelValues("mean").Set(st.MeanUS)
	jitterGaugeVec.WithLabelValues("stddev").Set(st.StdDevUS)
	jitterGaugeVec.WithLabelValues("min").Set(float64(st.MinUS))
	jitterGaugeVec.WithLabelValues("max").Set(float64(st.MaxUS))
	jitterGaugeVec.WithLabelValues("p1").Set(float64(st.P1US))
	jitterGaugeVec.WithLabelValues("p50").Set(float64(st.P50US))
	jitterGaugeVec.WithLabelValues("p99").Set(float64(st.P99US))
	overPeriodGauge.Set(float64(st.OverPeriod))
}
