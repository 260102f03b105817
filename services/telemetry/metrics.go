// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydroguard_runs_total",
		Help: "Workflow runs by terminal outcome.",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hydroguard_stage_duration_seconds",
		Help:    "Duration of each workflow stage transition.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})

	reasoningFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydroguard_reasoning_failures_total",
		Help: "Reasoning backend failures after the bounded retry, by stage.",
	}, []string{"stage"})

	valveCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydroguard_valve_commands_total",
		Help: "Outward valve commands by result.",
	}, []string{"status"})
)

// RecordRun counts one terminated workflow run.
func RecordRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records one stage transition's duration.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordReasoningFailure counts a prediction or planning fallback.
func RecordReasoningFailure(stage string) {
	reasoningFailures.WithLabelValues(stage).Inc()
}

// RecordValveCommand counts one outward valve command.
func RecordValveCommand(status string) {
	valveCommands.WithLabelValues(status).Inc()
}
