// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/HydroGuard/services/reasoning"
	"github.com/AleutianAI/HydroGuard/services/telemetry"
)

// riskReply is the schema the prediction stage demands from the reasoning
// backend. The three probability fields are pointers so absence is a
// validation failure rather than a silent zero.
type riskReply struct {
	Prob6h             *float64 `json:"overflow_probability_6h" validate:"required,min=0,max=1"`
	Prob12h            *float64 `json:"overflow_probability_12h" validate:"required,min=0,max=1"`
	Prob24h            *float64 `json:"overflow_probability_24h" validate:"required,min=0,max=1"`
	PeakTime           string   `json:"peak_time"`
	ExcessVolumeLiters float64  `json:"excess_volume_liters" validate:"min=0"`
	Recommendations    []string `json:"recommendations"`
	RiskLevel          string   `json:"risk_level" validate:"required"`
}

// PredictionStage obtains an overflow risk estimate from the reasoning
// backend. It never fails: on backend failure it degrades to a conservative
// level-proportional default so planning is never starved of a risk signal.
type PredictionStage struct {
	gateway *reasoning.Gateway
	log     *slog.Logger
}

// NewPredictionStage wires the gateway. logger may be nil.
func NewPredictionStage(gateway *reasoning.Gateway, logger *slog.Logger) *PredictionStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionStage{gateway: gateway, log: logger}
}

// Predict estimates overflow risk for the analysis and forecast.
func (s *PredictionStage) Predict(ctx context.Context, analysis AlertAnalysis, forecast ForecastData) RiskEstimate {
	prompt := buildPredictionPrompt(analysis, forecast)

	reply, err := reasoning.Invoke[riskReply](ctx, s.gateway, prompt)
	if err != nil {
		telemetry.RecordReasoningFailure("prediction")
		s.log.Warn("prediction degraded to conservative default",
			"sensor_id", analysis.SensorID,
			"alert_level", analysis.LevelName,
			"error", err)
		return degradedRisk(analysis.Level)
	}

	return RiskEstimate{
		Prob6h:             clamp01(*reply.Prob6h),
		Prob12h:            clamp01(*reply.Prob12h),
		Prob24h:            clamp01(*reply.Prob24h),
		PeakTime:           reply.PeakTime,
		ExcessVolumeLiters: reply.ExcessVolumeLiters,
		Recommendations:    reply.Recommendations,
		RiskLabel:          reply.RiskLevel,
		EstimatedAt:        time.Now().UTC(),
	}
}

// degradedRisk is the deterministic fallback estimate: probabilities
// proportional to the current alert level, flagged Degraded.
func degradedRisk(level AlertLevel) RiskEstimate {
	var p float64
	switch level {
	case LevelCritical, LevelEmergency:
		p = 1.0
	case LevelWarning:
		p = 0.5
	default:
		p = 0.0
	}
	return RiskEstimate{
		Prob6h:      p,
		Prob12h:     p,
		Prob24h:     p,
		RiskLabel:   level.String(),
		Degraded:    true,
		EstimatedAt: time.Now().UTC(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildPredictionPrompt summarizes the reading and forecast for the backend.
func buildPredictionPrompt(analysis AlertAnalysis, forecast ForecastData) string {
	forecastJSON, _ := json.MarshalIndent(forecast, "", "  ")
	staleNote := ""
	if forecast.Stale {
		staleNote = "\nNOTE: The weather forecast is STALE (provider unavailable); treat rainfall as unknown."
	}
	return fmt.Sprintf(`As a water management AI, analyze this data and predict overflow risk:

Current Status:
- Water Level: %.1f%%
- Flow Rate: %.1f L/min
- Location: %s
- Alert Level: %s

Weather Forecast:
%s%s

Provide:
1. Overflow probability in next 6h, 12h, 24h
2. Expected peak time
3. Estimated excess water volume
4. Recommended preemptive actions
5. Risk level assessment

Respond as JSON with fields: overflow_probability_6h, overflow_probability_12h,
overflow_probability_24h, peak_time, excess_volume_liters, recommendations, risk_level`,
		analysis.WaterLevel,
		analysis.FlowRate,
		analysis.Location,
		analysis.LevelName,
		string(forecastJSON),
		staleNote)
}
