// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the alert-processing workflow for water-storage
// sensor events.
//
// A single sensor reading flows through a fixed sequence of stages:
//
//	SensorReading → Classify → Forecast → Predict → Plan → Actuate → Notify → Record
//
// Each stage owns the data it produces until it hands it to the next stage.
// The only mutable state shared between runs is the Executor's per-valve
// last-command cache, which exists for idempotence and command serialization.
//
// The prediction and planning stages consume a generative reasoning backend
// through services/reasoning. Every value coming back from that backend is
// treated as untrusted and re-validated here before it can reach a valve.
package pipeline

import (
	"time"
)

// =============================================================================
// Alert Levels
// =============================================================================

// AlertLevel is the severity classification of a sensor reading.
//
// Levels are totally ordered: Normal < Warning < Critical < Emergency.
// A level is derived from water-level thresholds only and never decreases
// within a single workflow run.
type AlertLevel int

const (
	// LevelNormal means the reading needs no action.
	LevelNormal AlertLevel = iota

	// LevelWarning means the water level crossed the attention threshold (85%).
	LevelWarning

	// LevelCritical means overflow is likely without intervention (>95%).
	LevelCritical

	// LevelEmergency means the tank is at or beyond capacity (100%).
	LevelEmergency
)

// String returns the lowercase level name used in records and prompts.
func (l AlertLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ParseAlertLevel converts a stored level name back to an AlertLevel.
// Unknown names map to LevelNormal.
func ParseAlertLevel(s string) AlertLevel {
	switch s {
	case "warning":
		return LevelWarning
	case "critical":
		return LevelCritical
	case "emergency":
		return LevelEmergency
	default:
		return LevelNormal
	}
}

// =============================================================================
// Sensor Input
// =============================================================================

// SensorReading is one measurement from a water-storage sensor.
//
// Readings are immutable once created and are consumed by exactly one
// workflow run. WaterLevel is a percentage of tank capacity; FlowRate is
// inflow in liters per minute. Temperature and PH are optional and carried
// for the record only; they play no part in classification.
type SensorReading struct {
	SensorID    string    `json:"sensor_id" validate:"required"`
	Location    string    `json:"location" validate:"required"`
	WaterLevel  float64   `json:"water_level" validate:"min=0,max=100"`
	FlowRate    float64   `json:"flow_rate" validate:"min=0"`
	Temperature *float64  `json:"temperature,omitempty"`
	PH          *float64  `json:"ph_level,omitempty"`
	CapturedAt  time.Time `json:"timestamp"`
}

// AlertAnalysis is the classified view of a reading, produced by the
// classifier and fed into the prediction and planning prompts.
type AlertAnalysis struct {
	SensorID       string     `json:"sensor_id"`
	Location       string     `json:"location"`
	Level          AlertLevel `json:"-"`
	LevelName      string     `json:"alert_level"`
	WaterLevel     float64    `json:"water_level"`
	FlowRate       float64    `json:"flow_rate"`
	RequiresAction bool       `json:"requires_action"`
	Timestamp      time.Time  `json:"timestamp"`
}

// =============================================================================
// Forecast
// =============================================================================

// ForecastData is a read-only weather snapshot fetched once per run.
//
// HourlyRainfallMM holds the expected rainfall per hour, in order. Stale is
// set when the forecast collaborator was unavailable and the zero-rainfall
// fallback was substituted; downstream stages surface it in prompts so the
// reasoning backend knows the forecast cannot be trusted.
type ForecastData struct {
	Location         string    `json:"location"`
	HourlyRainfallMM []float64 `json:"rainfall_forecast_mm"`
	TemperatureC     float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	Stale            bool      `json:"stale,omitempty"`
}

// TotalRainfallMM sums the hourly forecast.
func (f ForecastData) TotalRainfallMM() float64 {
	var total float64
	for _, mm := range f.HourlyRainfallMM {
		total += mm
	}
	return total
}

// =============================================================================
// Risk Estimate
// =============================================================================

// RiskEstimate is the overflow risk produced by the prediction stage.
//
// Probabilities are in [0,1]. Degraded is set when the reasoning backend
// failed and the conservative level-proportional default was substituted;
// a degraded estimate still feeds the planner so actionable alerts are never
// starved of a risk signal.
type RiskEstimate struct {
	Prob6h             float64   `json:"overflow_probability_6h"`
	Prob12h            float64   `json:"overflow_probability_12h"`
	Prob24h            float64   `json:"overflow_probability_24h"`
	PeakTime           string    `json:"peak_time,omitempty"`
	ExcessVolumeLiters float64   `json:"excess_volume_liters"`
	Recommendations    []string  `json:"recommendations,omitempty"`
	RiskLabel          string    `json:"risk_level"`
	Degraded           bool      `json:"degraded,omitempty"`
	EstimatedAt        time.Time `json:"estimated_at"`
}

// =============================================================================
// Destinations
// =============================================================================

// DestinationCategory ranks where redirected water may go.
//
// Lower rank means higher priority. The ordering is a hard safety invariant:
// drinking water storage is always preferred over agriculture, and discharge
// to a river or drain is the last resort. The reasoning backend is told this
// ranking but is never trusted to honor it; the planner re-sorts.
type DestinationCategory int

const (
	CategoryDrinking DestinationCategory = iota
	CategoryAgriculture
	CategoryIndustrial
	CategoryRecharge
	CategoryDischarge
)

// String returns the category name used in config files and prompts.
func (c DestinationCategory) String() string {
	switch c {
	case CategoryDrinking:
		return "drinking_water"
	case CategoryAgriculture:
		return "agriculture"
	case CategoryIndustrial:
		return "industrial"
	case CategoryRecharge:
		return "groundwater_recharge"
	case CategoryDischarge:
		return "discharge"
	default:
		return "unknown"
	}
}

// ParseDestinationCategory maps a config/category name to its rank.
// Unknown names map to CategoryDischarge so a typo can never promote a
// destination above known ones.
func ParseDestinationCategory(s string) DestinationCategory {
	switch s {
	case "drinking_water", "drinking":
		return CategoryDrinking
	case "agriculture", "agricultural":
		return CategoryAgriculture
	case "industrial":
		return CategoryIndustrial
	case "groundwater_recharge", "groundwater", "recharge":
		return CategoryRecharge
	default:
		return CategoryDischarge
	}
}

// Destination is somewhere excess water can be routed.
type Destination struct {
	ID                string              `json:"id" validate:"required"`
	Category          DestinationCategory `json:"-"`
	CategoryName      string              `json:"type"`
	CapacityRemaining float64             `json:"capacity_remaining" validate:"min=0"`
}

// =============================================================================
// Actions and Results
// =============================================================================

// ActionKind is the closed set of valve commands.
type ActionKind string

const (
	ActionOpen    ActionKind = "open"
	ActionClose   ActionKind = "close"
	ActionPartial ActionKind = "partial"
)

// ValidActionKind reports whether s names a known action.
func ValidActionKind(s string) bool {
	switch ActionKind(s) {
	case ActionOpen, ActionClose, ActionPartial:
		return true
	}
	return false
}

// RedirectionAction is one validated valve command within a plan.
//
// Invariants enforced by the planner before actions reach the executor:
// Percentage ∈ [0,100]; close ⇒ 0, open ⇒ 100; exactly one action per valve
// within a plan; open/partial actions reference a known destination.
type RedirectionAction struct {
	ValveID       string     `json:"valve_id"`
	Kind          ActionKind `json:"action"`
	Percentage    int        `json:"percentage"`
	DestinationID string     `json:"destination"`
	Priority      int        `json:"priority"`
	Reason        string     `json:"reason"`
}

// ActuationResult is the per-valve outcome of issuing one action.
type ActuationResult struct {
	ValveID  string    `json:"valve_id"`
	Kind     ActionKind `json:"action"`
	Status   string    `json:"status"`
	Skipped  bool      `json:"skipped,omitempty"`
	Err      string    `json:"error,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// Failed reports whether the command did not reach the gateway successfully.
func (r ActuationResult) Failed() bool {
	return r.Err != ""
}

// =============================================================================
// Workflow Outcome
// =============================================================================

// Outcome is the terminal status of a workflow run.
type Outcome string

const (
	// OutcomeCompleted means the run reached Done with all commands applied.
	OutcomeCompleted Outcome = "completed"

	// OutcomeNoAction means the alert level was Normal and the run
	// short-circuited with an empty action list.
	OutcomeNoAction Outcome = "no_action"

	// OutcomePartial means one or more valve commands failed while others
	// succeeded; the run still completed.
	OutcomePartial Outcome = "partial_failure"

	// OutcomeFailed means the run hit an unrecoverable error.
	OutcomeFailed Outcome = "failed"
)

// WorkflowResult is the immutable report assembled when a run terminates.
// It is handed to the persistence and notification collaborators exactly once.
type WorkflowResult struct {
	RunID       string            `json:"run_id"`
	Reading     SensorReading     `json:"reading"`
	Analysis    AlertAnalysis     `json:"analysis"`
	Forecast    ForecastData      `json:"forecast"`
	Risk        RiskEstimate      `json:"risk"`
	Actions     []RedirectionAction `json:"actions_taken"`
	Results     []ActuationResult `json:"actuation_results"`
	Outcome     Outcome           `json:"outcome"`
	Error       string            `json:"error,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}
