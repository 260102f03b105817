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

// Water-level thresholds, percent of tank capacity.
// Warning is inclusive; Critical is exclusive; Emergency is inclusive.
const (
	warningThreshold   = 85.0
	criticalThreshold  = 95.0
	emergencyThreshold = 100.0
)

// Classify maps a sensor reading to an alert level.
//
// Pure, total, deterministic; there is no error path. Tiers:
//
//	level >= 100 → Emergency
//	level >  95  → Critical
//	level >= 85  → Warning
//	otherwise    → Normal
func Classify(r SensorReading) AlertLevel {
	switch {
	case r.WaterLevel >= emergencyThreshold:
		return LevelEmergency
	case r.WaterLevel > criticalThreshold:
		return LevelCritical
	case r.WaterLevel >= warningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// RequiresAction reports whether a level is actionable. Only Normal
// short-circuits the workflow.
func RequiresAction(level AlertLevel) bool {
	return level > LevelNormal
}

// BuildAnalysis assembles the classified view of a reading that the
// prediction and planning prompts consume.
func BuildAnalysis(r SensorReading) AlertAnalysis {
	level := Classify(r)
	return AlertAnalysis{
		SensorID:       r.SensorID,
		Location:       r.Location,
		Level:          level,
		LevelName:      level.String(),
		WaterLevel:     r.WaterLevel,
		FlowRate:       r.FlowRate,
		RequiresAction: RequiresAction(level),
		Timestamp:      r.CapturedAt,
	}
}
