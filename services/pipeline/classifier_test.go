package pipeline

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		level float64
		want  AlertLevel
	}{
		{"empty tank", 0, LevelNormal},
		{"mid range", 50, LevelNormal},
		{"just below warning", 84.9, LevelNormal},
		{"warning boundary", 85, LevelWarning},
		{"high warning", 92.5, LevelWarning},
		{"critical boundary is still warning", 95, LevelWarning},
		{"just above critical boundary", 95.1, LevelCritical},
		{"critical", 99.9, LevelCritical},
		{"at capacity", 100, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := SensorReading{WaterLevel: tt.level}
			if got := Classify(reading); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestRequiresAction(t *testing.T) {
	tests := []struct {
		level AlertLevel
		want  bool
	}{
		{LevelNormal, false},
		{LevelWarning, true},
		{LevelCritical, true},
		{LevelEmergency, true},
	}

	for _, tt := range tests {
		if got := RequiresAction(tt.level); got != tt.want {
			t.Errorf("RequiresAction(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestBuildAnalysis(t *testing.T) {
	captured := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	reading := SensorReading{
		SensorID:   "tank_42",
		Location:   "north_district",
		WaterLevel: 92.5,
		FlowRate:   450,
		CapturedAt: captured,
	}

	analysis := BuildAnalysis(reading)

	if analysis.Level != LevelWarning {
		t.Errorf("Level = %v, want %v", analysis.Level, LevelWarning)
	}
	if analysis.LevelName != "warning" {
		t.Errorf("LevelName = %q, want %q", analysis.LevelName, "warning")
	}
	if !analysis.RequiresAction {
		t.Error("RequiresAction = false, want true")
	}
	if analysis.SensorID != "tank_42" || analysis.Location != "north_district" {
		t.Errorf("identity fields not carried: %+v", analysis)
	}
	if !analysis.Timestamp.Equal(captured) {
		t.Errorf("Timestamp = %v, want %v", analysis.Timestamp, captured)
	}
}

func TestAlertLevelRoundTrip(t *testing.T) {
	for _, level := range []AlertLevel{LevelNormal, LevelWarning, LevelCritical, LevelEmergency} {
		if got := ParseAlertLevel(level.String()); got != level {
			t.Errorf("ParseAlertLevel(%q) = %v, want %v", level.String(), got, level)
		}
	}
	if got := ParseAlertLevel("bogus"); got != LevelNormal {
		t.Errorf("ParseAlertLevel(bogus) = %v, want LevelNormal", got)
	}
}
