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
	"log/slog"
)

// ForecastProvider is the external weather collaborator.
type ForecastProvider interface {
	GetForecast(ctx context.Context, location string) (ForecastData, error)
}

// ForecastStage wraps the forecast collaborator. It holds no decision logic.
type ForecastStage struct {
	provider ForecastProvider
	log      *slog.Logger
}

// NewForecastStage wires the collaborator. logger may be nil.
func NewForecastStage(provider ForecastProvider, logger *slog.Logger) *ForecastStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastStage{provider: provider, log: logger}
}

// Fetch returns the forecast for location.
//
// A collaborator failure degrades to a zero-rainfall snapshot flagged Stale
// instead of failing the run: rainfall absence must never block a
// water-level emergency response.
func (s *ForecastStage) Fetch(ctx context.Context, location string) ForecastData {
	forecast, err := s.provider.GetForecast(ctx, location)
	if err != nil {
		s.log.Warn("forecast collaborator unavailable, degrading to stale zero-rainfall data",
			"location", location,
			"error", err)
		return ForecastData{
			Location:         location,
			HourlyRainfallMM: []float64{},
			Stale:            true,
		}
	}
	forecast.Location = location
	return forecast
}
