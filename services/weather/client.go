// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weather implements the forecast collaborator client.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// Client fetches hourly rainfall forecasts from the weather provider.
// It implements pipeline.ForecastProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// forecastResponse is the provider's wire format.
type forecastResponse struct {
	Location         string    `json:"location"`
	HourlyRainfallMM []float64 `json:"rainfall_forecast_mm"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
}

// NewClient builds a forecast client. apiKey may be empty for providers
// that don't require one.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("weather base URL not set")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing weather client", "base_url", baseURL)
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// GetForecast implements pipeline.ForecastProvider.
//
// Errors are wrapped as collaborator failures; the forecast stage decides
// whether to degrade or abort (it always degrades).
func (c *Client) GetForecast(ctx context.Context, location string) (pipeline.ForecastData, error) {
	q := url.Values{}
	q.Set("location", location)
	forecastURL := c.baseURL + "/v1/forecast?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", forecastURL, nil)
	if err != nil {
		return pipeline.ForecastData{}, pipeline.NewCollaboratorError("forecast", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("forecast request failed", "location", location, "error", err)
		return pipeline.ForecastData{}, pipeline.NewCollaboratorError("forecast", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.ForecastData{}, pipeline.NewCollaboratorError("forecast", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("forecast provider returned an error", "status_code", resp.StatusCode, "response", string(body))
		return pipeline.ForecastData{}, pipeline.NewCollaboratorError("forecast",
			fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	var wire forecastResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		slog.Error("failed to parse forecast response", "error", err)
		return pipeline.ForecastData{}, pipeline.NewCollaboratorError("forecast",
			fmt.Errorf("parse response: %w", err))
	}

	// Negative rainfall is a provider bug; zero it rather than propagate.
	rainfall := make([]float64, len(wire.HourlyRainfallMM))
	for i, mm := range wire.HourlyRainfallMM {
		if mm > 0 {
			rainfall[i] = mm
		}
	}

	return pipeline.ForecastData{
		Location:         location,
		HourlyRainfallMM: rainfall,
		TemperatureC:     wire.Temperature,
		Humidity:         wire.Humidity,
	}, nil
}

var _ pipeline.ForecastProvider = (*Client)(nil)
