// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// Config is the full configuration loaded from config.yaml.
type Config struct {
	Environment string `yaml:"environment"`

	Reasoning struct {
		// Backend selects the generative backend: ollama, openai, or static.
		Backend        string  `yaml:"backend" validate:"required,oneof=ollama openai static"`
		TimeoutSeconds int     `yaml:"timeout_seconds" validate:"min=0"`
		MaxTokens      int     `yaml:"max_tokens" validate:"min=0"`
		Temperature    float32 `yaml:"temperature" validate:"min=0,max=2"`
	} `yaml:"reasoning"`

	Weather struct {
		BaseURL        string `yaml:"base_url" validate:"required,url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=0"`
	} `yaml:"weather"`

	Actuator struct {
		BaseURL        string `yaml:"base_url" validate:"required,url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=0"`
	} `yaml:"actuator"`

	Notifications struct {
		BaseURL        string   `yaml:"base_url" validate:"required,url"`
		Channel        string   `yaml:"channel"`
		Recipients     []string `yaml:"recipients"`
		TimeoutSeconds int      `yaml:"timeout_seconds" validate:"min=0"`
	} `yaml:"notifications"`

	Store struct {
		Path     string `yaml:"path"`
		InMemory bool   `yaml:"in_memory"`
	} `yaml:"store"`

	Server struct {
		Port                int     `yaml:"port" validate:"min=0,max=65535"`
		Debug               bool    `yaml:"debug"`
		IngestRatePerSecond float64 `yaml:"ingest_rate_per_second" validate:"min=0"`
		IngestBurst         int     `yaml:"ingest_burst" validate:"min=0"`
		DrainTimeoutSeconds int     `yaml:"drain_timeout_seconds" validate:"min=0"`
		MaxConcurrentRuns   int     `yaml:"max_concurrent_runs" validate:"min=0"`
	} `yaml:"server"`

	// Destinations is the redirection inventory. At least one entry is
	// required for actionable alerts to produce a plan.
	Destinations []DestinationConfig `yaml:"destinations" validate:"required,min=1,dive"`
}

// DestinationConfig is one redirection target from config.yaml.
type DestinationConfig struct {
	ID                string  `yaml:"id" validate:"required"`
	Type              string  `yaml:"type" validate:"required"`
	CapacityRemaining float64 `yaml:"capacity_remaining" validate:"min=0"`
}

// LoadConfig reads and validates config.yaml from path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// PipelineDestinations converts the configured inventory to pipeline types.
func (c Config) PipelineDestinations() []pipeline.Destination {
	out := make([]pipeline.Destination, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		category := pipeline.ParseDestinationCategory(d.Type)
		out = append(out, pipeline.Destination{
			ID:                d.ID,
			Category:          category,
			CategoryName:      category.String(),
			CapacityRemaining: d.CapacityRemaining,
		})
	}
	return out
}

// duration converts a whole-second config value, falling back when unset.
func duration(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
