// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command hydroguard runs the water-storage alert processing service.
//
// HydroGuard ingests water-storage sensor readings, classifies them against
// overflow thresholds, consults a generative reasoning backend for risk
// prediction and redirection planning, actuates valves through the gateway
// collaborator, notifies operators, and records everything for the
// dashboard API.
//
// Usage:
//
//	hydroguard serve                 # start the ingestion and dashboard API
//	hydroguard serve --config my.yaml
//	hydroguard simulate              # run one canned overflow scenario offline
//
// Example requests once serving:
//
//	# Ingest a reading
//	curl -X POST http://localhost:8080/v1/readings \
//	  -H "Content-Type: application/json" \
//	  -d '{"sensor_id": "tank_42", "location": "north_district", "water_level": 92.5, "flow_rate": 450}'
//
//	# Dashboard queries
//	curl http://localhost:8080/v1/readings?window=1h
//	curl http://localhost:8080/v1/alerts/unresolved
//	curl http://localhost:8080/v1/valve-actions?window=6h
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	config     Config
)

var rootCmd = &cobra.Command{
	Use:   "hydroguard",
	Short: "Water-storage overflow alert processing service",
	Long: `HydroGuard processes water-storage sensor readings end to end:
classification, weather-aware overflow prediction, reasoning-backed
redirection planning, idempotent valve actuation, operator notification,
and persistent history for the dashboard API.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		config = cfg
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}
