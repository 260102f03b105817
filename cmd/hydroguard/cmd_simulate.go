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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
	"github.com/AleutianAI/HydroGuard/services/reasoning"
	"github.com/AleutianAI/HydroGuard/services/store"
)

var simulateWaterLevel float64

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one canned overflow scenario offline",
	Long: `Processes a single synthetic sensor reading through the full workflow
without contacting any external service. The reasoning backend, weather
provider, actuator gateway, and notification relay are all replaced with
local stand-ins; the result is printed as JSON.

Examples:
  hydroguard simulate
  hydroguard simulate --water-level 99.2`,
	Run: runSimulateCommand,
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateWaterLevel, "water-level", 92.5, "Water level percentage for the synthetic reading")
}

// Local stand-ins so the simulation never leaves the process.

type simForecast struct{}

func (simForecast) GetForecast(ctx context.Context, location string) (pipeline.ForecastData, error) {
	return pipeline.ForecastData{
		Location:         location,
		HourlyRainfallMM: []float64{2.5, 4.0, 6.5, 8.0, 5.5, 3.0},
		TemperatureC:     18.0,
		Humidity:         0.86,
	}, nil
}

type simActuator struct{}

func (simActuator) SendCommand(ctx context.Context, valveID string, action pipeline.ActionKind, percentage int) (pipeline.CommandReceipt, error) {
	return pipeline.CommandReceipt{Status: "success", Timestamp: time.Now().UTC()}, nil
}

type simNotifier struct{}

func (simNotifier) Send(ctx context.Context, recipients []string, message string, priority pipeline.NotificationPriority) error {
	fmt.Printf("[notification/%s] %s\n", priority, message)
	return nil
}

func runSimulateCommand(cmd *cobra.Command, args []string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client := reasoning.NewStaticClient(
		`{"overflow_probability_6h": 0.72, "overflow_probability_12h": 0.88,
		  "overflow_probability_24h": 0.95, "peak_time": "14:00",
		  "excess_volume_liters": 15000,
		  "recommendations": ["open relief valves", "notify field operations"],
		  "risk_level": "high"}`,
		`[{"valve_id": "valve_north_1", "action": "open", "percentage": 100,
		   "destination": "agri_reservoir_2", "priority": 1,
		   "reason": "route excess to agricultural storage"},
		  {"valve_id": "valve_north_2", "action": "partial", "percentage": 40,
		   "destination": "recharge_pit_1", "priority": 2,
		   "reason": "bleed remainder into recharge"}]`,
	)
	gateway := reasoning.NewGateway(client, reasoning.Config{Logger: logger})

	st, err := store.Open(store.InMemoryConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening in-memory store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewForecastStage(simForecast{}, logger),
		pipeline.NewPredictionStage(gateway, logger),
		pipeline.NewPlanner(gateway, logger),
		pipeline.NewExecutor(simActuator{}, logger),
		simNotifier{},
		store.NewRecorder(st, logger),
		pipeline.Config{
			Destinations: config.PipelineDestinations(),
			Recipients:   config.Notifications.Recipients,
			Logger:       logger,
		},
	)

	reading := pipeline.SensorReading{
		SensorID:   "tank_42",
		Location:   "north_district",
		WaterLevel: simulateWaterLevel,
		FlowRate:   450,
		CapturedAt: time.Now().UTC(),
	}

	result, err := orchestrator.ProcessReading(context.Background(), reading)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
