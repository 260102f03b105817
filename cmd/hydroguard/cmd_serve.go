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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/HydroGuard/services/monitor"
	"github.com/AleutianAI/HydroGuard/services/notify"
	"github.com/AleutianAI/HydroGuard/services/pipeline"
	"github.com/AleutianAI/HydroGuard/services/reasoning"
	"github.com/AleutianAI/HydroGuard/services/store"
	"github.com/AleutianAI/HydroGuard/services/telemetry"
	"github.com/AleutianAI/HydroGuard/services/valves"
	"github.com/AleutianAI/HydroGuard/services/weather"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion and dashboard API server",
	Long: `Starts the HydroGuard server.

The server ingests sensor readings over HTTP, processes each one through
the full alert workflow, and serves the dashboard query endpoints plus
Prometheus metrics.

Examples:
  hydroguard serve
  hydroguard serve --config production.yaml`,
	Run: runServeCommand,
}

func runServeCommand(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	if config.Server.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.DefaultConfig()
	if config.Environment != "" {
		telemetryCfg.Environment = config.Environment
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown incomplete", "error", err)
		}
	}()

	storeCfg := store.Config{
		Path:       config.Store.Path,
		InMemory:   config.Store.InMemory,
		SyncWrites: true,
	}
	if storeCfg.Path == "" && !storeCfg.InMemory {
		storeCfg.Path = "data/hydroguard"
	}
	st, err := store.Open(storeCfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	orchestrator, err := buildOrchestrator(st, logger)
	if err != nil {
		logger.Error("Failed to assemble workflow", "error", err)
		os.Exit(1)
	}

	runs := monitor.NewRunManager(orchestrator, config.Server.MaxConcurrentRuns, logger)
	handlers := monitor.NewHandlers(runs, st, logger)
	server := monitor.NewServer(monitor.ServerConfig{
		Port:                config.Server.Port,
		Debug:               config.Server.Debug,
		IngestRatePerSecond: config.Server.IngestRatePerSecond,
		IngestBurst:         config.Server.IngestBurst,
		DrainTimeout:        duration(config.Server.DrainTimeoutSeconds, 30*time.Second),
		Logger:              logger,
	}, handlers, runs)

	if err := server.Run(ctx); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("HydroGuard stopped")
}

// buildOrchestrator wires every stage and collaborator from configuration.
func buildOrchestrator(st store.Store, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	client, err := buildReasoningClient()
	if err != nil {
		return nil, fmt.Errorf("reasoning backend: %w", err)
	}
	gateway := reasoning.NewGateway(client, reasoning.Config{
		Timeout:     duration(config.Reasoning.TimeoutSeconds, 45*time.Second),
		MaxTokens:   config.Reasoning.MaxTokens,
		Temperature: config.Reasoning.Temperature,
		Logger:      logger,
	})

	forecastClient, err := weather.NewClient(
		config.Weather.BaseURL,
		config.Weather.APIKey,
		duration(config.Weather.TimeoutSeconds, 10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}

	actuator, err := valves.NewClient(
		config.Actuator.BaseURL,
		duration(config.Actuator.TimeoutSeconds, 15*time.Second))
	if err != nil {
		return nil, fmt.Errorf("actuator client: %w", err)
	}

	notifier, err := notify.NewClient(
		config.Notifications.BaseURL,
		config.Notifications.Channel,
		duration(config.Notifications.TimeoutSeconds, 10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("notification client: %w", err)
	}

	return pipeline.NewOrchestrator(
		pipeline.NewForecastStage(forecastClient, logger),
		pipeline.NewPredictionStage(gateway, logger),
		pipeline.NewPlanner(gateway, logger),
		pipeline.NewExecutor(actuator, logger),
		notifier,
		store.NewRecorder(st, logger),
		pipeline.Config{
			Destinations: config.PipelineDestinations(),
			Recipients:   config.Notifications.Recipients,
			Logger:       logger,
		},
	), nil
}

// buildReasoningClient selects the generative backend from configuration.
func buildReasoningClient() (reasoning.Client, error) {
	switch config.Reasoning.Backend {
	case "openai":
		return reasoning.NewOpenAIClient()
	case "ollama":
		return reasoning.NewOllamaClient()
	case "static":
		// Development backend: no canned replies, so every stage exercises
		// its deterministic fallback.
		return reasoning.NewStaticClient(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", config.Reasoning.Backend)
	}
}
