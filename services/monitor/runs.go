// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor exposes the ingestion and dashboard HTTP API.
package monitor

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// ErrDraining is returned when a reading arrives after shutdown began.
var ErrDraining = errors.New("run manager is draining")

// defaultMaxConcurrentRuns bounds simultaneous workflow runs. Each run can
// hold a reasoning backend call open for up to two attempts, so this also
// caps backend pressure.
const defaultMaxConcurrentRuns = 8

// RunManager executes workflow runs asynchronously with bounded concurrency.
//
// Ingestion hands a reading to Submit and returns immediately; the workflow
// runs on the manager's errgroup. Drain stops intake and waits for in-flight
// runs to finish, so shutdown never abandons a run mid-actuation.
type RunManager struct {
	orchestrator *pipeline.Orchestrator
	group        *errgroup.Group
	ctx          context.Context
	cancel       context.CancelFunc
	draining     chan struct{}
	log          *slog.Logger
}

// NewRunManager wires the orchestrator. maxConcurrent <= 0 selects the
// default. logger may be nil.
func NewRunManager(orchestrator *pipeline.Orchestrator, maxConcurrent int, logger *slog.Logger) *RunManager {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentRuns
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)
	return &RunManager{
		orchestrator: orchestrator,
		group:        group,
		ctx:          ctx,
		cancel:       cancel,
		draining:     make(chan struct{}),
		log:          logger,
	}
}

// Submit schedules one reading for processing. Blocks only while the
// concurrency limit is saturated. Returns ErrDraining after Drain started.
func (m *RunManager) Submit(reading pipeline.SensorReading) error {
	select {
	case <-m.draining:
		return ErrDraining
	default:
	}

	m.group.Go(func() error {
		result, err := m.orchestrator.ProcessReading(m.ctx, reading)
		if err != nil {
			m.log.Error("workflow run failed",
				"sensor_id", reading.SensorID,
				"error", err)
			// Run failures are recorded in the result; they must not tear
			// down the group and cancel sibling runs.
			return nil
		}
		m.log.Info("workflow run finished",
			"run_id", result.RunID,
			"sensor_id", reading.SensorID,
			"outcome", string(result.Outcome))
		return nil
	})
	return nil
}

// Drain stops accepting new readings and waits for in-flight runs.
// The context bounds the wait; on expiry remaining runs are cancelled.
func (m *RunManager) Drain(ctx context.Context) error {
	close(m.draining)

	done := make(chan error, 1)
	go func() { done <- m.group.Wait() }()

	select {
	case err := <-done:
		m.cancel()
		return err
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
