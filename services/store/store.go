// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists sensor readings, valve actions, alerts, and
// workflow results in local embedded storage.
//
// The store is append-only for history records. The single mutation is
// resolving an alert, which flips its Resolved flag in place. Time-window
// queries scan a timestamp-ordered key range, so reads stay cheap even as
// history grows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("record not found")

// ReadingRecord is one persisted sensor measurement.
type ReadingRecord struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensor_id"`
	Location   string    `json:"location"`
	WaterLevel float64   `json:"water_level"`
	FlowRate   float64   `json:"flow_rate"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ValveActionRecord is one persisted actuation outcome.
type ValveActionRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	ValveID     string    `json:"valve_id"`
	Action      string    `json:"action"`
	Percentage  int       `json:"percentage"`
	Destination string    `json:"destination,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// AlertRecord is one persisted alert, resolvable by operators.
type AlertRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	SensorID   string    `json:"sensor_id"`
	Location   string    `json:"location"`
	Level      string    `json:"alert_level"`
	WaterLevel float64   `json:"water_level"`
	Message    string    `json:"message"`
	Resolved   bool      `json:"resolved"`
	RaisedAt   time.Time `json:"raised_at"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

// Store is the persistence port used by the workflow recorder and the
// monitoring API. All methods are safe for concurrent use.
type Store interface {
	AppendReading(ctx context.Context, rec ReadingRecord) error
	AppendValveAction(ctx context.Context, rec ValveActionRecord) error
	AppendAlert(ctx context.Context, rec AlertRecord) error
	AppendWorkflow(ctx context.Context, result *pipeline.WorkflowResult) error

	// ReadingsSince returns readings recorded at or after cutoff,
	// oldest first.
	ReadingsSince(ctx context.Context, cutoff time.Time) ([]ReadingRecord, error)

	// ValveActionsSince returns actions issued at or after cutoff,
	// oldest first.
	ValveActionsSince(ctx context.Context, cutoff time.Time) ([]ValveActionRecord, error)

	// UnresolvedAlerts returns all alerts not yet resolved, oldest first.
	UnresolvedAlerts(ctx context.Context) ([]AlertRecord, error)

	// ResolveAlert marks the alert resolved. Returns ErrNotFound for an
	// unknown id. Resolving an already-resolved alert is a no-op.
	ResolveAlert(ctx context.Context, alertID string) error

	Close() error
}
