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
	"sync"
	"time"

	"github.com/AleutianAI/HydroGuard/services/telemetry"
)

// CommandReceipt is the actuator gateway's acknowledgment of one command.
type CommandReceipt struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ActuatorGateway is the external valve/IoT collaborator.
// Implementations must tolerate repeated identical commands.
type ActuatorGateway interface {
	SendCommand(ctx context.Context, valveID string, action ActionKind, percentage int) (CommandReceipt, error)
}

// commandKey identifies a command for idempotence comparison.
type commandKey struct {
	Kind        ActionKind
	Percentage  int
	Destination string
}

// valveState is the per-valve serialization point and last-command cache.
// Its mutex is held for the full duration of an outward command so two
// concurrent runs targeting the same valve issue one full command then the
// next, never interleaved.
type valveState struct {
	mu        sync.Mutex
	lastRunID string
	lastCmd   commandKey
	hasLast   bool
}

// Executor converts validated actions into idempotent commands against the
// actuator gateway.
//
// The executor is the only pipeline component with mutable state shared
// across runs: the per-valve cache exists so identical repeats within a run
// are skipped, and so commands to one valve from concurrent runs serialize.
// Safe for concurrent use.
type Executor struct {
	gateway ActuatorGateway
	log     *slog.Logger

	mu     sync.Mutex // guards valves map creation only
	valves map[string]*valveState
}

// NewExecutor wires the actuator gateway. logger may be nil.
func NewExecutor(gateway ActuatorGateway, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		gateway: gateway,
		log:     logger,
		valves:  make(map[string]*valveState),
	}
}

// Execute issues each action to the gateway and reports per-valve outcomes.
//
// An identical (kind, percentage, destination) repeat of the last command
// issued to a valve within the same run is recorded as a skipped success
// without an outward call. Gateway failures are reported per valve; a stuck
// valve never blocks commands to other valves. When at least one command
// failed, the returned error is an *ActuationPartialFailure carrying the
// full result list.
func (e *Executor) Execute(ctx context.Context, runID string, actions []RedirectionAction) ([]ActuationResult, error) {
	results := make([]ActuationResult, 0, len(actions))
	failed := false

	for _, action := range actions {
		result := e.executeOne(ctx, runID, action)
		if result.Failed() {
			failed = true
		}
		results = append(results, result)
	}

	if failed {
		return results, &ActuationPartialFailure{Results: results}
	}
	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, runID string, action RedirectionAction) ActuationResult {
	vs := e.valve(action.ValveID)
	vs.mu.Lock()
	defer vs.mu.Unlock()

	key := commandKey{
		Kind:        action.Kind,
		Percentage:  action.Percentage,
		Destination: action.DestinationID,
	}

	if vs.hasLast && vs.lastRunID == runID && vs.lastCmd == key {
		e.log.Debug("skipping duplicate valve command",
			"run_id", runID,
			"valve_id", action.ValveID,
			"action", action.Kind)
		telemetry.RecordValveCommand("skipped")
		return ActuationResult{
			ValveID:  action.ValveID,
			Kind:     action.Kind,
			Status:   "success",
			Skipped:  true,
			IssuedAt: time.Now().UTC(),
		}
	}

	receipt, err := e.gateway.SendCommand(ctx, action.ValveID, action.Kind, action.Percentage)
	issuedAt := time.Now().UTC()
	if err != nil {
		telemetry.RecordValveCommand("error")
		e.log.Error("valve command failed",
			"run_id", runID,
			"valve_id", action.ValveID,
			"action", action.Kind,
			"error", err)
		return ActuationResult{
			ValveID:  action.ValveID,
			Kind:     action.Kind,
			Status:   "error",
			Err:      err.Error(),
			IssuedAt: issuedAt,
		}
	}

	vs.lastRunID = runID
	vs.lastCmd = key
	vs.hasLast = true
	telemetry.RecordValveCommand("success")

	e.log.Info("valve command applied",
		"run_id", runID,
		"valve_id", action.ValveID,
		"action", action.Kind,
		"percentage", action.Percentage,
		"destination", action.DestinationID)

	return ActuationResult{
		ValveID:  action.ValveID,
		Kind:     action.Kind,
		Status:   receipt.Status,
		IssuedAt: issuedAt,
	}
}

// valve returns (creating if needed) the shared state for a valve id.
func (e *Executor) valve(id string) *valveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	vs, ok := e.valves[id]
	if !ok {
		vs = &valveState{}
		e.valves[id] = vs
	}
	return vs
}
