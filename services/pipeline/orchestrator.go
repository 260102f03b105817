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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/HydroGuard/pkg/validation"
	"github.com/AleutianAI/HydroGuard/services/telemetry"
)

var orchestratorTracer = otel.Tracer("hydroguard.pipeline.orchestrator")

// =============================================================================
// Workflow States
// =============================================================================

// State names a position in the workflow state machine.
//
// Transitions are single-direction; the machine never revisits a prior
// state. StateFailed is reachable from any state on an unrecoverable error.
//
//	Classified → ForecastFetched → Predicted → Planned → Actuated → Notified → Recorded → Done
//	Classified ─────────────────────────────(level Normal)──────────────────────────────→ Done
type State int

const (
	StateClassified State = iota
	StateForecastFetched
	StatePredicted
	StatePlanned
	StateActuated
	StateNotified
	StateRecorded
	StateDone
	StateFailed
)

// String returns the state name used in logs and traces.
func (s State) String() string {
	switch s {
	case StateClassified:
		return "classified"
	case StateForecastFetched:
		return "forecast_fetched"
	case StatePredicted:
		return "predicted"
	case StatePlanned:
		return "planned"
	case StateActuated:
		return "actuated"
	case StateNotified:
		return "notified"
	case StateRecorded:
		return "recorded"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the machine has stopped.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// =============================================================================
// Collaborator Ports
// =============================================================================

// NotificationPriority orders alert messages for the notification channel.
type NotificationPriority string

const (
	PriorityNormal   NotificationPriority = "normal"
	PriorityHigh     NotificationPriority = "high"
	PriorityCritical NotificationPriority = "critical"
)

// Notifier is the external SMS/voice notification channel. Failures are
// fire-and-log; they never fail the workflow.
type Notifier interface {
	Send(ctx context.Context, recipients []string, message string, priority NotificationPriority) error
}

// Recorder persists the final workflow result and its constituent records.
type Recorder interface {
	RecordResult(ctx context.Context, result *WorkflowResult) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config carries the orchestrator's static inputs.
type Config struct {
	// Destinations is the redirection inventory, from configuration.
	Destinations []Destination

	// Recipients receive workflow notifications.
	// Default: water_dept, field_ops.
	Recipients []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Orchestrator sequences the workflow stages for one sensor event at a time.
//
// Every dependency is injected so tests can substitute fakes per
// collaborator. One Orchestrator serves many concurrent runs; stages within
// a run execute strictly sequentially, and a run may be cancelled between
// stages but never mid-stage once a side-effecting call has been issued.
type Orchestrator struct {
	forecast   *ForecastStage
	prediction *PredictionStage
	planner    *Planner
	executor   *Executor
	notifier   Notifier
	recorder   Recorder

	destinations []Destination
	recipients   []string
	validate     *validator.Validate
	log          *slog.Logger
}

// NewOrchestrator wires all stages and collaborators.
func NewOrchestrator(
	forecast *ForecastStage,
	prediction *PredictionStage,
	planner *Planner,
	executor *Executor,
	notifier Notifier,
	recorder Recorder,
	cfg Config,
) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Recipients) == 0 {
		cfg.Recipients = []string{"water_dept", "field_ops"}
	}
	return &Orchestrator{
		forecast:     forecast,
		prediction:   prediction,
		planner:      planner,
		executor:     executor,
		notifier:     notifier,
		recorder:     recorder,
		destinations: cfg.Destinations,
		recipients:   cfg.Recipients,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          cfg.Logger,
	}
}

// run is the mutable per-run context threaded through the state machine.
type run struct {
	id      string
	state   State
	reading SensorReading

	analysis AlertAnalysis
	forecast ForecastData
	risk     RiskEstimate
	actions  []RedirectionAction
	results  []ActuationResult

	partial *ActuationPartialFailure
	result  *WorkflowResult
	log     *slog.Logger
}

// ProcessReading drives one sensor event through the whole workflow.
//
// The returned WorkflowResult is always non-nil and immutable. The error is
// non-nil only when the run terminated in StateFailed; degraded stages
// (stale forecast, fallback risk or plan, partial actuation) complete the
// run and are visible in the result instead.
func (o *Orchestrator) ProcessReading(ctx context.Context, reading SensorReading) (*WorkflowResult, error) {
	runID := uuid.NewString()

	ctx, span := orchestratorTracer.Start(ctx, "Orchestrator.ProcessReading")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("sensor.id", reading.SensorID),
	)

	r := &run{
		id:      runID,
		state:   StateClassified,
		reading: reading,
		log:     o.log.With("run_id", runID, "sensor_id", reading.SensorID),
	}

	if err := o.validateReading(reading); err != nil {
		// Fatal to this run only: recorded, no side effects issued.
		r.log.Error("sensor reading rejected", "error", err)
		o.finalize(r, OutcomeFailed, err)
		o.record(ctx, r)
		telemetry.RecordRun(string(OutcomeFailed))
		return r.result, err
	}

	for !r.state.Terminal() {
		// Runs are cancellable between stages, never mid-stage.
		if err := ctx.Err(); err != nil {
			r.log.Warn("run cancelled between stages", "state", r.state.String())
			o.finalize(r, OutcomeFailed, err)
			o.record(ctx, r)
			telemetry.RecordRun(string(OutcomeFailed))
			return r.result, err
		}

		start := time.Now()
		from := r.state
		o.advance(ctx, r)
		telemetry.ObserveStage(from.String(), time.Since(start))
		r.log.Debug("workflow transition", "from", from.String(), "to", r.state.String())
	}

	telemetry.RecordRun(string(r.result.Outcome))
	if r.state == StateFailed {
		return r.result, fmt.Errorf("workflow failed: %s", r.result.Error)
	}
	return r.result, nil
}

// advance performs exactly one forward transition.
func (o *Orchestrator) advance(ctx context.Context, r *run) {
	switch r.state {
	case StateClassified:
		r.analysis = BuildAnalysis(r.reading)
		r.log.Info("reading classified",
			"alert_level", r.analysis.LevelName,
			"water_level", r.analysis.WaterLevel,
			"requires_action", r.analysis.RequiresAction)
		if !r.analysis.RequiresAction {
			// Non-actionable readings skip straight to Done with an empty
			// action list: no forecast, prediction, or planning work.
			o.finalize(r, OutcomeNoAction, nil)
			o.record(ctx, r)
			r.state = StateDone
			return
		}
		r.state = StateForecastFetched
		r.forecast = o.forecast.Fetch(ctx, r.reading.Location)

	case StateForecastFetched:
		r.state = StatePredicted
		r.risk = o.prediction.Predict(ctx, r.analysis, r.forecast)
		r.log.Info("overflow risk estimated",
			"prob_6h", r.risk.Prob6h,
			"prob_24h", r.risk.Prob24h,
			"degraded", r.risk.Degraded)

	case StatePredicted:
		r.state = StatePlanned
		r.actions = o.planner.Plan(ctx, r.analysis, r.risk, o.destinations)
		r.log.Info("redirection plan ready", "actions", len(r.actions))

	case StatePlanned:
		r.state = StateActuated
		results, err := o.executor.Execute(ctx, r.id, r.actions)
		r.results = results
		var partial *ActuationPartialFailure
		if errors.As(err, &partial) {
			// Recorded per valve and escalated; the run still completes.
			r.partial = partial
			r.log.Warn("actuation partially failed", "failed_valves", partial.FailedValves())
		}

	case StateActuated:
		r.state = StateNotified
		o.notify(ctx, r)

	case StateNotified:
		r.state = StateRecorded
		if r.partial != nil {
			o.finalize(r, OutcomePartial, r.partial)
		} else {
			o.finalize(r, OutcomeCompleted, nil)
		}
		o.record(ctx, r)

	case StateRecorded:
		r.state = StateDone

	default:
		o.finalize(r, OutcomeFailed, fmt.Errorf("invalid state %s", r.state))
		r.state = StateFailed
	}
}

// finalize assembles the immutable WorkflowResult exactly once.
func (o *Orchestrator) finalize(r *run, outcome Outcome, err error) {
	if r.result != nil {
		return
	}
	result := &WorkflowResult{
		RunID:       r.id,
		Reading:     r.reading,
		Analysis:    r.analysis,
		Forecast:    r.forecast,
		Risk:        r.risk,
		Actions:     r.actions,
		Results:     r.results,
		Outcome:     outcome,
		CompletedAt: time.Now().UTC(),
	}
	if result.Actions == nil {
		result.Actions = []RedirectionAction{}
	}
	if err != nil {
		result.Error = err.Error()
	}
	r.result = result
	if outcome == OutcomeFailed {
		r.state = StateFailed
	}
}

// notify sends the workflow alert, plus an escalation when actuation
// partially failed. Notification failures are logged and never fail the run.
func (o *Orchestrator) notify(ctx context.Context, r *run) {
	message := alertMessage(r.analysis, len(r.actions))
	priority := PriorityNormal
	if r.analysis.Level >= LevelCritical {
		priority = PriorityHigh
	}
	if err := o.notifier.Send(ctx, o.recipients, message, priority); err != nil {
		r.log.Warn("notification failed", "error", err)
	}

	if r.partial != nil {
		escalation := fmt.Sprintf("ESCALATION: valve commands failed at %s for valves %v; manual intervention required.",
			r.analysis.Location, r.partial.FailedValves())
		if err := o.notifier.Send(ctx, o.recipients, escalation, PriorityCritical); err != nil {
			r.log.Warn("escalation notification failed", "error", err)
		}
	}
}

// record hands the result to the persistence collaborator. Persistence
// failure is logged; the result has already been assembled and the caller
// keeps it.
func (o *Orchestrator) record(ctx context.Context, r *run) {
	if err := o.recorder.RecordResult(ctx, r.result); err != nil {
		r.log.Error("failed to persist workflow result", "error", err)
	}
}

// validateReading rejects structurally invalid readings before any stage runs.
func (o *Orchestrator) validateReading(reading SensorReading) error {
	if err := validation.ValidateIdent(reading.SensorID); err != nil {
		return &ValidationError{Field: "sensor_id", Reason: err.Error()}
	}
	if err := o.validate.Struct(reading); err != nil {
		return &ValidationError{Field: "reading", Reason: err.Error()}
	}
	return nil
}

// alertMessage renders the operator-facing alert text.
func alertMessage(analysis AlertAnalysis, actionCount int) string {
	action := "Monitoring situation."
	if actionCount > 0 {
		action = fmt.Sprintf("%d redirection action(s) executed.", actionCount)
	}
	return fmt.Sprintf("Alert: Water level at %s is %.1f%% (%s). %s",
		analysis.Location, analysis.WaterLevel, analysis.LevelName, action)
}
