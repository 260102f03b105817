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
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/AleutianAI/HydroGuard/pkg/validation"
	"github.com/AleutianAI/HydroGuard/services/reasoning"
	"github.com/AleutianAI/HydroGuard/services/telemetry"
)

// fallbackReason marks the single deterministic action used when the
// reasoning backend is unavailable.
const fallbackReason = "fallback: reasoning unavailable"

// actionReply is one action as the backend describes it. Percentage is a
// float because backends routinely emit 100.0 where an int is asked for.
type actionReply struct {
	ValveID     string  `json:"valve_id" validate:"required"`
	Action      string  `json:"action" validate:"required,oneof=open close partial"`
	Percentage  float64 `json:"percentage"`
	Destination string  `json:"destination"`
	Priority    int     `json:"priority"`
	Reason      string  `json:"reason"`
}

// planReply tolerates both reply shapes seen in the wild: a bare JSON array
// of actions, or an object wrapping them under "actions".
type planReply struct {
	Actions []actionReply `validate:"required,min=1,dive"`
}

func (p *planReply) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &p.Actions)
	}
	var wrapped struct {
		Actions []actionReply `json:"actions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	p.Actions = wrapped.Actions
	return nil
}

// Planner asks the reasoning backend for an ordered list of valve actions
// and post-validates everything it returns. Only invoked when the alert
// level is above Normal.
type Planner struct {
	gateway *reasoning.Gateway
	log     *slog.Logger
}

// NewPlanner wires the gateway. logger may be nil.
func NewPlanner(gateway *reasoning.Gateway, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{gateway: gateway, log: logger}
}

// Plan computes the redirection actions for an actionable alert.
//
// The destination category ranking (drinking > agriculture > industrial >
// recharge > discharge) is a hard safety invariant: it is stated in the
// prompt but enforced here regardless of what the backend answers. If the
// backend fails entirely, Plan falls back to a single deterministic action
// routing to the highest-priority destination with positive capacity, so a
// Critical or Emergency alert never ends with zero actions while any
// destination can still take water.
func (p *Planner) Plan(ctx context.Context, analysis AlertAnalysis, risk RiskEstimate, destinations []Destination) []RedirectionAction {
	ranked := rankDestinations(destinations)
	prompt := buildPlanningPrompt(analysis, risk, ranked)

	reply, err := reasoning.Invoke[planReply](ctx, p.gateway, prompt)
	if err != nil {
		telemetry.RecordReasoningFailure("planning")
		p.log.Warn("planner falling back to deterministic rule",
			"sensor_id", analysis.SensorID,
			"alert_level", analysis.LevelName,
			"error", err)
		return p.fallbackPlan(analysis, ranked)
	}

	actions := p.sanitize(reply.Actions, ranked)
	if len(actions) == 0 {
		// Backend answered but every action was discarded in post-validation.
		p.log.Warn("all planned actions rejected by post-validation, using fallback",
			"sensor_id", analysis.SensorID,
			"raw_actions", len(reply.Actions))
		return p.fallbackPlan(analysis, ranked)
	}
	return actions
}

// sanitize applies the safety post-validation that is enforced regardless of
// backend output:
//
//   - actions referencing an unknown destination are discarded (close needs
//     no destination; it stops flow rather than routing it)
//   - percentage is clamped to [0,100] and coerced to 0 for close, 100 for open
//   - duplicate valve entries keep the one with the lower priority number
//   - the final list is sorted by priority ascending
func (p *Planner) sanitize(replies []actionReply, destinations []Destination) []RedirectionAction {
	known := make(map[string]bool, len(destinations))
	for _, d := range destinations {
		known[d.ID] = true
	}

	byValve := make(map[string]RedirectionAction)
	var order []string
	for _, a := range replies {
		valveID, err := validation.SanitizeIdent(a.ValveID)
		if err != nil {
			p.log.Warn("dropping action with invalid valve id", "valve_id", a.ValveID)
			continue
		}
		if !ValidActionKind(a.Action) {
			p.log.Warn("dropping action with unknown kind", "valve_id", valveID, "action", a.Action)
			continue
		}
		kind := ActionKind(a.Action)

		dest := strings.TrimSpace(a.Destination)
		if kind != ActionClose && !known[dest] {
			p.log.Warn("dropping action referencing unknown destination",
				"valve_id", valveID, "destination", a.Destination)
			continue
		}
		if kind == ActionClose {
			dest = ""
		}

		pct := clampPercentage(a.Percentage)
		switch kind {
		case ActionClose:
			pct = 0
		case ActionOpen:
			pct = 100
		}

		priority := a.Priority
		if priority <= 0 {
			priority = len(destinations) + 1
		}

		action := RedirectionAction{
			ValveID:       valveID,
			Kind:          kind,
			Percentage:    pct,
			DestinationID: dest,
			Priority:      priority,
			Reason:        strings.TrimSpace(a.Reason),
		}

		existing, seen := byValve[valveID]
		if !seen {
			byValve[valveID] = action
			order = append(order, valveID)
			continue
		}
		if action.Priority < existing.Priority {
			byValve[valveID] = action
		}
	}

	actions := make([]RedirectionAction, 0, len(byValve))
	for _, id := range order {
		actions = append(actions, byValve[id])
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority < actions[j].Priority
	})
	return actions
}

// fallbackPlan routes everything to the highest-priority destination that
// still has capacity, fully open. Returns nil only when no destination has
// positive remaining capacity.
func (p *Planner) fallbackPlan(analysis AlertAnalysis, ranked []Destination) []RedirectionAction {
	for _, d := range ranked {
		if d.CapacityRemaining > 0 {
			return []RedirectionAction{{
				ValveID:       fallbackValveID(analysis.SensorID),
				Kind:          ActionOpen,
				Percentage:    100,
				DestinationID: d.ID,
				Priority:      1,
				Reason:        fallbackReason,
			}}
		}
	}
	p.log.Error("no destination with remaining capacity, cannot build fallback plan",
		"sensor_id", analysis.SensorID)
	return nil
}

// fallbackValveID names the sensor's overflow relief valve. Site convention
// pairs every monitored tank with a relief valve sharing its identifier.
func fallbackValveID(sensorID string) string {
	return "relief_" + sensorID
}

// rankDestinations sorts by the fixed category priority, then by remaining
// capacity descending so fuller options come first within a category.
func rankDestinations(destinations []Destination) []Destination {
	ranked := make([]Destination, len(destinations))
	copy(ranked, destinations)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Category != ranked[j].Category {
			return ranked[i].Category < ranked[j].Category
		}
		return ranked[i].CapacityRemaining > ranked[j].CapacityRemaining
	})
	return ranked
}

func clampPercentage(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

// buildPlanningPrompt encodes the situation and the destination inventory,
// ranked by the fixed category priority.
func buildPlanningPrompt(analysis AlertAnalysis, risk RiskEstimate, ranked []Destination) string {
	analysisJSON, _ := json.MarshalIndent(analysis, "", "  ")
	riskJSON, _ := json.MarshalIndent(risk, "", "  ")

	var inventory strings.Builder
	for i, d := range ranked {
		fmt.Fprintf(&inventory, "%d. %s (%s) — capacity remaining: %.0f liters\n",
			i+1, d.ID, d.Category, d.CapacityRemaining)
	}

	return fmt.Sprintf(`You are controlling a water management system. Calculate optimal valve settings:

Current Situation:
%s

Predictions:
%s

Available Destinations (already ranked highest priority first — this ranking is fixed):
%s
Priorities (highest to lowest): drinking water storage, agricultural reservoirs,
industrial use tanks, groundwater recharge pits, river/drain discharge (last resort).

Calculate:
1. Which valves to open/close
2. Flow percentage for each valve
3. Priority order of destinations

Respond as a JSON array of actions, each with: valve_id, action (open|close|partial),
percentage (0-100), destination, priority (1 = most urgent), reason`,
		string(analysisJSON),
		string(riskJSON),
		inventory.String())
}
