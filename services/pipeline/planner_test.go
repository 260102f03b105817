package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HydroGuard/services/reasoning"
)

func testDestinations() []Destination {
	return []Destination{
		{ID: "river_outfall_1", Category: CategoryDischarge, CategoryName: "discharge", CapacityRemaining: 1000000},
		{ID: "agri_reservoir_2", Category: CategoryAgriculture, CategoryName: "agriculture", CapacityRemaining: 120000},
		{ID: "drinking_reserve_1", Category: CategoryDrinking, CategoryName: "drinking_water", CapacityRemaining: 50000},
		{ID: "recharge_pit_1", Category: CategoryRecharge, CategoryName: "groundwater_recharge", CapacityRemaining: 80000},
	}
}

func warningAnalysis() AlertAnalysis {
	return AlertAnalysis{
		SensorID:       "tank_42",
		Location:       "north_district",
		Level:          LevelWarning,
		LevelName:      "warning",
		WaterLevel:     92.5,
		FlowRate:       450,
		RequiresAction: true,
	}
}

func plannerWith(t *testing.T, client reasoning.Client) *Planner {
	t.Helper()
	return NewPlanner(reasoning.NewGateway(client, reasoning.Config{}), nil)
}

func TestPlanSanitizesBackendOutput(t *testing.T) {
	client := reasoning.NewStaticClient(`[
		{"valve_id": "v_ghost", "action": "open", "percentage": 100, "destination": "nonexistent_lake", "priority": 1, "reason": "bad destination"},
		{"valve_id": "v2", "action": "partial", "percentage": 150, "destination": "recharge_pit_1", "priority": 3, "reason": "overdriven"},
		{"valve_id": "v1", "action": "open", "percentage": 55, "destination": "agri_reservoir_2", "priority": 2, "reason": "main relief"},
		{"valve_id": "v1", "action": "partial", "percentage": 30, "destination": "recharge_pit_1", "priority": 5, "reason": "duplicate, worse priority"},
		{"valve_id": "v3", "action": "close", "percentage": 80, "destination": "", "priority": 1, "reason": "stop inflow"}
	]`)
	p := plannerWith(t, client)

	actions := p.Plan(context.Background(), warningAnalysis(), RiskEstimate{}, testDestinations())

	require.Len(t, actions, 3, "ghost destination dropped, duplicate collapsed")

	// Sorted by priority ascending.
	assert.Equal(t, "v3", actions[0].ValveID)
	assert.Equal(t, "v1", actions[1].ValveID)
	assert.Equal(t, "v2", actions[2].ValveID)

	// close coerced to 0 regardless of the stated percentage.
	assert.Equal(t, ActionClose, actions[0].Kind)
	assert.Equal(t, 0, actions[0].Percentage)

	// open coerced to 100 regardless of the stated percentage.
	assert.Equal(t, ActionOpen, actions[1].Kind)
	assert.Equal(t, 100, actions[1].Percentage)
	assert.Equal(t, "agri_reservoir_2", actions[1].DestinationID)

	// partial clamped into [0,100].
	assert.Equal(t, ActionPartial, actions[2].Kind)
	assert.Equal(t, 100, actions[2].Percentage)

	// One action per valve.
	seen := map[string]bool{}
	for _, a := range actions {
		assert.False(t, seen[a.ValveID], "valve %s appears twice", a.ValveID)
		seen[a.ValveID] = true
	}
}

func TestPlanAcceptsWrappedActions(t *testing.T) {
	client := reasoning.NewStaticClient(`{"actions": [
		{"valve_id": "v1", "action": "open", "percentage": 100, "destination": "drinking_reserve_1", "priority": 1, "reason": "ok"}
	]}`)
	p := plannerWith(t, client)

	actions := p.Plan(context.Background(), warningAnalysis(), RiskEstimate{}, testDestinations())
	require.Len(t, actions, 1)
	assert.Equal(t, "v1", actions[0].ValveID)
}

func TestPlanFallbackOnBackendFailure(t *testing.T) {
	client := reasoning.NewFailingClient(
		errors.New("connection refused"),
		errors.New("connection refused"),
	)
	p := plannerWith(t, client)

	actions := p.Plan(context.Background(), warningAnalysis(), RiskEstimate{}, testDestinations())

	require.Len(t, actions, 1)
	got := actions[0]
	assert.Equal(t, "relief_tank_42", got.ValveID)
	assert.Equal(t, ActionOpen, got.Kind)
	assert.Equal(t, 100, got.Percentage)
	// Highest-priority category with capacity: drinking water.
	assert.Equal(t, "drinking_reserve_1", got.DestinationID)
	assert.Equal(t, "fallback: reasoning unavailable", got.Reason)
}

func TestPlanFallbackSkipsFullDestinations(t *testing.T) {
	client := reasoning.NewFailingClient(
		errors.New("down"),
		errors.New("down"),
	)
	p := plannerWith(t, client)

	dests := []Destination{
		{ID: "drinking_reserve_1", Category: CategoryDrinking, CapacityRemaining: 0},
		{ID: "recharge_pit_1", Category: CategoryRecharge, CapacityRemaining: 500},
	}
	actions := p.Plan(context.Background(), warningAnalysis(), RiskEstimate{}, dests)

	require.Len(t, actions, 1)
	assert.Equal(t, "recharge_pit_1", actions[0].DestinationID)
}

func TestPlanNoCapacityAnywhereYieldsNoActions(t *testing.T) {
	client := reasoning.NewFailingClient(errors.New("down"), errors.New("down"))
	p := plannerWith(t, client)

	dests := []Destination{
		{ID: "drinking_reserve_1", Category: CategoryDrinking, CapacityRemaining: 0},
	}
	actions := p.Plan(context.Background(), warningAnalysis(), RiskEstimate{}, dests)
	assert.Empty(t, actions)
}

func TestPlanFallbackWhenEveryActionRejected(t *testing.T) {
	// The backend answers, but nothing survives post-validation; the
	// deterministic fallback must kick in rather than returning zero actions.
	client := reasoning.NewStaticClient(`[
		{"valve_id": "v1", "action": "open", "percentage": 100, "destination": "nowhere", "priority": 1, "reason": "x"},
		{"valve_id": "bad id!", "action": "open", "percentage": 100, "destination": "agri_reservoir_2", "priority": 1, "reason": "x"}
	]`)
	p := plannerWith(t, client)

	actions := p.Plan(context.Background(), warningAnalysis(), RiskEstimate{}, testDestinations())
	require.Len(t, actions, 1)
	assert.Equal(t, "relief_tank_42", actions[0].ValveID)
}

func TestRankDestinations(t *testing.T) {
	ranked := rankDestinations(testDestinations())
	ids := make([]string, len(ranked))
	for i, d := range ranked {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{
		"drinking_reserve_1",
		"agri_reservoir_2",
		"recharge_pit_1",
		"river_outfall_1",
	}, ids)
}
