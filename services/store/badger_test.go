package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReadingsSinceWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := ReadingRecord{SensorID: "tank_1", Location: "north", WaterLevel: 50, RecordedAt: now.Add(-2 * time.Hour)}
	recent := ReadingRecord{SensorID: "tank_2", Location: "north", WaterLevel: 88, RecordedAt: now.Add(-10 * time.Minute)}
	newest := ReadingRecord{SensorID: "tank_3", Location: "south", WaterLevel: 91, RecordedAt: now.Add(-1 * time.Minute)}

	require.NoError(t, s.AppendReading(ctx, old))
	require.NoError(t, s.AppendReading(ctx, newest))
	require.NoError(t, s.AppendReading(ctx, recent))

	got, err := s.ReadingsSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2, "the two-hour-old reading is outside the window")

	// Oldest first regardless of insertion order.
	assert.Equal(t, "tank_2", got[0].SensorID)
	assert.Equal(t, "tank_3", got[1].SensorID)
}

func TestValveActionsSinceWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AppendValveAction(ctx, ValveActionRecord{
		ValveID: "v_old", Action: "open", Status: "success", IssuedAt: now.Add(-7 * time.Hour),
	}))
	require.NoError(t, s.AppendValveAction(ctx, ValveActionRecord{
		ValveID: "v_new", Action: "partial", Percentage: 40, Status: "success", IssuedAt: now.Add(-time.Hour),
	}))

	got, err := s.ValveActionsSince(ctx, now.Add(-6*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v_new", got[0].ValveID)
}

func TestUnresolvedAlertsAndResolve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := AlertRecord{ID: "alert-1", SensorID: "tank_1", Level: "warning", RaisedAt: now.Add(-time.Hour)}
	second := AlertRecord{ID: "alert-2", SensorID: "tank_2", Level: "critical", RaisedAt: now.Add(-time.Minute)}
	require.NoError(t, s.AppendAlert(ctx, first))
	require.NoError(t, s.AppendAlert(ctx, second))

	open, err := s.UnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "alert-1", open[0].ID, "oldest first")

	require.NoError(t, s.ResolveAlert(ctx, "alert-1"))

	open, err = s.UnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "alert-2", open[0].ID)

	// Resolving again is a no-op, not an error.
	require.NoError(t, s.ResolveAlert(ctx, "alert-1"))
}

func TestResolveUnknownAlert(t *testing.T) {
	s := openTestStore(t)
	err := s.ResolveAlert(context.Background(), "no-such-alert")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendWorkflowFansOut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	result := &pipeline.WorkflowResult{
		RunID: "run-1",
		Reading: pipeline.SensorReading{
			SensorID: "tank_42", Location: "north_district",
			WaterLevel: 96.5, FlowRate: 450, CapturedAt: now,
		},
		Analysis: pipeline.AlertAnalysis{
			SensorID: "tank_42", Location: "north_district",
			Level: pipeline.LevelCritical, LevelName: "critical", WaterLevel: 96.5,
		},
		Actions: []pipeline.RedirectionAction{
			{ValveID: "v1", Kind: pipeline.ActionOpen, Percentage: 100, DestinationID: "agri_reservoir_2", Priority: 1},
		},
		Results: []pipeline.ActuationResult{
			{ValveID: "v1", Kind: pipeline.ActionOpen, Status: "success", IssuedAt: now},
		},
		Outcome:     pipeline.OutcomeCompleted,
		CompletedAt: now,
	}

	require.NoError(t, s.AppendWorkflow(ctx, result))

	readings, err := s.ReadingsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "tank_42", readings[0].SensorID)

	actions, err := s.ValveActionsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "run-1", actions[0].RunID)
	assert.Equal(t, "agri_reservoir_2", actions[0].Destination)
	assert.Equal(t, 100, actions[0].Percentage)

	alerts, err := s.UnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "critical", alerts[0].Level)
}

func TestAppendWorkflowNormalRunRaisesNoAlert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := &pipeline.WorkflowResult{
		RunID: "run-2",
		Reading: pipeline.SensorReading{
			SensorID: "tank_1", Location: "south", WaterLevel: 40, CapturedAt: time.Now().UTC(),
		},
		Analysis: pipeline.AlertAnalysis{
			SensorID: "tank_1", Level: pipeline.LevelNormal, LevelName: "normal",
		},
		Outcome:     pipeline.OutcomeNoAction,
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendWorkflow(ctx, result))

	alerts, err := s.UnresolvedAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
