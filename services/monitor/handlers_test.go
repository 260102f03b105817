package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
	"github.com/AleutianAI/HydroGuard/services/reasoning"
	"github.com/AleutianAI/HydroGuard/services/store"
)

type stubForecast struct{}

func (stubForecast) GetForecast(ctx context.Context, location string) (pipeline.ForecastData, error) {
	return pipeline.ForecastData{Location: location, HourlyRainfallMM: []float64{1, 2}}, nil
}

type stubActuator struct{}

func (stubActuator) SendCommand(ctx context.Context, valveID string, action pipeline.ActionKind, percentage int) (pipeline.CommandReceipt, error) {
	return pipeline.CommandReceipt{Status: "success", Timestamp: time.Now().UTC()}, nil
}

type stubNotifier struct{}

func (stubNotifier) Send(ctx context.Context, recipients []string, message string, priority pipeline.NotificationPriority) error {
	return nil
}

type testAPI struct {
	router *gin.Engine
	runs   *RunManager
	store  *store.BadgerStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gateway := reasoning.NewGateway(reasoning.NewStaticClient(), reasoning.Config{})
	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewForecastStage(stubForecast{}, nil),
		pipeline.NewPredictionStage(gateway, nil),
		pipeline.NewPlanner(gateway, nil),
		pipeline.NewExecutor(stubActuator{}, nil),
		stubNotifier{},
		store.NewRecorder(st, nil),
		pipeline.Config{
			Destinations: []pipeline.Destination{
				{ID: "agri_reservoir_2", Category: pipeline.CategoryAgriculture, CapacityRemaining: 1000},
			},
		},
	)

	runs := NewRunManager(orchestrator, 2, nil)
	handlers := NewHandlers(runs, st, nil)

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	return &testAPI{router: router, runs: runs, store: st}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestIngestReadingAccepted(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/v1/readings",
		`{"sensor_id": "tank_42", "location": "north_district", "water_level": 92.5, "flow_rate": 450}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		IngestID string `json:"ingest_id"`
		SensorID string `json:"sensor_id"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.IngestID)
	assert.Equal(t, "tank_42", resp.SensorID)
	assert.Equal(t, "accepted", resp.Status)

	// Wait for the async run, then the reading must be queryable.
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, api.runs.Drain(drainCtx))

	w = api.do(http.MethodGet, "/v1/readings?window=1h", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Count    int                   `json:"count"`
		Readings []store.ReadingRecord `json:"readings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "tank_42", list.Readings[0].SensorID)
}

func TestIngestReadingValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"bad sensor id", `{"sensor_id": "tank|42", "location": "north", "water_level": 50}`},
		{"water level above 100", `{"sensor_id": "tank_1", "location": "north", "water_level": 130}`},
		{"negative water level", `{"sensor_id": "tank_1", "location": "north", "water_level": -4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			w := api.do(http.MethodPost, "/v1/readings", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestIngestRejectedWhileDraining(t *testing.T) {
	api := newTestAPI(t)

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, api.runs.Drain(drainCtx))

	w := api.do(http.MethodPost, "/v1/readings",
		`{"sensor_id": "tank_1", "location": "north", "water_level": 50}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListReadingsInvalidWindow(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(http.MethodGet, "/v1/readings?window=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListValveActionsWindow(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, api.store.AppendValveAction(ctx, store.ValveActionRecord{
		ValveID: "v_recent", Action: "open", Status: "success", IssuedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, api.store.AppendValveAction(ctx, store.ValveActionRecord{
		ValveID: "v_ancient", Action: "open", Status: "success", IssuedAt: now.Add(-10 * time.Hour),
	}))

	w := api.do(http.MethodGet, "/v1/valve-actions?window=6h", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Count   int                       `json:"count"`
		Actions []store.ValveActionRecord `json:"valve_actions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "v_recent", list.Actions[0].ValveID)
}

func TestResolveAlertEndpoint(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, api.store.AppendAlert(ctx, store.AlertRecord{
		ID: "alert-1", SensorID: "tank_1", Level: "warning", RaisedAt: time.Now().UTC(),
	}))

	w := api.do(http.MethodPost, "/v1/alerts/alert-1/resolve", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/v1/alerts/unresolved", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Zero(t, list.Count)
}

func TestResolveUnknownAlertReturns404(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(http.MethodPost, "/v1/alerts/ghost/resolve", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
