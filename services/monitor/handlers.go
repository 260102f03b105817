// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/HydroGuard/pkg/validation"
	"github.com/AleutianAI/HydroGuard/services/pipeline"
	"github.com/AleutianAI/HydroGuard/services/store"
)

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ingestResponse acknowledges an accepted reading.
type ingestResponse struct {
	IngestID string `json:"ingest_id"`
	SensorID string `json:"sensor_id"`
	Status   string `json:"status"`
}

// Handlers contains the HTTP handlers for the monitoring API.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	runs  *RunManager
	store store.Store
	log   *slog.Logger
}

// NewHandlers creates handlers over the run manager and store.
func NewHandlers(runs *RunManager, st store.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{runs: runs, store: st, log: logger}
}

// RegisterRoutes attaches all monitoring endpoints under the group.
func RegisterRoutes(v1 *gin.RouterGroup, h *Handlers) {
	v1.POST("/readings", h.HandleIngestReading)
	v1.GET("/readings", h.HandleListReadings)
	v1.GET("/valve-actions", h.HandleListValveActions)
	v1.GET("/alerts/unresolved", h.HandleListUnresolvedAlerts)
	v1.POST("/alerts/:id/resolve", h.HandleResolveAlert)
}

// HandleIngestReading handles POST /v1/readings.
//
// Accepts one sensor reading and schedules a workflow run for it. The
// response is 202 Accepted; the run completes asynchronously and its
// outcome lands in the store.
func (h *Handlers) HandleIngestReading(c *gin.Context) {
	var reading pipeline.SensorReading
	if err := c.ShouldBindJSON(&reading); err != nil {
		h.log.Warn("Invalid reading body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if err := validation.ValidateIdent(reading.SensorID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid sensor_id",
			Code:  "INVALID_SENSOR_ID",
		})
		return
	}
	if reading.WaterLevel < 0 || reading.WaterLevel > 100 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "water_level must be between 0 and 100",
			Code:  "INVALID_WATER_LEVEL",
		})
		return
	}
	if reading.CapturedAt.IsZero() {
		reading.CapturedAt = time.Now().UTC()
	}

	if err := h.runs.Submit(reading); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Server is shutting down",
			Code:  "DRAINING",
		})
		return
	}

	c.JSON(http.StatusAccepted, ingestResponse{
		IngestID: uuid.NewString(),
		SensorID: reading.SensorID,
		Status:   "accepted",
	})
}

// HandleListReadings handles GET /v1/readings?window=1h.
func (h *Handlers) HandleListReadings(c *gin.Context) {
	cutoff, ok := h.windowCutoff(c, time.Hour)
	if !ok {
		return
	}
	readings, err := h.store.ReadingsSince(c.Request.Context(), cutoff)
	if err != nil {
		h.log.Error("Failed to list readings", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to query readings",
			Code:  "STORE_ERROR",
		})
		return
	}
	if readings == nil {
		readings = []store.ReadingRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"readings": readings, "count": len(readings)})
}

// HandleListValveActions handles GET /v1/valve-actions?window=6h.
func (h *Handlers) HandleListValveActions(c *gin.Context) {
	cutoff, ok := h.windowCutoff(c, 6*time.Hour)
	if !ok {
		return
	}
	actions, err := h.store.ValveActionsSince(c.Request.Context(), cutoff)
	if err != nil {
		h.log.Error("Failed to list valve actions", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to query valve actions",
			Code:  "STORE_ERROR",
		})
		return
	}
	if actions == nil {
		actions = []store.ValveActionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"valve_actions": actions, "count": len(actions)})
}

// HandleListUnresolvedAlerts handles GET /v1/alerts/unresolved.
func (h *Handlers) HandleListUnresolvedAlerts(c *gin.Context) {
	alerts, err := h.store.UnresolvedAlerts(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to query alerts",
			Code:  "STORE_ERROR",
		})
		return
	}
	if alerts == nil {
		alerts = []store.AlertRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// HandleResolveAlert handles POST /v1/alerts/:id/resolve.
func (h *Handlers) HandleResolveAlert(c *gin.Context) {
	alertID := c.Param("id")
	err := h.store.ResolveAlert(c.Request.Context(), alertID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Alert not found",
			Code:  "NOT_FOUND",
		})
		return
	}
	if err != nil {
		h.log.Error("Failed to resolve alert", "alert_id", alertID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to resolve alert",
			Code:  "STORE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": alertID, "resolved": true})
}

// windowCutoff parses the optional ?window= duration and converts it to a
// cutoff timestamp. Writes the error response itself when the value is bad.
func (h *Handlers) windowCutoff(c *gin.Context, fallback time.Duration) (time.Time, bool) {
	window := fallback
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "window must be a positive duration such as 1h or 30m",
				Code:  "INVALID_WINDOW",
			})
			return time.Time{}, false
		}
		window = parsed
	}
	return time.Now().UTC().Add(-window), true
}
