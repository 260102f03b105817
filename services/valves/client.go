// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package valves implements the actuator gateway client for the valve
// control collaborator.
package valves

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// Client issues valve commands to the actuator gateway over HTTP.
// It implements pipeline.ActuatorGateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// commandRequest is the gateway's wire format for one command.
type commandRequest struct {
	ValveID    string `json:"valve_id"`
	Action     string `json:"action"`
	Percentage int    `json:"percentage"`
}

// commandResponse is the gateway's acknowledgment.
type commandResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewClient builds an actuator client for the given gateway URL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("actuator base URL not set")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing valve actuator client", "base_url", baseURL)
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

// SendCommand implements pipeline.ActuatorGateway.
//
// A non-2xx response is a command failure for that valve only; the caller
// decides how it affects the rest of the plan.
func (c *Client) SendCommand(ctx context.Context, valveID string, action pipeline.ActionKind, percentage int) (pipeline.CommandReceipt, error) {
	payload, err := json.Marshal(commandRequest{
		ValveID:    valveID,
		Action:     string(action),
		Percentage: percentage,
	})
	if err != nil {
		return pipeline.CommandReceipt{}, pipeline.NewCollaboratorError("actuator", err)
	}

	commandURL := c.baseURL + "/v1/valves/" + valveID + "/command"
	req, err := http.NewRequestWithContext(ctx, "POST", commandURL, bytes.NewBuffer(payload))
	if err != nil {
		return pipeline.CommandReceipt{}, pipeline.NewCollaboratorError("actuator", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("valve command request failed", "valve_id", valveID, "error", err)
		return pipeline.CommandReceipt{}, pipeline.NewCollaboratorError("actuator", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.CommandReceipt{}, pipeline.NewCollaboratorError("actuator", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("actuator gateway rejected command",
			"valve_id", valveID,
			"status_code", resp.StatusCode,
			"response", string(body))
		return pipeline.CommandReceipt{}, pipeline.NewCollaboratorError("actuator",
			fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	var wire commandResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return pipeline.CommandReceipt{}, pipeline.NewCollaboratorError("actuator",
			fmt.Errorf("parse response: %w", err))
	}
	if wire.Status == "" {
		wire.Status = "success"
	}
	if wire.Timestamp.IsZero() {
		wire.Timestamp = time.Now().UTC()
	}

	return pipeline.CommandReceipt{
		Status:    wire.Status,
		Timestamp: wire.Timestamp,
	}, nil
}

var _ pipeline.ActuatorGateway = (*Client)(nil)
