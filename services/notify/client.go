// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify implements the notification channel client.
//
// Notification delivery is fire-and-log: a failed send is reported to the
// caller so it can log it, but nothing in the workflow depends on delivery.
package notify

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

// Client posts alert messages to the notification relay (SMS/voice bridge).
// It implements pipeline.Notifier.
type Client struct {
	httpClient *http.Client
	baseURL    string
	channel    string
}

// sendRequest is the relay's wire format.
type sendRequest struct {
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
	Priority   string   `json:"priority"`
}

// NewClient builds a notification client. channel selects the relay route
// (e.g. "sms"); empty defaults to "sms".
func NewClient(baseURL, channel string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("notification base URL not set")
	}
	if channel == "" {
		channel = "sms"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing notification client", "base_url", baseURL, "channel", channel)
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		channel:    channel,
	}, nil
}

// Send implements pipeline.Notifier.
func (c *Client) Send(ctx context.Context, recipients []string, message string, priority pipeline.NotificationPriority) error {
	payload, err := json.Marshal(sendRequest{
		Channel:    c.channel,
		Recipients: recipients,
		Message:    message,
		Priority:   string(priority),
	})
	if err != nil {
		return pipeline.NewCollaboratorError("notifier", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/notifications", bytes.NewBuffer(payload))
	if err != nil {
		return pipeline.NewCollaboratorError("notifier", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.NewCollaboratorError("notifier", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return pipeline.NewCollaboratorError("notifier",
			fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(body)))
	}

	slog.Debug("notification delivered",
		"channel", c.channel,
		"recipients", len(recipients),
		"priority", string(priority))
	return nil
}

var _ pipeline.Notifier = (*Client)(nil)
