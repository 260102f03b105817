// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

// Recorder adapts a Store to the workflow's persistence port.
type Recorder struct {
	store Store
	log   *slog.Logger
}

// NewRecorder wires the store. logger may be nil.
func NewRecorder(s Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, log: logger}
}

// RecordResult implements pipeline.Recorder.
func (r *Recorder) RecordResult(ctx context.Context, result *pipeline.WorkflowResult) error {
	if err := r.store.AppendWorkflow(ctx, result); err != nil {
		return pipeline.NewCollaboratorError("store", err)
	}
	r.log.Debug("workflow result persisted",
		"run_id", result.RunID,
		"outcome", string(result.Outcome))
	return nil
}

var _ pipeline.Recorder = (*Recorder)(nil)
