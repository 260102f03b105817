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
	"errors"
	"fmt"
	"strings"
)

// ErrCollaboratorUnavailable marks a network or service failure in an
// external collaborator (forecast, actuator, notification, persistence).
// Wrap it with %w so errors.Is works at the orchestrator boundary.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// CollaboratorError identifies which external collaborator failed.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is makes every CollaboratorError match ErrCollaboratorUnavailable.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaboratorUnavailable
}

// NewCollaboratorError wraps err with the collaborator's name.
func NewCollaboratorError(collaborator string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Err: err}
}

// ValidationError means a stage received structurally invalid input,
// e.g. a reading with an out-of-range water level. It is fatal to the run
// that received it; no side effects are issued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ActuationPartialFailure means some valve commands failed while others
// succeeded. It does not fail the run; it is recorded per valve and
// escalated to the notification channel at critical priority.
type ActuationPartialFailure struct {
	Results []ActuationResult
}

func (e *ActuationPartialFailure) Error() string {
	var failed []string
	for _, r := range e.Results {
		if r.Failed() {
			failed = append(failed, r.ValveID)
		}
	}
	return fmt.Sprintf("actuation partially failed for valves: %s", strings.Join(failed, ", "))
}

// FailedValves returns the ids of valves whose commands did not apply.
func (e *ActuationPartialFailure) FailedValves() []string {
	var ids []string
	for _, r := range e.Results {
		if r.Failed() {
			ids = append(ids, r.ValveID)
		}
	}
	return ids
}
