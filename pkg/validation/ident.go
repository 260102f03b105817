// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical
// operations.
//
// Sensor, valve, and destination identifiers arrive from the network and end
// up in store keys and actuator commands. Validating them here prevents key
// injection and keeps garbage ids from the reasoning backend out of the
// actuation path.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identPattern matches device and destination identifiers.
// Allows: letters, digits, underscores, hyphens. Max length: 64 characters.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)

// ValidateIdent validates a device or destination identifier.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters, digits, underscores, hyphens
//   - Must start with a letter or digit
//
// Returns an error if the identifier is invalid.
func ValidateIdent(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q (must be 1-64 alphanumeric chars, underscores, or hyphens)", id)
	}
	return nil
}

// ValidateIdents validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIdents(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdent(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdent trims whitespace and validates an identifier.
//
// Use this for identifiers coming back from the reasoning backend, which
// sometimes pads values with spaces or newlines:
//
//	valveID, err := validation.SanitizeIdent(reply.ValveID)
//	if err != nil {
//	    // drop the action
//	}
func SanitizeIdent(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateIdent(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
