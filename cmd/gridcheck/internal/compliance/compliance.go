// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compliance defines the boundary to the external CF-convention
// checker.
//
// The engine does not own the catalog of convention rules. It invokes a
// Checker as a black box and consumes its verdict: a list of violations,
// each carrying a severity. The cf_compliance diagnostic reduces that
// list to a count of violations at or above a configured severity floor.
package compliance

import (
	"context"
	"fmt"
	"strings"
)

// Severity grades a single convention violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityHigh is for violations requiring attention before release.
	SeverityHigh Severity = "high"

	// SeverityCritical is for violations that make the file unusable.
	SeverityCritical Severity = "critical"
)

// severityOrder maps each severity to its rank for comparisons.
var severityOrder = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// ParseSeverity normalizes a severity string from configuration or
// checker output. Common aliases from cfchecks-style tools are mapped
// onto the four canonical levels.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "information":
		return SeverityInfo, nil
	case "warn", "warning", "medium":
		return SeverityWarning, nil
	case "high", "error":
		return SeverityHigh, nil
	case "critical", "fatal":
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// AtLeast reports whether s is at or above the floor severity.
func (s Severity) AtLeast(floor Severity) bool {
	return severityOrder[s] >= severityOrder[floor]
}

// Violation is one reported non-compliance with a convention rule.
type Violation struct {
	// Severity grades the violation.
	Severity Severity `json:"severity"`

	// Message is the checker's human-readable description.
	Message string `json:"message"`
}

// String renders the violation as "severity: message".
func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Severity, v.Message)
}

// CountAtLeast counts violations at or above the floor severity.
func CountAtLeast(violations []Violation, floor Severity) int {
	n := 0
	for _, v := range violations {
		if v.Severity.AtLeast(floor) {
			n++
		}
	}
	return n
}

// Checker is the injected capability for convention compliance checks.
// Substitute StaticChecker in tests.
type Checker interface {
	// Check validates the file at path against the given convention
	// ruleset version (empty = checker default). The returned slice may
	// be empty; a non-nil error means the checker itself failed to run.
	Check(ctx context.Context, path string, version string) ([]Violation, error)
}

// StaticChecker returns a fixed verdict regardless of input. It records
// the paths it was asked about.
type StaticChecker struct {
	// Violations is returned from every Check call.
	Violations []Violation

	// Err, when non-nil, is returned instead of a verdict.
	Err error

	// Calls records the checked paths in order.
	Calls []string
}

// Check implements Checker.
func (c *StaticChecker) Check(_ context.Context, path string, _ string) ([]Violation, error) {
	c.Calls = append(c.Calls, path)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Violations, nil
}

var _ Checker = (*StaticChecker)(nil)
