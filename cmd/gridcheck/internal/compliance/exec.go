// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecChecker runs an external cfchecks-compatible binary and parses its
// verdict from stdout.
//
// Expected output format, one finding per line:
//
//	WARNING: attribute 'units' on variable 't2m' is not CF compliant
//	ERROR: missing required attribute 'standard_name'
//
// Lines that do not start with a recognizable severity prefix are
// ignored, so banner and progress output pass through harmlessly.
//
// A non-zero exit status alone is not a checker failure: cfchecks-style
// tools exit non-zero when they find violations. The run only fails when
// the process cannot be started or produces no parseable output while
// writing to stderr.
type ExecChecker struct {
	// Binary is the checker executable, e.g. "cfchecks".
	Binary string

	// ExtraArgs are inserted before the dataset path.
	ExtraArgs []string
}

// NewExecChecker creates an ExecChecker for the given binary.
func NewExecChecker(binary string, extraArgs ...string) *ExecChecker {
	return &ExecChecker{Binary: binary, ExtraArgs: extraArgs}
}

// Check implements Checker by invoking the external binary.
func (c *ExecChecker) Check(ctx context.Context, path string, version string) ([]Violation, error) {
	args := make([]string, 0, len(c.ExtraArgs)+3)
	if version != "" {
		args = append(args, "-v", version)
	}
	args = append(args, c.ExtraArgs...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	violations := ParseOutput(stdout.String())
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("run %s: %w", c.Binary, runErr)
		}
		// Exit status set but nothing parseable: treat as tool failure.
		if len(violations) == 0 && stdout.Len() == 0 {
			return nil, fmt.Errorf("%s %s (exit nonzero): %s",
				c.Binary, path, strings.TrimSpace(stderr.String()))
		}
	}
	return violations, nil
}

// ParseOutput extracts violations from checker stdout. Exported for the
// adapter tests; the line format is part of the checker contract.
func ParseOutput(output string) []Violation {
	var violations []Violation
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		prefix, message, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		severity, err := ParseSeverity(prefix)
		if err != nil {
			continue
		}
		message = strings.TrimSpace(message)
		if message == "" {
			continue
		}
		violations = append(violations, Violation{Severity: severity, Message: message})
	}
	return violations
}

var _ Checker = (*ExecChecker)(nil)
