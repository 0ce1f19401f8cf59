// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package operator defines the boundary to the external climate-operator
// tool (a cdo-compatible binary).
//
// Grid and vertical-axis descriptions are not computed in-process; the
// tool is invoked as a black box and its "key = value" description
// output is parsed into a flat map. Failures surface to the engine as
// diagnostic errors for the invoking rule only.
package operator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DescribeKind selects which description the tool produces.
type DescribeKind string

const (
	// KindGrid describes the horizontal grid (cdo -griddes).
	KindGrid DescribeKind = "griddes"

	// KindZAxis describes the vertical axis (cdo -zaxisdes).
	KindZAxis DescribeKind = "zaxisdes"
)

// Tool is the injected capability for operator-derived descriptions.
// Substitute StaticTool in tests.
type Tool interface {
	// Describe returns the key/value description of the given kind for
	// the file at path.
	Describe(ctx context.Context, path string, kind DescribeKind) (map[string]string, error)
}

// ExecTool shells out to a cdo-compatible binary.
type ExecTool struct {
	// Binary is the operator executable, e.g. "cdo".
	Binary string
}

// NewExecTool creates an ExecTool for the given binary.
func NewExecTool(binary string) *ExecTool {
	return &ExecTool{Binary: binary}
}

// Describe implements Tool by running "<binary> -<kind> <path>".
func (t *ExecTool) Describe(ctx context.Context, path string, kind DescribeKind) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, t.Binary, "-"+string(kind), path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s -%s %s: %w: %s",
			t.Binary, kind, path, err, strings.TrimSpace(stderr.String()))
	}
	return ParseDescription(stdout.String()), nil
}

// ParseDescription converts "key = value" description lines to a map.
// Quotes are stripped and whitespace trimmed; lines without "=" are
// ignored (section headers, comments).
func ParseDescription(output string) map[string]string {
	desc := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(strings.NewReplacer(`'`, "", `"`, "").Replace(value))
		if key == "" {
			continue
		}
		desc[key] = value
	}
	return desc
}

// StaticTool returns fixed descriptions keyed by kind. Missing kinds
// yield an error, mimicking a tool that cannot describe the file.
type StaticTool struct {
	// Descriptions maps kind to the returned description.
	Descriptions map[DescribeKind]map[string]string

	// Err, when non-nil, is returned from every call.
	Err error
}

// Describe implements Tool.
func (t *StaticTool) Describe(_ context.Context, path string, kind DescribeKind) (map[string]string, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	desc, ok := t.Descriptions[kind]
	if !ok {
		return nil, fmt.Errorf("no %s description for %s", kind, path)
	}
	return desc, nil
}

var (
	_ Tool = (*ExecTool)(nil)
	_ Tool = (*StaticTool)(nil)
)
