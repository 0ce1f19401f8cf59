// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagnostic

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/compliance"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/operator"
)

// DefaultMinSeverity is the violation floor applied when a compliance
// rule does not set one.
const DefaultMinSeverity = compliance.SeverityWarning

// memberPaths returns the concrete file paths behind a dataset: the
// members of a collection, or the dataset's own path.
func memberPaths(ds dataset.Dataset) []string {
	if c, ok := ds.(*dataset.Collection); ok {
		members := c.Members()
		paths := make([]string, 0, len(members))
		for _, m := range members {
			paths = append(paths, memberPaths(m)...)
		}
		return paths
	}
	return []string{ds.Path()}
}

// complianceDiagnostic counts convention violations at or above the
// configured severity floor across every file behind the dataset. The
// floor arrives as the "min_severity" parameter (injected by the
// evaluator from the rule's expected outcome). Violations below the
// floor are dropped entirely; the surviving ones are carried as detail
// lines for the report.
func complianceDiagnostic(checker compliance.Checker, version string) Func {
	return func(ctx context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
		raw, err := params.StringOr("min_severity", string(DefaultMinSeverity))
		if err != nil {
			return Value{}, err
		}
		floor, err := compliance.ParseSeverity(raw)
		if err != nil {
			return Value{}, err
		}

		count := 0
		var detail []string
		for _, path := range memberPaths(ds) {
			violations, err := checker.Check(ctx, path, version)
			if err != nil {
				return Value{}, fmt.Errorf("compliance checker on %s: %w", path, err)
			}
			for _, v := range violations {
				if !v.Severity.AtLeast(floor) {
					continue
				}
				count++
				detail = append(detail, fmt.Sprintf("%s: %s", path, v))
			}
		}
		return CountValue(count, detail...), nil
	}
}

// describeDiagnostic compares an operator-produced description (grid or
// vertical axis) against the expected attributes in the "attributes"
// parameter. Every file behind the dataset must match; mismatches and
// absent keys become detail lines.
func describeDiagnostic(tool operator.Tool, kind operator.DescribeKind) Func {
	return func(ctx context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
		want, err := params.StringMap("attributes")
		if err != nil {
			return Value{}, err
		}
		if len(want) == 0 {
			return Value{}, fmt.Errorf("parameter %q must not be empty", "attributes")
		}

		keys := make([]string, 0, len(want))
		for k := range want {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var detail []string
		for _, path := range memberPaths(ds) {
			desc, err := tool.Describe(ctx, path, kind)
			if err != nil {
				return Value{}, err
			}
			for _, k := range keys {
				got, has := desc[k]
				switch {
				case !has:
					detail = append(detail, fmt.Sprintf("%s: %s absent (want %s)", path, k, want[k]))
				case got != want[k]:
					detail = append(detail, fmt.Sprintf("%s: %s = %s (want %s)", path, k, got, want[k]))
				}
			}
		}
		v := BoolValue(len(detail) == 0)
		v.Detail = detail
		return v, nil
	}
}
