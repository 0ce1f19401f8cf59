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
	"math"
	"strings"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// presenceDiagnostic reports variable existence, optionally narrowed to
// a dimension or attribute of that variable. The evaluator resolves the
// selector before invoking it, so by the time it runs the variable is
// known to exist; the interesting cases are the optional narrows.
func presenceDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	v, err := ds.Variable(variable)
	if err != nil {
		return Value{}, err
	}

	dim, err := params.StringOr("dimension", "")
	if err != nil {
		return Value{}, err
	}
	attr, err := params.StringOr("attribute", "")
	if err != nil {
		return Value{}, err
	}

	if dim != "" {
		_, has := v.DimSize(dim)
		return BoolValue(has), nil
	}
	if attr != "" {
		_, has := v.Attrs[attr]
		return BoolValue(has), nil
	}
	return BoolValue(true), nil
}

// dimensionSizeDiagnostic measures a named dimension, variable-scoped
// when a selector is present and dataset-global otherwise.
func dimensionSizeDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	dim, err := params.StringOr("dimension", "")
	if err != nil {
		return Value{}, err
	}
	if dim == "" {
		return Value{}, fmt.Errorf("parameter %q must not be empty", "dimension")
	}

	if variable != "" {
		v, err := ds.Variable(variable)
		if err != nil {
			return Value{}, err
		}
		size, has := v.DimSize(dim)
		if !has {
			return Value{}, fmt.Errorf("variable %q has no dimension %q", variable, dim)
		}
		return CountValue(size), nil
	}

	size, has := ds.GlobalDims()[dim]
	if !has {
		return Value{}, fmt.Errorf("dataset has no dimension %q", dim)
	}
	return CountValue(size), nil
}

// monotonicDiagnostic checks ordering of a 1-D coordinate-style
// variable. Parameters:
//
//   - direction: "increasing" (default) or "decreasing"
//   - strict: adjacent equals fail when true (default true)
//
// Missing cells anywhere make the answer false; an ordering claim over
// unknown values is not defensible.
func monotonicDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	v, err := ds.Variable(variable)
	if err != nil {
		return Value{}, err
	}

	direction, err := params.StringOr("direction", "increasing")
	if err != nil {
		return Value{}, err
	}
	strict, err := params.BoolOr("strict", true)
	if err != nil {
		return Value{}, err
	}

	var ok func(prev, next float64) bool
	switch direction {
	case "increasing":
		if strict {
			ok = func(p, n float64) bool { return n > p }
		} else {
			ok = func(p, n float64) bool { return n >= p }
		}
	case "decreasing":
		if strict {
			ok = func(p, n float64) bool { return n < p }
		} else {
			ok = func(p, n float64) bool { return n <= p }
		}
	default:
		return Value{}, fmt.Errorf("parameter %q must be %q or %q, got %q",
			"direction", "increasing", "decreasing", direction)
	}

	if hasMissing(v.Values) {
		return BoolValue(false), nil
	}
	for i := 1; i < len(v.Values); i++ {
		if !ok(v.Values[i-1], v.Values[i]) {
			return BoolValue(false), nil
		}
	}
	return BoolValue(true), nil
}

// normalizeUnits canonicalizes a units string for comparison: lowercase
// with runs of whitespace collapsed to single spaces.
func normalizeUnits(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// unitsDiagnostic compares the variable's units attribute against the
// expected spelling, case- and whitespace-insensitively. A variable
// without a units attribute yields false, not an error.
func unitsDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	v, err := ds.Variable(variable)
	if err != nil {
		return Value{}, err
	}
	want, err := params.StringOr("units", "")
	if err != nil {
		return Value{}, err
	}

	raw, has := v.Attrs["units"]
	if !has {
		return BoolValue(false), nil
	}
	got := fmt.Sprintf("%v", raw)
	return BoolValue(normalizeUnits(got) == normalizeUnits(want)), nil
}

// attributeDiagnostic checks a variable attribute. With only the
// "attribute" parameter it is an existence check; with "value" it also
// compares the rendered attribute value exactly.
func attributeDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	v, err := ds.Variable(variable)
	if err != nil {
		return Value{}, err
	}
	return attrCheck(v.Attrs, params)
}

// globalAttributeDiagnostic is attributeDiagnostic against the dataset's
// global attributes.
func globalAttributeDiagnostic(_ context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
	return attrCheck(ds.GlobalAttrs(), params)
}

func attrCheck(attrs map[string]any, params Params) (Value, error) {
	name, err := params.StringOr("attribute", "")
	if err != nil {
		return Value{}, err
	}
	if name == "" {
		return Value{}, fmt.Errorf("parameter %q must not be empty", "attribute")
	}

	raw, has := attrs[name]
	if !has {
		return BoolValue(false), nil
	}

	want, wantSet := params["value"]
	if !wantSet {
		return BoolValue(true), nil
	}

	// Compare numerics numerically so YAML 180 matches a stored 180.0;
	// everything else compares by rendered string.
	if wn, ok := asFloat(want); ok {
		if gn, ok := asFloat(raw); ok {
			return BoolValue(wn == gn || (math.IsNaN(wn) && math.IsNaN(gn))), nil
		}
	}
	return BoolValue(fmt.Sprintf("%v", raw) == fmt.Sprintf("%v", want)), nil
}

// asFloat widens the numeric types YAML and decoders produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
