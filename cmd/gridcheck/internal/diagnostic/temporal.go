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
	"sort"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// timeAxis loads the time coordinate named by the "coordinate"
// parameter (default "time"), dropping missing cells and sorting. Time
// values stay in the file's native encoding (e.g. hours since an
// epoch); rules compare them numerically.
func timeAxis(ds dataset.Dataset, params Params) ([]float64, error) {
	name, err := params.StringOr("coordinate", "time")
	if err != nil {
		return nil, err
	}
	v, err := ds.Variable(name)
	if err != nil {
		return nil, err
	}

	axis := make([]float64, 0, len(v.Values))
	for _, t := range v.Values {
		if math.IsNaN(t) {
			continue
		}
		axis = append(axis, t)
	}
	if len(axis) == 0 {
		return nil, fmt.Errorf("coordinate %q has no non-missing values", name)
	}
	sort.Float64s(axis)
	return axis, nil
}

func temporalStartDiagnostic(_ context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
	axis, err := timeAxis(ds, params)
	if err != nil {
		return Value{}, err
	}
	return NumberValue(axis[0]), nil
}

func temporalEndDiagnostic(_ context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
	axis, err := timeAxis(ds, params)
	if err != nil {
		return Value{}, err
	}
	return NumberValue(axis[len(axis)-1]), nil
}

// temporalRegularDiagnostic checks that the sorted time axis advances
// in uniform steps. With the optional "step" parameter the step must
// also equal that value. An axis of fewer than two points is trivially
// regular.
func temporalRegularDiagnostic(_ context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
	axis, err := timeAxis(ds, params)
	if err != nil {
		return Value{}, err
	}
	if len(axis) < 2 {
		return BoolValue(true), nil
	}

	ref := axis[1] - axis[0]
	want, err := params.FloatOr("step", ref)
	if err != nil {
		return Value{}, err
	}
	if !stepsEqual(ref, want) {
		return BoolValue(false), nil
	}
	for i := 2; i < len(axis); i++ {
		if !stepsEqual(axis[i]-axis[i-1], want) {
			return BoolValue(false), nil
		}
	}
	return BoolValue(true), nil
}

// stepsEqual absorbs float noise in axis arithmetic without accepting a
// genuinely different step.
func stepsEqual(got, want float64) bool {
	return math.Abs(got-want) <= 1e-9*math.Max(math.Abs(want), 1)
}
