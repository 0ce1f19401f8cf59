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

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// cells loads the target variable and applies the shared reduction
// parameters:
//
//   - mask_variable: name of a same-length variable; cells where the
//     mask is zero or missing are dropped before the reduction.
//   - propagate_nan: when true, missing cells poison float reductions
//     (min/max/mean/sum return NaN) instead of being skipped.
func cells(ds dataset.Dataset, variable string, params Params) (values []float64, propagate bool, err error) {
	v, err := ds.Variable(variable)
	if err != nil {
		return nil, false, err
	}

	propagate, err = params.BoolOr("propagate_nan", false)
	if err != nil {
		return nil, false, err
	}

	maskName, err := params.StringOr("mask_variable", "")
	if err != nil {
		return nil, false, err
	}
	if maskName == "" {
		return v.Values, propagate, nil
	}

	mask, err := ds.Variable(maskName)
	if err != nil {
		return nil, false, fmt.Errorf("mask_variable: %w", err)
	}
	if len(mask.Values) != len(v.Values) {
		return nil, false, fmt.Errorf("mask_variable %q has %d cells, variable %q has %d",
			maskName, len(mask.Values), variable, len(v.Values))
	}

	kept := make([]float64, 0, len(v.Values))
	for i, cell := range v.Values {
		m := mask.Values[i]
		if m == 0 || math.IsNaN(m) {
			continue
		}
		kept = append(kept, cell)
	}
	return kept, propagate, nil
}

// kahanSum accumulates values with compensated summation so that long
// reductions do not drift. Missing (NaN) cells are skipped; n reports
// how many cells contributed.
func kahanSum(values []float64) (sum float64, n int) {
	var c float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		y := v - c
		t := sum + y
		c = (t - sum) - y
		sum = t
		n++
	}
	return sum, n
}

// hasMissing reports whether any cell is NaN.
func hasMissing(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func minDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	return extremum(ds, variable, params, func(a, b float64) bool { return a < b })
}

func maxDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	return extremum(ds, variable, params, func(a, b float64) bool { return a > b })
}

// extremum shares the min/max loop; better selects the winning cell.
func extremum(ds dataset.Dataset, variable string, params Params, better func(a, b float64) bool) (Value, error) {
	values, propagate, err := cells(ds, variable, params)
	if err != nil {
		return Value{}, err
	}
	if propagate && hasMissing(values) {
		return NumberValue(math.NaN()), nil
	}

	found := false
	var best float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if !found || better(v, best) {
			best = v
			found = true
		}
	}
	if !found {
		return Value{}, fmt.Errorf("variable %q has no non-missing cells", variable)
	}
	return NumberValue(best), nil
}

func meanDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	values, propagate, err := cells(ds, variable, params)
	if err != nil {
		return Value{}, err
	}
	if propagate && hasMissing(values) {
		return NumberValue(math.NaN()), nil
	}
	sum, n := kahanSum(values)
	if n == 0 {
		return Value{}, fmt.Errorf("variable %q has no non-missing cells", variable)
	}
	return NumberValue(sum / float64(n)), nil
}

func sumDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	values, propagate, err := cells(ds, variable, params)
	if err != nil {
		return Value{}, err
	}
	if propagate && hasMissing(values) {
		return NumberValue(math.NaN()), nil
	}
	// Sum over zero cells is zero, unlike min/mean.
	sum, _ := kahanSum(values)
	return NumberValue(sum), nil
}

func missingCountDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	values, _, err := cells(ds, variable, params)
	if err != nil {
		return Value{}, err
	}
	missing := 0
	for _, v := range values {
		if math.IsNaN(v) {
			missing++
		}
	}
	return CountValue(missing), nil
}

func missingFractionDiagnostic(_ context.Context, ds dataset.Dataset, variable string, params Params) (Value, error) {
	values, _, err := cells(ds, variable, params)
	if err != nil {
		return Value{}, err
	}
	// A variable with zero cells is trivially complete.
	if len(values) == 0 {
		return NumberValue(0), nil
	}
	missing := 0
	for _, v := range values {
		if math.IsNaN(v) {
			missing++
		}
	}
	return NumberValue(float64(missing) / float64(len(values))), nil
}
