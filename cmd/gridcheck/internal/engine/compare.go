// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/rules"
)

// ComparisonError reports an expected-outcome variant that cannot
// consume the computed value's kind. The registry validation catches
// this at load time; hitting it at evaluation time means a stale cache
// entry or a programming bug, and it errors that rule only.
type ComparisonError struct {
	// Rule is the rule name.
	Rule string

	// Got is the computed value kind.
	Got diagnostic.ValueKind

	// Want is the expected-outcome variant.
	Want rules.ExpectedKind
}

// Error implements the error interface.
func (e *ComparisonError) Error() string {
	return fmt.Sprintf("rule %q: cannot compare %s value against %s expectation", e.Rule, e.Got, e.Want)
}

// withinTolerance is the float comparison policy: |a-b| <= atol + rtol*|b|,
// where b is the expected side. NaN never compares equal.
func withinTolerance(got, want, atol, rtol float64) bool {
	return math.Abs(got-want) <= atol+rtol*math.Abs(want)
}

// numeric extracts a float from number and count values.
func numeric(v diagnostic.Value) (float64, bool) {
	switch v.Kind {
	case diagnostic.KindNumber:
		return v.Number, true
	case diagnostic.KindCount:
		return float64(v.Count), true
	default:
		return 0, false
	}
}

// compare applies the rule's comparison policy to a clean diagnostic
// output.
//
// # Outputs
//
//   - bool: True when the value meets the expectation.
//   - string: One-line explanation carrying the computed value and the
//     expectation, used verbatim in the report.
//   - error: *ComparisonError on a kind mismatch.
func compare(rule *rules.Rule, value diagnostic.Value, atol, rtol float64) (bool, string, error) {
	exp := rule.Expected
	message := fmt.Sprintf("computed %s, expected %s", value.String(), exp.String())

	switch exp.Kind {
	case rules.ExpectScalar:
		got, ok := numeric(value)
		if !ok {
			return false, "", &ComparisonError{Rule: rule.Name, Got: value.Kind, Want: exp.Kind}
		}
		return withinTolerance(got, exp.Value, atol, rtol), message, nil

	case rules.ExpectRange:
		got, ok := numeric(value)
		if !ok {
			return false, "", &ComparisonError{Rule: rule.Name, Got: value.Kind, Want: exp.Kind}
		}
		// Inclusive on both ends; NaN is outside every range.
		return got >= exp.Min && got <= exp.Max, message, nil

	case rules.ExpectBool:
		if value.Kind != diagnostic.KindBool {
			return false, "", &ComparisonError{Rule: rule.Name, Got: value.Kind, Want: exp.Kind}
		}
		if len(value.Detail) > 0 {
			message += " (" + strings.Join(value.Detail, "; ") + ")"
		}
		return value.Bool == exp.Bool, message, nil

	case rules.ExpectCompliance:
		if value.Kind != diagnostic.KindCount {
			return false, "", &ComparisonError{Rule: rule.Name, Got: value.Kind, Want: exp.Kind}
		}
		if len(value.Detail) > 0 {
			message += " (" + strings.Join(value.Detail, "; ") + ")"
		}
		return value.Count == 0, message, nil

	default:
		return false, "", &ComparisonError{Rule: rule.Name, Got: value.Kind, Want: exp.Kind}
	}
}
