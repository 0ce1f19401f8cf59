// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExpectedKind tags the variant of an expected outcome.
type ExpectedKind string

const (
	// ExpectScalar compares against an exact number, within tolerance.
	ExpectScalar ExpectedKind = "scalar"

	// ExpectRange requires min <= computed <= max, both inclusive.
	ExpectRange ExpectedKind = "range"

	// ExpectBool compares against a boolean.
	ExpectBool ExpectedKind = "bool"

	// ExpectCompliance requires zero convention violations at or above
	// the configured severity floor.
	ExpectCompliance ExpectedKind = "compliance"
)

// Expected is the tagged expected-outcome variant of a rule. Exactly one
// variant is set; the kind determines the comparison policy the
// evaluator applies.
type Expected struct {
	// Kind tags the active variant.
	Kind ExpectedKind

	// Value is the exact scalar (ExpectScalar).
	Value float64

	// Min / Max bound the inclusive range (ExpectRange).
	Min float64
	Max float64

	// Bool is the expected boolean (ExpectBool).
	Bool bool

	// MinSeverity is the violation severity floor (ExpectCompliance).
	// Parsed and defaulted by the diagnostic registry.
	MinSeverity string
}

// expectedDoc is the YAML wire form of Expected.
type expectedDoc struct {
	Value *float64 `yaml:"value"`
	Range *struct {
		Min *float64 `yaml:"min"`
		Max *float64 `yaml:"max"`
	} `yaml:"range"`
	Equals      *bool   `yaml:"equals"`
	Compliance  *string `yaml:"compliance"`
	MinSeverity string  `yaml:"min_severity"`
}

// UnmarshalYAML decodes one of:
//
//	expected: {value: 273.15}
//	expected: {range: {min: 200, max: 330}}
//	expected: {equals: true}
//	expected: {compliance: zero_violations, min_severity: high}
func (e *Expected) UnmarshalYAML(node *yaml.Node) error {
	var doc expectedDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}

	set := 0
	if doc.Value != nil {
		set++
		e.Kind = ExpectScalar
		e.Value = *doc.Value
	}
	if doc.Range != nil {
		set++
		if doc.Range.Min == nil || doc.Range.Max == nil {
			return fmt.Errorf("expected range needs both min and max")
		}
		if *doc.Range.Min > *doc.Range.Max {
			return fmt.Errorf("expected range has min %v > max %v", *doc.Range.Min, *doc.Range.Max)
		}
		e.Kind = ExpectRange
		e.Min = *doc.Range.Min
		e.Max = *doc.Range.Max
	}
	if doc.Equals != nil {
		set++
		e.Kind = ExpectBool
		e.Bool = *doc.Equals
	}
	if doc.Compliance != nil {
		set++
		if *doc.Compliance != "zero_violations" {
			return fmt.Errorf("expected compliance must be %q, got %q", "zero_violations", *doc.Compliance)
		}
		e.Kind = ExpectCompliance
		e.MinSeverity = doc.MinSeverity
	}

	switch set {
	case 0:
		return fmt.Errorf("expected outcome needs one of value, range, equals, compliance")
	case 1:
		return nil
	default:
		return fmt.Errorf("expected outcome must set exactly one of value, range, equals, compliance")
	}
}

// MarshalYAML renders the active variant back to the wire form.
func (e Expected) MarshalYAML() (any, error) {
	switch e.Kind {
	case ExpectScalar:
		return map[string]any{"value": e.Value}, nil
	case ExpectRange:
		return map[string]any{"range": map[string]any{"min": e.Min, "max": e.Max}}, nil
	case ExpectBool:
		return map[string]any{"equals": e.Bool}, nil
	case ExpectCompliance:
		doc := map[string]any{"compliance": "zero_violations"}
		if e.MinSeverity != "" {
			doc["min_severity"] = e.MinSeverity
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("expected outcome has no variant set")
	}
}

// String renders the expectation for report messages.
func (e Expected) String() string {
	switch e.Kind {
	case ExpectScalar:
		return fmt.Sprintf("= %v", e.Value)
	case ExpectRange:
		return fmt.Sprintf("in [%v, %v]", e.Min, e.Max)
	case ExpectBool:
		return fmt.Sprintf("= %v", e.Bool)
	case ExpectCompliance:
		if e.MinSeverity != "" {
			return fmt.Sprintf("no violations >= %s", e.MinSeverity)
		}
		return "no violations"
	default:
		return "(unset)"
	}
}
