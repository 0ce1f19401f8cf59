// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diagnostic implements the measurement catalog of the engine.
//
// A diagnostic is a named, pure computation over an open dataset that
// produces exactly one comparable Value (number, boolean, or count).
// Diagnostics never decide pass or fail; the evaluator compares their
// output against a rule's expected outcome. The Registry maps check ids
// to implementations and owns the semantic half of configuration
// validation: unknown check ids, missing required parameters, and
// selector/expectation mismatches are rejected before any dataset is
// opened.
package diagnostic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/compliance"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/operator"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/rules"
)

// Error reports a diagnostic that could not produce a value. The
// evaluator records the invoking rule as errored; other rules on the
// same dataset proceed.
type Error struct {
	// Check is the diagnostic id.
	Check string

	// Variable is the target variable, when the diagnostic has one.
	Variable string

	// Path identifies the dataset.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("diagnostic %s on %s/%s: %v", e.Check, e.Path, e.Variable, e.Err)
	}
	return fmt.Sprintf("diagnostic %s on %s: %v", e.Check, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Params are the diagnostic-specific options of a rule, as decoded from
// YAML. Typed accessors convert the loose values and report type
// mismatches as errors rather than panicking.
type Params map[string]any

// StringOr returns the string parameter or def when absent.
func (p Params) StringOr(key, def string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, raw)
	}
	return s, nil
}

// FloatOr returns the numeric parameter or def when absent. YAML
// integers and floats are both accepted.
func (p Params) FloatOr(key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := raw.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, raw)
	}
}

// BoolOr returns the boolean parameter or def when absent.
func (p Params) BoolOr(key string, def bool) (bool, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean, got %T", key, raw)
	}
	return b, nil
}

// StringMap returns a map-valued parameter with every value rendered as
// a string. Absent keys yield a nil map.
func (p Params) StringMap(key string) (map[string]string, error) {
	raw, ok := p[key]
	if !ok {
		return nil, nil
	}
	loose, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a mapping, got %T", key, raw)
	}
	out := make(map[string]string, len(loose))
	for k, v := range loose {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}

// VariableMode states a diagnostic's relationship to variable selectors.
type VariableMode int

const (
	// VariableRequired diagnostics run once per selected variable.
	VariableRequired VariableMode = iota

	// VariableOptional diagnostics accept a selector but also run
	// dataset-wide without one.
	VariableOptional

	// VariableNone diagnostics inspect the whole dataset; a selector is
	// a configuration error.
	VariableNone
)

// Func computes one Value for a dataset (and optionally one variable).
// Implementations must honor ctx cancellation on long loops and must
// not retain ds past the call.
type Func func(ctx context.Context, ds dataset.Dataset, variable string, params Params) (Value, error)

// Spec describes one registered diagnostic.
type Spec struct {
	// ID is the check name rules refer to.
	ID string

	// Summary is a one-line description for catalog listings.
	Summary string

	// Variables states the selector mode.
	Variables VariableMode

	// Result is the kind of Value the diagnostic produces.
	Result ValueKind

	// Required lists parameters that must be present in the rule.
	Required []string

	// Fn is the implementation.
	Fn Func
}

// Registry is the immutable-after-construction catalog of diagnostics.
//
// # Thread Safety
//
// Safe for concurrent use once built; Register must not race with
// Lookup or Run.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a diagnostic. Duplicate ids are rejected.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return fmt.Errorf("diagnostic spec has no id")
	}
	if spec.Fn == nil {
		return fmt.Errorf("diagnostic %q has no implementation", spec.ID)
	}
	if _, dup := r.specs[spec.ID]; dup {
		return fmt.Errorf("diagnostic %q registered twice", spec.ID)
	}
	r.specs[spec.ID] = spec
	return nil
}

// Lookup returns the spec for a check id.
func (r *Registry) Lookup(id string) (Spec, bool) {
	spec, ok := r.specs[id]
	return spec, ok
}

// IDs returns all registered check ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run executes a diagnostic and wraps any failure in *Error. Outcomes
// and latency are recorded on the package meters.
func (r *Registry) Run(ctx context.Context, id string, ds dataset.Dataset, variable string, params Params) (Value, error) {
	spec, ok := r.Lookup(id)
	if !ok {
		return Value{}, &Error{Check: id, Variable: variable, Path: ds.Path(),
			Err: fmt.Errorf("unknown diagnostic")}
	}

	start := time.Now()
	value, err := spec.Fn(ctx, ds, variable, params)
	recordRun(ctx, id, err == nil, time.Since(start))
	if err != nil {
		if _, already := err.(*Error); already {
			return Value{}, err
		}
		return Value{}, &Error{Check: id, Variable: variable, Path: ds.Path(), Err: err}
	}
	return value, nil
}

// expectedCompatible reports whether an expected-outcome variant can
// consume a diagnostic's result kind.
func expectedCompatible(result ValueKind, kind rules.ExpectedKind) bool {
	switch result {
	case KindNumber:
		return kind == rules.ExpectScalar || kind == rules.ExpectRange
	case KindCount:
		return kind == rules.ExpectScalar || kind == rules.ExpectRange || kind == rules.ExpectCompliance
	case KindBool:
		return kind == rules.ExpectBool
	default:
		return false
	}
}

// ValidateConfig is the diagnostic-aware second validation pass over a
// loaded rule document.
//
// # Description
//
// The rules loader validates shape; this pass validates meaning against
// the catalog: check ids must exist, required parameters must be
// present, selectors must match the diagnostic's variable mode, the
// expected-outcome variant must be consumable, and severity floors must
// parse. Any failure is a *rules.ConfigurationError and aborts the run
// before dataset I/O.
func (r *Registry) ValidateConfig(cfg *rules.Config) error {
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		spec, ok := r.Lookup(rule.Check)
		if !ok {
			return &rules.ConfigurationError{Rule: rule.Name,
				Err: fmt.Errorf("unknown check %q (known: %v)", rule.Check, r.IDs())}
		}

		switch spec.Variables {
		case VariableRequired:
			if rule.Variable.IsZero() {
				return &rules.ConfigurationError{Rule: rule.Name,
					Err: fmt.Errorf("check %q needs a variable selector", rule.Check)}
			}
		case VariableNone:
			if !rule.Variable.IsZero() {
				return &rules.ConfigurationError{Rule: rule.Name,
					Err: fmt.Errorf("check %q inspects the whole dataset; remove the variable selector", rule.Check)}
			}
		}

		for _, key := range spec.Required {
			if _, present := rule.Params[key]; !present {
				return &rules.ConfigurationError{Rule: rule.Name,
					Err: fmt.Errorf("check %q needs parameter %q", rule.Check, key)}
			}
		}

		if !expectedCompatible(spec.Result, rule.Expected.Kind) {
			return &rules.ConfigurationError{Rule: rule.Name,
				Err: fmt.Errorf("check %q produces a %s value; expected outcome %q cannot consume it",
					rule.Check, spec.Result, rule.Expected.Kind)}
		}
		if rule.Expected.Kind == rules.ExpectCompliance && rule.Check != CheckCFCompliance {
			return &rules.ConfigurationError{Rule: rule.Name,
				Err: fmt.Errorf("compliance expectation is only valid for check %q", CheckCFCompliance)}
		}
		if rule.Expected.MinSeverity != "" {
			if _, err := compliance.ParseSeverity(rule.Expected.MinSeverity); err != nil {
				return &rules.ConfigurationError{Rule: rule.Name, Err: err}
			}
		}
	}
	return nil
}

// CatalogOptions hold the external capabilities the full catalog needs.
type CatalogOptions struct {
	// Checker runs convention compliance checks. Nil disables
	// cf_compliance (rules using it become configuration errors).
	Checker compliance.Checker

	// ComplianceVersion pins the convention ruleset version.
	ComplianceVersion string

	// Tool produces grid and vertical-axis descriptions. Nil disables
	// the description diagnostics.
	Tool operator.Tool
}

// Check ids of the built-in catalog.
const (
	CheckFormat           = "format"
	CheckPresence         = "presence"
	CheckMin              = "min"
	CheckMax              = "max"
	CheckMean             = "mean"
	CheckSum              = "sum"
	CheckMissingCount     = "missing_count"
	CheckMissingFraction  = "missing_fraction"
	CheckDimensionSize    = "dimension_size"
	CheckMonotonic        = "monotonic"
	CheckUnits            = "units"
	CheckAttribute        = "attribute"
	CheckGlobalAttribute  = "global_attribute"
	CheckCFCompliance     = "cf_compliance"
	CheckGridDescription  = "grid_description"
	CheckZAxisDescription = "zaxis_description"
	CheckTemporalStart    = "temporal_start"
	CheckTemporalEnd      = "temporal_end"
	CheckTemporalRegular  = "temporal_regular"
)

// Catalog builds the full built-in registry wired to the given external
// capabilities.
func Catalog(opts CatalogOptions) *Registry {
	r := NewRegistry()

	mustRegister := func(spec Spec) {
		if err := r.Register(spec); err != nil {
			// Built-in ids are compile-time constants; a duplicate is a
			// programming error.
			panic(err)
		}
	}

	mustRegister(Spec{ID: CheckFormat, Summary: "on-disk file format and version match",
		Variables: VariableNone, Result: KindBool, Required: []string{"format"},
		Fn: formatDiagnostic})
	mustRegister(Spec{ID: CheckPresence, Summary: "variable (or its dimension/attribute) exists",
		Variables: VariableRequired, Result: KindBool, Fn: presenceDiagnostic})
	mustRegister(Spec{ID: CheckMin, Summary: "minimum over non-missing cells",
		Variables: VariableRequired, Result: KindNumber, Fn: minDiagnostic})
	mustRegister(Spec{ID: CheckMax, Summary: "maximum over non-missing cells",
		Variables: VariableRequired, Result: KindNumber, Fn: maxDiagnostic})
	mustRegister(Spec{ID: CheckMean, Summary: "compensated mean over non-missing cells",
		Variables: VariableRequired, Result: KindNumber, Fn: meanDiagnostic})
	mustRegister(Spec{ID: CheckSum, Summary: "compensated sum over non-missing cells",
		Variables: VariableRequired, Result: KindNumber, Fn: sumDiagnostic})
	mustRegister(Spec{ID: CheckMissingCount, Summary: "number of missing cells",
		Variables: VariableRequired, Result: KindCount, Fn: missingCountDiagnostic})
	mustRegister(Spec{ID: CheckMissingFraction, Summary: "missing cells / total cells (0 when empty)",
		Variables: VariableRequired, Result: KindNumber, Fn: missingFractionDiagnostic})
	mustRegister(Spec{ID: CheckDimensionSize, Summary: "length of a named dimension",
		Variables: VariableOptional, Result: KindCount, Required: []string{"dimension"},
		Fn: dimensionSizeDiagnostic})
	mustRegister(Spec{ID: CheckMonotonic, Summary: "values are monotonic in the given direction",
		Variables: VariableRequired, Result: KindBool, Fn: monotonicDiagnostic})
	mustRegister(Spec{ID: CheckUnits, Summary: "units attribute matches, case/whitespace-insensitive",
		Variables: VariableRequired, Result: KindBool, Required: []string{"units"},
		Fn: unitsDiagnostic})
	mustRegister(Spec{ID: CheckAttribute, Summary: "variable attribute exists (and matches, when given)",
		Variables: VariableRequired, Result: KindBool, Required: []string{"attribute"},
		Fn: attributeDiagnostic})
	mustRegister(Spec{ID: CheckGlobalAttribute, Summary: "global attribute exists (and matches, when given)",
		Variables: VariableNone, Result: KindBool, Required: []string{"attribute"},
		Fn: globalAttributeDiagnostic})
	mustRegister(Spec{ID: CheckTemporalStart, Summary: "first value of the time coordinate",
		Variables: VariableNone, Result: KindNumber, Fn: temporalStartDiagnostic})
	mustRegister(Spec{ID: CheckTemporalEnd, Summary: "last value of the time coordinate",
		Variables: VariableNone, Result: KindNumber, Fn: temporalEndDiagnostic})
	mustRegister(Spec{ID: CheckTemporalRegular, Summary: "time coordinate steps are uniform",
		Variables: VariableNone, Result: KindBool, Fn: temporalRegularDiagnostic})

	if opts.Checker != nil {
		mustRegister(Spec{ID: CheckCFCompliance, Summary: "convention violations at or above a severity floor",
			Variables: VariableNone, Result: KindCount,
			Fn: complianceDiagnostic(opts.Checker, opts.ComplianceVersion)})
	}
	if opts.Tool != nil {
		mustRegister(Spec{ID: CheckGridDescription, Summary: "grid description matches expected attributes",
			Variables: VariableNone, Result: KindBool, Required: []string{"attributes"},
			Fn: describeDiagnostic(opts.Tool, operator.KindGrid)})
		mustRegister(Spec{ID: CheckZAxisDescription, Summary: "vertical axis description matches expected attributes",
			Variables: VariableNone, Result: KindBool, Required: []string{"attributes"},
			Fn: describeDiagnostic(opts.Tool, operator.KindZAxis)})
	}
	return r
}
