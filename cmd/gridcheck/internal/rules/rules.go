// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rules holds the declarative rule model and its YAML loader.
//
// Rules are tagged data, not code: the evaluator can validate, serialize,
// and diff a rule set without executing anything. A Rule names a
// diagnostic, selects target variables, carries parameters, and states
// the expected outcome as one of four variants (scalar, range, boolean,
// zero compliance violations). Rules are immutable once loaded.
package rules

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// WildcardVariable selects every variable present in the dataset.
const WildcardVariable = "all"

// Selector picks the target variables of a rule: a single name, a list
// of names, or the wildcard.
type Selector struct {
	// Names are the explicitly selected variables. Empty iff All.
	Names []string

	// All marks the wildcard selector.
	All bool
}

// UnmarshalYAML accepts "t2m", ["t2m", "precip"], or "all".
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		if name == WildcardVariable {
			s.All = true
			return nil
		}
		if name == "" {
			return fmt.Errorf("variable selector must not be empty")
		}
		s.Names = []string{name}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		if len(names) == 0 {
			return fmt.Errorf("variable selector list must not be empty")
		}
		s.Names = names
		return nil
	default:
		return fmt.Errorf("variable selector must be a name, a list, or %q", WildcardVariable)
	}
}

// MarshalYAML renders the selector back to its compact form.
func (s Selector) MarshalYAML() (any, error) {
	if s.All {
		return WildcardVariable, nil
	}
	if len(s.Names) == 1 {
		return s.Names[0], nil
	}
	return s.Names, nil
}

// String returns a canonical rendering used in cache keys and messages.
func (s Selector) String() string {
	if s.All {
		return WildcardVariable
	}
	if len(s.Names) == 1 {
		return s.Names[0]
	}
	return fmt.Sprintf("%v", s.Names)
}

// IsZero reports an unset selector (rule without a variable clause).
func (s Selector) IsZero() bool {
	return !s.All && len(s.Names) == 0
}

// Rule is one declarative check. Immutable after Load.
type Rule struct {
	// Name identifies the rule in reports and logs.
	Name string `yaml:"name" validate:"required"`

	// Variable selects the target variables. Diagnostics that inspect
	// the whole dataset (e.g. cf_compliance) leave it unset.
	Variable Selector `yaml:"variable,omitempty"`

	// Check names the diagnostic to run.
	Check string `yaml:"check" validate:"required"`

	// Params are diagnostic-specific options.
	Params map[string]any `yaml:"parameters,omitempty"`

	// Expected states the outcome the computed value is compared with.
	Expected Expected `yaml:"expected"`

	// ATol / RTol override the global float comparison tolerances for
	// this rule when non-nil.
	ATol *float64 `yaml:"atol,omitempty"`
	RTol *float64 `yaml:"rtol,omitempty"`
}

// Tolerances resolves the rule's effective tolerances: per-rule values
// win over document defaults, which win over the built-in defaults. An
// explicit zero at either level means exact comparison.
func (r *Rule) Tolerances(d Defaults) (atol, rtol float64) {
	atol, rtol = DefaultATol, DefaultRTol
	if d.ATol != nil {
		atol = *d.ATol
	}
	if d.RTol != nil {
		rtol = *d.RTol
	}
	if r.ATol != nil {
		atol = *r.ATol
	}
	if r.RTol != nil {
		rtol = *r.RTol
	}
	return atol, rtol
}

// Duration wraps time.Duration with "5m"-style YAML parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Defaults are run-wide settings every rule inherits unless overridden.
type Defaults struct {
	// ATol / RTol are the default float comparison tolerances. Nil
	// means unset; an explicit zero requests exact comparison.
	ATol *float64 `yaml:"atol"`
	RTol *float64 `yaml:"rtol"`

	// Workers bounds the evaluation worker pool.
	Workers int `yaml:"workers" validate:"gte=0"`

	// DatasetTimeout bounds diagnostics over a single dataset; expired
	// evaluations are recorded as errored, never hung.
	DatasetTimeout Duration `yaml:"dataset_timeout"`

	// CacheDir enables the persistent diagnostic cache when non-empty.
	CacheDir string `yaml:"cache_dir"`
}

// Config is the full rule configuration document.
type Config struct {
	// Files is the doublestar glob selecting target datasets.
	Files string `yaml:"files" validate:"required"`

	// Format is the dataset format, NETCDF or GRIB.
	Format string `yaml:"format" validate:"required"`

	// PerFile evaluates each matched file as its own dataset instead of
	// one logical collection.
	PerFile bool `yaml:"per_file"`

	// ComplianceVersion pins the convention ruleset version handed to
	// the external checker (empty = checker default).
	ComplianceVersion string `yaml:"compliance_version"`

	// Defaults are the run-wide settings.
	Defaults Defaults `yaml:"defaults"`

	// Rules are evaluated in order against every target dataset.
	Rules []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

// ConfigurationError reports a malformed or incomplete rule document.
// It is fatal: the run aborts before any dataset I/O.
type ConfigurationError struct {
	// Path is the configuration file, when known.
	Path string

	// Rule is the offending rule name, when the error is rule-scoped.
	Rule string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Rule != "" && e.Path != "":
		return fmt.Sprintf("configuration %s: rule %q: %v", e.Path, e.Rule, e.Err)
	case e.Rule != "":
		return fmt.Sprintf("configuration: rule %q: %v", e.Rule, e.Err)
	case e.Path != "":
		return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("configuration: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }
