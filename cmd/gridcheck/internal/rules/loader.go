// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default tolerances and limits applied when the document omits them.
const (
	// DefaultRTol is deliberately tight: loose enough to absorb float
	// representation noise in scientific data, no more.
	DefaultRTol = 1e-6

	// DefaultATol is zero; absolute slack must be opted into.
	DefaultATol = 0.0

	// DefaultWorkers bounds the evaluation pool when unconfigured.
	DefaultWorkers = 4

	// DefaultDatasetTimeout bounds diagnostics over one dataset.
	DefaultDatasetTimeout = 5 * time.Minute
)

// ruleValidate is the validator instance for rule documents.
var ruleValidate *validator.Validate

func init() {
	ruleValidate = validator.New()
	ruleValidate.RegisterStructValidation(validateRuleStruct, Rule{})
}

// validateRuleStruct enforces cross-field rule constraints the tag
// grammar cannot express.
func validateRuleStruct(sl validator.StructLevel) {
	rule := sl.Current().Interface().(Rule)

	if rule.Expected.Kind == "" {
		sl.ReportError(rule.Expected, "Expected", "expected", "required", "")
	}
	if rule.ATol != nil && *rule.ATol < 0 {
		sl.ReportError(rule.ATol, "ATol", "atol", "gte", "0")
	}
	if rule.RTol != nil && *rule.RTol < 0 {
		sl.ReportError(rule.RTol, "RTol", "rtol", "gte", "0")
	}
}

// Load reads, parses, and structurally validates a rule configuration
// document.
//
// # Description
//
// Load fails fast with *ConfigurationError on unreadable files, YAML
// errors (unknown fields included), tag/struct validation failures, and
// duplicate rule names. Diagnostic-aware validation (unknown check ids,
// missing required parameters) is a second pass owned by the diagnostic
// registry, so the loader stays free of the check catalog.
//
// # Outputs
//
//   - *Config: The validated document with defaults applied.
//   - error: *ConfigurationError on any problem; the run must not start.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var confErr *ConfigurationError
		if errors.As(err, &confErr) {
			confErr.Path = path
			return nil, confErr
		}
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes and validates a rule document from bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("parse yaml: %w", err)}
	}

	if err := ruleValidate.Struct(&cfg); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("validate: %w", err)}
	}

	if _, err := parseFormatName(cfg.Format); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	seen := make(map[string]struct{}, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		if _, dup := seen[rule.Name]; dup {
			return nil, &ConfigurationError{Rule: rule.Name, Err: fmt.Errorf("duplicate rule name")}
		}
		seen[rule.Name] = struct{}{}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// parseFormatName mirrors dataset.ParseFormat without importing it; the
// rules package stays a leaf.
func parseFormatName(s string) (string, error) {
	switch s {
	case "NETCDF", "GRIB", "netcdf", "grib", "NC", "nc", "GRB", "grb":
		return s, nil
	default:
		return "", fmt.Errorf("unknown dataset format %q (want NETCDF or GRIB)", s)
	}
}

// applyDefaults fills unset run-wide settings. Explicit zero tolerances
// are kept; only absent fields receive the built-in values.
func applyDefaults(cfg *Config) {
	if cfg.Defaults.ATol == nil {
		atol := DefaultATol
		cfg.Defaults.ATol = &atol
	}
	if cfg.Defaults.RTol == nil {
		rtol := DefaultRTol
		cfg.Defaults.RTol = &rtol
	}
	if cfg.Defaults.Workers == 0 {
		cfg.Defaults.Workers = DefaultWorkers
	}
	if cfg.Defaults.DatasetTimeout == 0 {
		cfg.Defaults.DatasetTimeout = Duration(DefaultDatasetTimeout)
	}
}

// Template returns a commented starter configuration, mirroring the
// rule document grammar. Shown by "gridcheck template".
func Template() string {
	return `# gridcheck rule configuration
#
# files:  doublestar glob selecting the datasets to check ("**" supported)
# format: NETCDF or GRIB
files: "data/**/*.nc"
format: NETCDF

# per_file: true        # check each file separately instead of as one collection
# compliance_version: "1.8"   # CF ruleset version for cf_compliance checks

defaults:
  atol: 0               # absolute float tolerance
  rtol: 1.0e-6          # relative float tolerance
  workers: 4            # parallel (rule, dataset) evaluations
  dataset_timeout: 5m   # per-dataset diagnostic budget
  # cache_dir: ~/.gridcheck/cache   # enable the persistent diagnostic cache

rules:
  # Range check on a named variable.
  - name: max_temp
    variable: t2m
    check: max
    expected:
      range: {min: 200, max: 330}

  # Missing-data budget across every variable ("all" skips absentees).
  - name: missing_budget
    variable: all
    check: missing_fraction
    expected:
      range: {min: 0, max: 0.05}

  # Structural check with an exact scalar outcome.
  - name: lat_size
    variable: lat
    check: dimension_size
    parameters: {dimension: lat}
    expected:
      value: 180

  # Units must match after case/whitespace normalization.
  - name: temp_units
    variable: t2m
    check: units
    parameters: {units: K}
    expected:
      equals: true

  # Convention compliance via the external checker.
  - name: cf
    check: cf_compliance
    expected:
      compliance: zero_violations
      min_severity: high
`
}
