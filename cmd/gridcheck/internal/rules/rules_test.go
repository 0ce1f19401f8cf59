// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
files: "data/*.nc"
format: NETCDF
defaults:
  atol: 0.001
  rtol: 1.0e-5
  workers: 2
  dataset_timeout: 90s
rules:
  - name: max_temp
    variable: t2m
    check: max
    expected:
      range: {min: 200, max: 330}
  - name: has_time
    variable: [t2m, precip]
    check: presence
    expected:
      equals: true
  - name: cf
    check: cf_compliance
    expected:
      compliance: zero_violations
      min_severity: high
  - name: everything_complete
    variable: all
    check: missing_fraction
    rtol: 0
    atol: 0.01
    expected:
      value: 0
`

func TestParse_ValidDocument(t *testing.T) {
	cfg, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	assert.Equal(t, "data/*.nc", cfg.Files)
	assert.Equal(t, 2, cfg.Defaults.Workers)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Defaults.DatasetTimeout))
	require.Len(t, cfg.Rules, 4)

	maxTemp := cfg.Rules[0]
	assert.Equal(t, []string{"t2m"}, maxTemp.Variable.Names)
	assert.Equal(t, ExpectRange, maxTemp.Expected.Kind)
	assert.Equal(t, 200.0, maxTemp.Expected.Min)
	assert.Equal(t, 330.0, maxTemp.Expected.Max)

	hasTime := cfg.Rules[1]
	assert.Equal(t, []string{"t2m", "precip"}, hasTime.Variable.Names)
	assert.Equal(t, ExpectBool, hasTime.Expected.Kind)
	assert.True(t, hasTime.Expected.Bool)

	cf := cfg.Rules[2]
	assert.True(t, cf.Variable.IsZero())
	assert.Equal(t, ExpectCompliance, cf.Expected.Kind)
	assert.Equal(t, "high", cf.Expected.MinSeverity)

	complete := cfg.Rules[3]
	assert.True(t, complete.Variable.All)
	atol, rtol := complete.Tolerances(cfg.Defaults)
	assert.Equal(t, 0.01, atol)
	assert.Equal(t, 0.0, rtol)
}

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(`
files: "x.nc"
format: GRIB
rules:
  - name: r
    variable: v
    check: min
    expected: {value: 1}
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Defaults.RTol)
	require.NotNil(t, cfg.Defaults.ATol)
	assert.Equal(t, DefaultRTol, *cfg.Defaults.RTol)
	assert.Equal(t, DefaultATol, *cfg.Defaults.ATol)
	assert.Equal(t, DefaultWorkers, cfg.Defaults.Workers)
	assert.Equal(t, DefaultDatasetTimeout, time.Duration(cfg.Defaults.DatasetTimeout))
}

func TestParse_ExplicitZeroTolerancesKept(t *testing.T) {
	// A document asking for exact comparison must not be handed the
	// built-in slack back.
	cfg, err := Parse([]byte(`
files: "x.nc"
format: NETCDF
defaults:
  atol: 0
  rtol: 0
rules:
  - name: exact
    variable: v
    check: min
    expected: {value: 1}
`))
	require.NoError(t, err)

	atol, rtol := cfg.Rules[0].Tolerances(cfg.Defaults)
	assert.Equal(t, 0.0, atol)
	assert.Equal(t, 0.0, rtol)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing files", "format: NETCDF\nrules:\n  - {name: r, variable: v, check: min, expected: {value: 1}}"},
		{"missing rules", "files: x\nformat: NETCDF"},
		{"unknown format", "files: x\nformat: ZARR\nrules:\n  - {name: r, variable: v, check: min, expected: {value: 1}}"},
		{"unknown field", "files: x\nformat: NETCDF\nbogus: 1\nrules:\n  - {name: r, variable: v, check: min, expected: {value: 1}}"},
		{"rule without name", "files: x\nformat: NETCDF\nrules:\n  - {variable: v, check: min, expected: {value: 1}}"},
		{"rule without check", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, expected: {value: 1}}"},
		{"rule without expected", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, check: min}"},
		{"two expected variants", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, check: min, expected: {value: 1, equals: true}}"},
		{"range missing max", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, check: min, expected: {range: {min: 1}}}"},
		{"range inverted", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, check: min, expected: {range: {min: 2, max: 1}}}"},
		{"bad compliance token", "files: x\nformat: NETCDF\nrules:\n  - {name: r, check: cf_compliance, expected: {compliance: none}}"},
		{"empty selector", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: [], check: min, expected: {value: 1}}"},
		{"negative atol", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, check: min, atol: -1, expected: {value: 1}}"},
		{"duplicate names", "files: x\nformat: NETCDF\nrules:\n  - {name: r, variable: v, check: min, expected: {value: 1}}\n  - {name: r, variable: v, check: max, expected: {value: 1}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var confErr *ConfigurationError
			require.ErrorAs(t, err, &confErr, "document must be rejected")
		})
	}
}

func TestLoad_AttachesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("files: x\nformat: NETCDF"), 0o600))

	_, err := Load(path)
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, path, confErr.Path)

	_, err = Load(filepath.Join(dir, "absent.yaml"))
	require.ErrorAs(t, err, &confErr)
}

func TestSelector_Rendering(t *testing.T) {
	all := Selector{All: true}
	assert.Equal(t, "all", all.String())

	one := Selector{Names: []string{"t2m"}}
	assert.Equal(t, "t2m", one.String())
	assert.False(t, one.IsZero())

	var unset Selector
	assert.True(t, unset.IsZero())
}

func TestTemplate_ParsesBack(t *testing.T) {
	// The emitted template must itself be a loadable document.
	cfg, err := Parse([]byte(Template()))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Rules)
}

func TestExpected_String(t *testing.T) {
	assert.Equal(t, "in [200, 330]", Expected{Kind: ExpectRange, Min: 200, Max: 330}.String())
	assert.Equal(t, "= 5", Expected{Kind: ExpectScalar, Value: 5}.String())
	assert.Equal(t, "= true", Expected{Kind: ExpectBool, Bool: true}.String())
	assert.Equal(t, "no violations >= high", Expected{Kind: ExpectCompliance, MinSeverity: "high"}.String())
}
