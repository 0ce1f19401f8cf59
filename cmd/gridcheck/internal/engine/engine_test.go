// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/cache"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/compliance"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/report"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/rules"
)

func f64(v float64) *float64 { return &v }

func testDefaults() rules.Defaults {
	return rules.Defaults{
		ATol:           f64(0),
		RTol:           f64(1e-6),
		Workers:        2,
		DatasetTimeout: rules.Duration(time.Minute),
	}
}

func newEvaluator(t *testing.T, checker compliance.Checker) *Evaluator {
	t.Helper()
	c, err := cache.Open(cache.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	registry := diagnostic.Catalog(diagnostic.CatalogOptions{Checker: checker})
	return NewEvaluator(registry, c, testDefaults(), nil)
}

func tempDataset(maxT float64) *dataset.Memory {
	return dataset.NewMemory("era5.nc").
		WithFingerprint(fmt.Sprintf("fp-%v", maxT)).
		WithVariable(&dataset.Variable{
			Name:   "t2m",
			Dims:   []string{"time"},
			Shape:  []int{3},
			Values: []float64{280.0, 290.5, maxT},
		})
}

func TestEvaluate_RangePassAndFail(t *testing.T) {
	e := newEvaluator(t, nil)
	rule := &rules.Rule{
		Name:     "max_temp",
		Variable: rules.Selector{Names: []string{"t2m"}},
		Check:    diagnostic.CheckMax,
		Expected: rules.Expected{Kind: rules.ExpectRange, Min: 200, Max: 330},
	}

	results := e.EvaluateRule(context.Background(), rule, tempDataset(310.4))
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusPassed, results[0].Status)
	require.NotNil(t, results[0].Computed)
	assert.Equal(t, 310.4, results[0].Computed.Number)

	results = e.EvaluateRule(context.Background(), rule, tempDataset(350.0))
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, "350")
	assert.Contains(t, results[0].Message, "in [200, 330]")
}

func TestEvaluate_ScalarTolerance(t *testing.T) {
	e := newEvaluator(t, nil)
	ds := dataset.NewMemory("s.nc").WithVariable(&dataset.Variable{
		Name: "x", Values: []float64{1.0000001},
	})

	// Within the default rtol of 1e-6.
	rule := &rules.Rule{
		Name:     "near_one",
		Variable: rules.Selector{Names: []string{"x"}},
		Check:    diagnostic.CheckMax,
		Expected: rules.Expected{Kind: rules.ExpectScalar, Value: 1.0},
	}
	results := e.EvaluateRule(context.Background(), rule, ds)
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusPassed, results[0].Status)

	// Tightening rtol to zero makes the same comparison fail.
	zero := 0.0
	rule2 := *rule
	rule2.Name = "exactly_one"
	rule2.RTol = &zero
	results = e.EvaluateRule(context.Background(), &rule2, ds)
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusFailed, results[0].Status)
}

func TestEvaluate_MissingVariableExplicitFails(t *testing.T) {
	e := newEvaluator(t, nil)
	rule := &rules.Rule{
		Name:     "has_precip",
		Variable: rules.Selector{Names: []string{"precip"}},
		Check:    diagnostic.CheckPresence,
		Expected: rules.Expected{Kind: rules.ExpectBool, Bool: true},
	}

	results := e.EvaluateRule(context.Background(), rule, tempDataset(300))
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, `variable "precip" not found`)
}

// phantomVars advertises variables its underlying dataset cannot
// deliver, standing in for files whose headers and payload disagree.
type phantomVars struct {
	dataset.Dataset
	phantom []string
}

func (p *phantomVars) VariableNames() []string {
	return append(p.Dataset.VariableNames(), p.phantom...)
}

func TestEvaluate_MissingVariableWildcardSkips(t *testing.T) {
	e := newEvaluator(t, nil)
	rule := &rules.Rule{
		Name:     "everything_present",
		Variable: rules.Selector{All: true},
		Check:    diagnostic.CheckPresence,
		Expected: rules.Expected{Kind: rules.ExpectBool, Bool: true},
	}
	ds := &phantomVars{Dataset: tempDataset(300), phantom: []string{"precip"}}

	results := e.EvaluateRule(context.Background(), rule, ds)
	require.Len(t, results, 2)

	byVar := map[string]report.Result{}
	for _, r := range results {
		byVar[r.Variable] = r
	}
	assert.Equal(t, report.StatusPassed, byVar["t2m"].Status)
	assert.Equal(t, report.StatusSkipped, byVar["precip"].Status)
	assert.Contains(t, byVar["precip"].Message, "skipped")
}

func TestEvaluate_WildcardOverEmptyDatasetSkips(t *testing.T) {
	e := newEvaluator(t, nil)
	rule := &rules.Rule{
		Name:     "all_complete",
		Variable: rules.Selector{All: true},
		Check:    diagnostic.CheckMissingFraction,
		Expected: rules.Expected{Kind: rules.ExpectScalar, Value: 0},
	}

	results := e.EvaluateRule(context.Background(), rule, dataset.NewMemory("empty.nc"))
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusSkipped, results[0].Status)
}

func TestEvaluate_ComplianceSeverityFloor(t *testing.T) {
	checker := &compliance.StaticChecker{Violations: []compliance.Violation{
		{Severity: compliance.SeverityWarning, Message: "units style"},
		{Severity: compliance.SeverityHigh, Message: "missing standard_name"},
	}}
	e := newEvaluator(t, checker)
	rule := &rules.Rule{
		Name:  "cf",
		Check: diagnostic.CheckCFCompliance,
		Expected: rules.Expected{
			Kind:        rules.ExpectCompliance,
			MinSeverity: "high",
		},
	}

	results := e.EvaluateRule(context.Background(), rule, tempDataset(300))
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusFailed, results[0].Status)
	require.NotNil(t, results[0].Computed)
	assert.Equal(t, 1, results[0].Computed.Count)
	assert.Contains(t, results[0].Message, "missing standard_name")
}

func TestEvaluate_DiagnosticErrorIsolatedToRule(t *testing.T) {
	e := newEvaluator(t, nil)
	ds := dataset.NewMemory("bad.nc").WithVariable(&dataset.Variable{
		Name: "x", Values: []float64{1, 2},
	})

	broken := &rules.Rule{
		Name:     "broken",
		Variable: rules.Selector{Names: []string{"x"}},
		Check:    diagnostic.CheckMonotonic,
		Params:   map[string]any{"direction": "sideways"},
		Expected: rules.Expected{Kind: rules.ExpectBool, Bool: true},
	}
	healthy := &rules.Rule{
		Name:     "healthy",
		Variable: rules.Selector{Names: []string{"x"}},
		Check:    diagnostic.CheckMax,
		Expected: rules.Expected{Kind: rules.ExpectScalar, Value: 2},
	}

	brokenResults := e.EvaluateRule(context.Background(), broken, ds)
	healthyResults := e.EvaluateRule(context.Background(), healthy, ds)

	require.Len(t, brokenResults, 1)
	assert.Equal(t, report.StatusErrored, brokenResults[0].Status)
	require.Len(t, healthyResults, 1)
	assert.Equal(t, report.StatusPassed, healthyResults[0].Status)
}

func TestEvaluate_SecondRunServedFromCache(t *testing.T) {
	e := newEvaluator(t, nil)
	ds := tempDataset(310.4)
	rule := &rules.Rule{
		Name:     "max_temp",
		Variable: rules.Selector{Names: []string{"t2m"}},
		Check:    diagnostic.CheckMax,
		Expected: rules.Expected{Kind: rules.ExpectRange, Min: 200, Max: 330},
	}

	first := e.EvaluateRule(context.Background(), rule, ds)
	second := e.EvaluateRule(context.Background(), rule, ds)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.False(t, first[0].Cached)
	assert.True(t, second[0].Cached)
	assert.Equal(t, first[0].Computed.Number, second[0].Computed.Number)
}

// runnerFixture creates real files for glob expansion and an opener
// that serves in-memory datasets keyed by file name.
func runnerFixture(t *testing.T, byName map[string]dataset.Dataset, failing map[string]error) (string, dataset.Opener) {
	t.Helper()
	dir := t.TempDir()
	for name := range byName {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("stub"), 0o600))
	}
	for name := range failing {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("stub"), 0o600))
	}
	opener := dataset.OpenerFunc(func(_ context.Context, path string) (dataset.Dataset, error) {
		name := filepath.Base(path)
		if err, ok := failing[name]; ok {
			return nil, &dataset.OpenError{Path: path, Err: err}
		}
		ds, ok := byName[name]
		if !ok {
			return nil, &dataset.OpenError{Path: path, Err: os.ErrNotExist}
		}
		return ds, nil
	})
	return dir, opener
}

func runnerConfig(dir string, perFile bool) *rules.Config {
	return &rules.Config{
		Files:   filepath.Join(dir, "*.nc"),
		Format:  "NETCDF",
		PerFile: perFile,
		Defaults: rules.Defaults{
			RTol:           f64(1e-6),
			Workers:        2,
			DatasetTimeout: rules.Duration(time.Minute),
		},
		Rules: []rules.Rule{{
			Name:     "max_temp",
			Variable: rules.Selector{Names: []string{"t2m"}},
			Check:    diagnostic.CheckMax,
			Expected: rules.Expected{Kind: rules.ExpectRange, Min: 200, Max: 330},
		}},
	}
}

func TestRunner_PerFileIsolatesOpenFailures(t *testing.T) {
	dir, opener := runnerFixture(t,
		map[string]dataset.Dataset{
			"good.nc": dataset.NewMemory("good.nc").WithFingerprint("fp-good").
				WithVariable(&dataset.Variable{Name: "t2m", Values: []float64{300}}),
		},
		map[string]error{"corrupt.nc": fmt.Errorf("truncated header")},
	)

	e := newEvaluator(t, nil)
	runner := NewRunner(opener, e, nil)
	rep, err := runner.Run(context.Background(), runnerConfig(dir, true))
	require.NoError(t, err)

	require.Len(t, rep.Results, 2)
	assert.Equal(t, 1, rep.Counts[report.StatusPassed])
	assert.Equal(t, 1, rep.Counts[report.StatusErrored])
	assert.Equal(t, 1, rep.ExitCode())

	for _, r := range rep.Results {
		if r.Status == report.StatusErrored {
			assert.Contains(t, r.Message, "truncated header")
		}
	}
}

func TestRunner_CollectionMode(t *testing.T) {
	jan := dataset.NewMemory("jan.nc").WithFingerprint("fp-jan").
		WithVariable(&dataset.Variable{Name: "t2m", Dims: []string{"time"}, Shape: []int{1}, Values: []float64{280}})
	feb := dataset.NewMemory("feb.nc").WithFingerprint("fp-feb").
		WithVariable(&dataset.Variable{Name: "t2m", Dims: []string{"time"}, Shape: []int{1}, Values: []float64{310}})
	dir, opener := runnerFixture(t,
		map[string]dataset.Dataset{"jan.nc": jan, "feb.nc": feb}, nil)

	e := newEvaluator(t, nil)
	runner := NewRunner(opener, e, nil)
	rep, err := runner.Run(context.Background(), runnerConfig(dir, false))
	require.NoError(t, err)

	// One logical dataset, one rule, one result over the concatenation.
	require.Len(t, rep.Results, 1)
	assert.Equal(t, report.StatusPassed, rep.Results[0].Status)
	assert.Equal(t, 310.0, rep.Results[0].Computed.Number)
	assert.Equal(t, 0, rep.ExitCode())
}

func TestRunner_UnmatchableGlobIsConfigurationError(t *testing.T) {
	e := newEvaluator(t, nil)
	runner := NewRunner(dataset.OpenerFunc(func(context.Context, string) (dataset.Dataset, error) {
		t.Fatal("opener must not be called")
		return nil, nil
	}), e, nil)

	cfg := runnerConfig(t.TempDir(), true)
	_, err := runner.Run(context.Background(), cfg)
	var confErr *rules.ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestRunner_DatasetTimeoutErrorsPendingRules(t *testing.T) {
	registry := diagnostic.NewRegistry()
	require.NoError(t, registry.Register(diagnostic.Spec{
		ID:        "stall",
		Variables: diagnostic.VariableNone,
		Result:    diagnostic.KindBool,
		Fn: func(ctx context.Context, _ dataset.Dataset, _ string, _ diagnostic.Params) (diagnostic.Value, error) {
			<-ctx.Done()
			return diagnostic.Value{}, ctx.Err()
		},
	}))
	require.NoError(t, registry.Register(diagnostic.Spec{
		ID:        "instant",
		Variables: diagnostic.VariableNone,
		Result:    diagnostic.KindBool,
		Fn: func(context.Context, dataset.Dataset, string, diagnostic.Params) (diagnostic.Value, error) {
			return diagnostic.BoolValue(true), nil
		},
	}))

	c, err := cache.Open(cache.Config{})
	require.NoError(t, err)
	defer c.Close()

	dir, opener := runnerFixture(t, map[string]dataset.Dataset{
		"slow.nc": dataset.NewMemory("slow.nc").WithFingerprint("fp-slow"),
	}, nil)

	cfg := &rules.Config{
		Files:   filepath.Join(dir, "*.nc"),
		Format:  "NETCDF",
		PerFile: true,
		Defaults: rules.Defaults{
			Workers:        1,
			DatasetTimeout: rules.Duration(50 * time.Millisecond),
		},
		Rules: []rules.Rule{
			{Name: "stalls", Check: "stall",
				Expected: rules.Expected{Kind: rules.ExpectBool, Bool: true}},
			{Name: "never_runs", Check: "instant",
				Expected: rules.Expected{Kind: rules.ExpectBool, Bool: true}},
		},
	}

	evaluator := NewEvaluator(registry, c, cfg.Defaults, nil)
	runner := NewRunner(opener, evaluator, nil)
	rep, err := runner.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, rep.Results, 2)
	assert.Equal(t, 2, rep.Counts[report.StatusErrored])

	byRule := map[string]report.Result{}
	for _, r := range rep.Results {
		byRule[r.Rule] = r
	}
	assert.Contains(t, byRule["stalls"].Message, "timed out")
	assert.Contains(t, byRule["never_runs"].Message, "budget")
}

func TestCompare_ToleranceFormula(t *testing.T) {
	tests := []struct {
		got, want, atol, rtol float64
		pass                  bool
	}{
		{100, 100, 0, 0, true},
		{100.0000001, 100, 0, 1e-6, true},
		{100.001, 100, 0, 1e-6, false},
		{100.001, 100, 0.01, 0, true},
		{-5, 5, 0, 1e-6, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.pass, withinTolerance(tt.got, tt.want, tt.atol, tt.rtol),
			"got=%v want=%v atol=%v rtol=%v", tt.got, tt.want, tt.atol, tt.rtol)
	}
}

func TestCompare_KindMismatchIsComparisonError(t *testing.T) {
	rule := &rules.Rule{
		Name:     "r",
		Expected: rules.Expected{Kind: rules.ExpectBool, Bool: true},
	}
	_, _, err := compare(rule, diagnostic.NumberValue(1), 0, 0)
	var cmpErr *ComparisonError
	require.ErrorAs(t, err, &cmpErr)
	assert.Equal(t, "r", cmpErr.Rule)
}
