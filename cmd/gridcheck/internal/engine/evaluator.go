// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine evaluates rules against datasets and assembles the
// run report.
//
// The Evaluator owns one (rule, dataset) evaluation: selector
// resolution, the cache-fronted diagnostic invocation, and the
// comparison against the expected outcome. The Runner schedules
// evaluations across datasets on a bounded worker pool with per-dataset
// timeouts. Failures are isolated to their (rule, dataset) pair; one
// bad rule never aborts the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/cache"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/report"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/rules"
	"github.com/AleutianAI/gridcheck/pkg/logging"
)

// Evaluator runs single rules against single datasets.
//
// # Thread Safety
//
// Safe for concurrent use across datasets; a Dataset itself must not be
// shared between concurrent EvaluateRule calls.
type Evaluator struct {
	registry *diagnostic.Registry
	cache    *cache.Cache
	defaults rules.Defaults
	logger   *logging.Logger
}

// NewEvaluator wires an Evaluator.
func NewEvaluator(registry *diagnostic.Registry, c *cache.Cache, defaults rules.Defaults, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{
		registry: registry,
		cache:    c,
		defaults: defaults,
		logger:   logger,
	}
}

// EvaluateRule produces one terminal Result per resolved target of the
// rule on the dataset.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule *rules.Rule, ds dataset.Dataset) []report.Result {
	spec, ok := e.registry.Lookup(rule.Check)
	if !ok {
		// ValidateConfig rejects unknown checks before the run; this is
		// a safety net for a registry/config mismatch.
		return []report.Result{{
			Rule:    rule.Name,
			Dataset: ds.Path(),
			Status:  report.StatusErrored,
			Message: fmt.Sprintf("unknown check %q", rule.Check),
		}}
	}

	targets := e.resolveTargets(spec, rule, ds)
	if len(targets) == 0 {
		return []report.Result{{
			Rule:     rule.Name,
			Dataset:  ds.Path(),
			Status:   report.StatusSkipped,
			Expected: rule.Expected.String(),
			Message:  "no variables to check",
		}}
	}

	results := make([]report.Result, 0, len(targets))
	for _, target := range targets {
		results = append(results, e.evaluateTarget(ctx, rule, ds, target))
	}
	return results
}

// resolveTargets maps the rule's selector onto concrete targets. A
// dataset-wide diagnostic gets the empty target.
func (e *Evaluator) resolveTargets(spec diagnostic.Spec, rule *rules.Rule, ds dataset.Dataset) []string {
	if spec.Variables == diagnostic.VariableNone || rule.Variable.IsZero() {
		return []string{""}
	}
	if rule.Variable.All {
		return ds.VariableNames()
	}
	return rule.Variable.Names
}

// evaluateTarget runs the full PENDING→terminal lifecycle for one
// (rule, dataset, variable) triple.
func (e *Evaluator) evaluateTarget(ctx context.Context, rule *rules.Rule, ds dataset.Dataset, variable string) report.Result {
	result := report.Result{
		Rule:     rule.Name,
		Dataset:  ds.Path(),
		Variable: variable,
		Expected: rule.Expected.String(),
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	params := effectiveParams(rule)
	key, err := cache.NewKey(rule.Check, ds.Fingerprint(), variable, params)
	if err != nil {
		result.Status = report.StatusErrored
		result.Message = err.Error()
		return result
	}

	value, cached, err := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) (diagnostic.Value, error) {
		return e.registry.Run(ctx, rule.Check, ds, variable, params)
	})
	if err != nil {
		return e.classifyFailure(result, rule, err)
	}
	result.Computed = &value
	result.Cached = cached

	atol, rtol := rule.Tolerances(e.defaults)
	passed, message, err := compare(rule, value, atol, rtol)
	if err != nil {
		result.Status = report.StatusErrored
		result.Message = err.Error()
		return result
	}

	result.Message = message
	if passed {
		result.Status = report.StatusPassed
	} else {
		result.Status = report.StatusFailed
		e.logger.Debug("rule failed",
			"rule", rule.Name, "dataset", ds.Path(), "variable", variable, "message", message)
	}
	return result
}

// classifyFailure maps a diagnostic failure onto the terminal status
// the error taxonomy prescribes.
func (e *Evaluator) classifyFailure(result report.Result, rule *rules.Rule, err error) report.Result {
	var notFound *dataset.VariableNotFoundError
	if errors.As(err, &notFound) {
		if rule.Variable.All {
			result.Status = report.StatusSkipped
			result.Message = fmt.Sprintf("variable %q not present, skipped", notFound.Name)
			return result
		}
		result.Status = report.StatusFailed
		result.Message = err.Error()
		return result
	}

	result.Status = report.StatusErrored
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Message = "evaluation timed out"
	case errors.Is(err, context.Canceled):
		result.Message = "evaluation canceled"
	default:
		result.Message = err.Error()
	}
	return result
}

// effectiveParams clones the rule parameters and injects the severity
// floor for compliance rules, so the floor participates in the cache
// key like any other parameter.
func effectiveParams(rule *rules.Rule) diagnostic.Params {
	params := make(diagnostic.Params, len(rule.Params)+1)
	for k, v := range rule.Params {
		params[k] = v
	}
	if rule.Expected.Kind == rules.ExpectCompliance && rule.Expected.MinSeverity != "" {
		params["min_severity"] = rule.Expected.MinSeverity
	}
	return params
}
