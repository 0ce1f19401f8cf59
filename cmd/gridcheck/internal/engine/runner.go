// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/report"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/rules"
	"github.com/AleutianAI/gridcheck/pkg/logging"
)

// Runner schedules rule evaluation across the target datasets.
//
// Datasets are the unit of parallelism: each worker opens its own
// handle, runs every rule against it sequentially, and closes it. That
// keeps non-thread-safe decoders correct without per-read locking.
type Runner struct {
	opener    dataset.Opener
	evaluator *Evaluator
	logger    *logging.Logger
}

// NewRunner wires a Runner.
func NewRunner(opener dataset.Opener, evaluator *Evaluator, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{opener: opener, evaluator: evaluator, logger: logger}
}

// Run evaluates the full configuration and returns the finalized
// report.
//
// # Description
//
// The files glob is expanded once; with per_file each match is its own
// dataset, otherwise all matches form one collection. Every (rule,
// dataset) pair lands in the report with a terminal status: open
// failures error all rules on that dataset, per-dataset timeouts error
// the pending rules, and cancellation errors whatever has not finished.
// The returned error is reserved for pre-evaluation failures (an
// unmatchable glob); evaluation failures live in the report.
func (r *Runner) Run(ctx context.Context, cfg *rules.Config) (*report.Report, error) {
	paths, err := dataset.ExpandPattern(cfg.Files)
	if err != nil {
		return nil, &rules.ConfigurationError{Err: fmt.Errorf("files %q: %w", cfg.Files, err)}
	}

	type unit struct {
		label string
		open  func(ctx context.Context) (dataset.Dataset, error)
	}
	var units []unit
	if cfg.PerFile {
		for _, path := range paths {
			path := path
			units = append(units, unit{
				label: path,
				open: func(ctx context.Context) (dataset.Dataset, error) {
					return r.opener.Open(ctx, path)
				},
			})
		}
	} else {
		units = append(units, unit{
			label: cfg.Files,
			open: func(ctx context.Context) (dataset.Dataset, error) {
				return dataset.OpenCollection(ctx, r.opener, cfg.Files)
			},
		})
	}

	agg := report.NewAggregator()
	r.logger.Info("run started",
		"run_id", agg.RunID(), "datasets", len(units), "rules", len(cfg.Rules),
		"workers", cfg.Defaults.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Defaults.Workers)
	for _, u := range units {
		u := u
		g.Go(func() error {
			r.evaluateDataset(gctx, cfg, u.label, u.open, agg)
			return nil
		})
	}
	// Workers never return errors; failures are isolated into results.
	_ = g.Wait()

	rep := agg.Finalize()
	r.logger.Info("run finished",
		"run_id", rep.RunID,
		"passed", rep.Counts[report.StatusPassed],
		"failed", rep.Counts[report.StatusFailed],
		"errored", rep.Counts[report.StatusErrored],
		"skipped", rep.Counts[report.StatusSkipped],
		"duration", rep.Finished.Sub(rep.Started).String())
	return rep, nil
}

// evaluateDataset runs every rule against one dataset under the
// per-dataset timeout, recording a terminal result for each.
func (r *Runner) evaluateDataset(ctx context.Context, cfg *rules.Config, label string, open func(context.Context) (dataset.Dataset, error), agg *report.Aggregator) {
	timeout := time.Duration(cfg.Defaults.DatasetTimeout)
	dsCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dsCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ds, err := open(dsCtx)
	if err != nil {
		openErr := err
		var oe *dataset.OpenError
		if !errors.As(err, &oe) {
			openErr = &dataset.OpenError{Path: label, Err: err}
		}
		r.logger.Error("dataset open failed", "dataset", label, "error", err)
		for i := range cfg.Rules {
			agg.Record(report.Result{
				Rule:    cfg.Rules[i].Name,
				Dataset: label,
				Status:  report.StatusErrored,
				Message: openErr.Error(),
			})
		}
		return
	}
	defer func() {
		if err := ds.Close(); err != nil {
			r.logger.Warn("dataset close failed", "dataset", label, "error", err)
		}
	}()

	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if err := dsCtx.Err(); err != nil {
			cause := "evaluation canceled before this rule ran"
			if errors.Is(err, context.DeadlineExceeded) {
				cause = fmt.Sprintf("dataset budget of %s exhausted before this rule ran", timeout)
			}
			agg.Record(report.Result{
				Rule:    rule.Name,
				Dataset: ds.Path(),
				Status:  report.StatusErrored,
				Message: cause,
			})
			continue
		}
		for _, result := range r.evaluator.EvaluateRule(dsCtx, rule, ds) {
			agg.Record(result)
		}
	}
}
