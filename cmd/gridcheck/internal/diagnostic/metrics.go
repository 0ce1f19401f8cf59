// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagnostic

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for diagnostic executions.
var meter = otel.Meter("gridcheck.diagnostic")

// Metrics for diagnostic executions.
var (
	runsTotal   metric.Int64Counter
	runDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"gridcheck_diagnostic_runs_total",
			metric.WithDescription("Total diagnostic executions by check and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"gridcheck_diagnostic_duration_seconds",
			metric.WithDescription("Diagnostic execution duration by check"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRun records one diagnostic execution.
//
// Thread Safety: Safe for concurrent use.
func recordRun(ctx context.Context, check string, ok bool, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	outcome := "ok"
	if !ok {
		outcome = "error"
	}

	attrs := metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	)

	runsTotal.Add(ctx, 1, attrs)
	runDuration.Record(ctx, duration.Seconds(), attrs)
}
