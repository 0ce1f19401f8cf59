// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report collects per-evaluation results into a run report.
//
// Every (rule, dataset, variable) evaluation yields exactly one Result
// with a terminal status. The Aggregator is the concurrency point:
// workers record results as they finish, and Finalize produces the
// deterministic, sorted Report the renderers and the exit code are
// derived from.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
)

// Status is the lifecycle state of one evaluation.
type Status string

const (
	// StatusPending marks an evaluation not yet started.
	StatusPending Status = "PENDING"

	// StatusRunning marks an evaluation in flight.
	StatusRunning Status = "RUNNING"

	// StatusPassed marks a computed value that met the expectation.
	StatusPassed Status = "PASSED"

	// StatusFailed marks a computed value that did not.
	StatusFailed Status = "FAILED"

	// StatusErrored marks an evaluation that could not produce a value.
	StatusErrored Status = "ERRORED"

	// StatusSkipped marks an evaluation that did not apply, e.g. a
	// wildcard selector over a variable the dataset lacks.
	StatusSkipped Status = "SKIPPED"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// Result is the immutable outcome of one evaluation.
type Result struct {
	// Rule is the rule name.
	Rule string `json:"rule"`

	// Dataset is the dataset path (or collection pattern).
	Dataset string `json:"dataset"`

	// Variable is the resolved target variable, empty for dataset-wide
	// diagnostics.
	Variable string `json:"variable,omitempty"`

	// Status is the terminal state.
	Status Status `json:"status"`

	// Computed is the diagnostic output, when one was produced.
	Computed *diagnostic.Value `json:"computed,omitempty"`

	// Expected is the rendered expectation, e.g. "in [200, 330]".
	Expected string `json:"expected,omitempty"`

	// Message explains the outcome in one line.
	Message string `json:"message,omitempty"`

	// Cached marks a computed value served from the cache.
	Cached bool `json:"cached,omitempty"`

	// Duration is the evaluation wall time.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Report is the finalized outcome of a run.
type Report struct {
	// RunID uniquely identifies the run in logs and output.
	RunID string `json:"run_id"`

	// Started / Finished bound the run wall time.
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Results are sorted by rule, dataset, variable.
	Results []Result `json:"results"`

	// Counts tallies results per terminal status.
	Counts map[Status]int `json:"counts"`
}

// Passed reports the overall verdict: no failed and no errored results.
// Skipped evaluations do not count against a run.
func (r *Report) Passed() bool {
	return r.Counts[StatusFailed] == 0 && r.Counts[StatusErrored] == 0
}

// ExitCode maps the verdict to a process exit code.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// Aggregator collects results from concurrent workers.
//
// # Thread Safety
//
// Record is safe for concurrent use. Finalize is idempotent; results
// recorded after it are ignored.
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	started   time.Time
	results   []Result
	finalized *Report
}

// NewAggregator creates an Aggregator with a fresh run id.
func NewAggregator() *Aggregator {
	return &Aggregator{
		runID:   uuid.NewString(),
		started: time.Now(),
	}
}

// RunID returns the run identifier.
func (a *Aggregator) RunID() string { return a.runID }

// Record adds one terminal result. Non-terminal statuses are recorded
// as errored; a worker handing over an in-flight result is a bug.
func (a *Aggregator) Record(result Result) {
	if !result.Status.Terminal() {
		result.Status = StatusErrored
		if result.Message == "" {
			result.Message = "evaluation ended without a terminal status"
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized != nil {
		return
	}
	a.results = append(a.results, result)
}

// Finalize freezes the aggregator and returns the sorted report.
// Repeated calls return the same report.
func (a *Aggregator) Finalize() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized != nil {
		return a.finalized
	}

	results := make([]Result, len(a.results))
	copy(results, a.results)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Rule != results[j].Rule {
			return results[i].Rule < results[j].Rule
		}
		if results[i].Dataset != results[j].Dataset {
			return results[i].Dataset < results[j].Dataset
		}
		return results[i].Variable < results[j].Variable
	})

	counts := make(map[Status]int)
	for _, r := range results {
		counts[r.Status]++
	}

	a.finalized = &Report{
		RunID:    a.runID,
		Started:  a.started,
		Finished: time.Now(),
		Results:  results,
		Counts:   counts,
	}
	return a.finalized
}
