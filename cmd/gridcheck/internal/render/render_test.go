// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/report"
)

func sampleReport() *report.Report {
	computed := diagnostic.NumberValue(350)
	return &report.Report{
		RunID:    "run-123",
		Started:  time.Now(),
		Finished: time.Now(),
		Results: []report.Result{
			{Rule: "max_temp", Dataset: "era5.nc", Variable: "t2m",
				Status: report.StatusFailed, Computed: &computed,
				Expected: "in [200, 330]", Message: "computed 350, expected in [200, 330]"},
			{Rule: "missing_budget", Dataset: "era5.nc", Variable: "t2m",
				Status: report.StatusPassed, Cached: true},
		},
		Counts: map[report.Status]int{
			report.StatusPassed: 1,
			report.StatusFailed: 1,
		},
	}
}

func TestReport_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).Report(sampleReport())
	out := buf.String()

	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "max_temp")
	assert.Contains(t, out, "era5.nc/t2m")
	assert.Contains(t, out, "computed 350, expected in [200, 330]")
	assert.Contains(t, out, "(cached)")
	assert.Contains(t, out, "FAILED: 1 passed, 1 failed, 0 errored, 0 skipped")
	assert.NotContains(t, out, "\x1b[", "plain renderer must not emit ANSI escapes")
}

func TestReport_JSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlain(&buf).JSON(sampleReport()))

	var decoded report.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-123", decoded.RunID)
	require.Len(t, decoded.Results, 2)
	require.NotNil(t, decoded.Results[0].Computed)
	assert.Equal(t, 350.0, decoded.Results[0].Computed.Number)
	assert.Equal(t, 1, decoded.Counts[report.StatusFailed])
}
