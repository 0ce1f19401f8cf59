// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"info", SeverityInfo, false},
		{"WARNING", SeverityWarning, false},
		{"medium", SeverityWarning, false},
		{"error", SeverityHigh, false},
		{"high", SeverityHigh, false},
		{"FATAL", SeverityCritical, false},
		{" critical ", SeverityCritical, false},
		{"catastrophic", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverity_AtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityInfo))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityWarning.AtLeast(SeverityHigh))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
}

func TestCountAtLeast(t *testing.T) {
	violations := []Violation{
		{Severity: SeverityWarning, Message: "units not canonical"},
		{Severity: SeverityHigh, Message: "missing standard_name"},
		{Severity: SeverityInfo, Message: "optional attribute absent"},
	}

	assert.Equal(t, 3, CountAtLeast(violations, SeverityInfo))
	assert.Equal(t, 2, CountAtLeast(violations, SeverityWarning))
	assert.Equal(t, 1, CountAtLeast(violations, SeverityHigh))
	assert.Equal(t, 0, CountAtLeast(violations, SeverityCritical))
	assert.Equal(t, 0, CountAtLeast(nil, SeverityInfo))
}

func TestParseOutput(t *testing.T) {
	output := `CF checker version 4.1.0
Checking variable: t2m
WARNING: attribute 'units' on variable 't2m' is not recommended
ERROR: missing required attribute 'standard_name'
noise without severity prefix
FATAL: file structure is not CF parseable
INFO:
`
	violations := ParseOutput(output)
	require.Len(t, violations, 3)
	assert.Equal(t, SeverityWarning, violations[0].Severity)
	assert.Equal(t, SeverityHigh, violations[1].Severity)
	assert.Equal(t, "missing required attribute 'standard_name'", violations[1].Message)
	assert.Equal(t, SeverityCritical, violations[2].Severity)
}
