// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagnostic

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// formatMatches compares a sniffed full format against the expected
// spelling. "NETCDF4" accepts both "NETCDF4" and "NETCDF4_CLASSIC";
// an expectation carrying a data-model suffix must match exactly.
func formatMatches(full, want string) bool {
	if full == want {
		return true
	}
	base, _, _ := strings.Cut(full, "_")
	return !strings.Contains(want, "_") && base == want
}

// formatDiagnostic verifies the actual on-disk format of every file
// behind the dataset against the "format" parameter, e.g. "NETCDF4",
// "NETCDF3_CLASSIC", or "GRIB2". The configured run format only selects
// the decoder; this check reads the magic bytes, so a mislabeled file
// fails it even when the decoder happens to cope. Mismatches become
// detail lines carrying the sniffed format.
func formatDiagnostic(_ context.Context, ds dataset.Dataset, _ string, params Params) (Value, error) {
	want, err := params.StringOr("format", "")
	if err != nil {
		return Value{}, err
	}
	if want == "" {
		return Value{}, fmt.Errorf("parameter %q must not be empty", "format")
	}

	var detail []string
	for _, path := range memberPaths(ds) {
		full, err := dataset.FullFormat(path)
		if err != nil {
			return Value{}, err
		}
		if !formatMatches(full, want) {
			detail = append(detail, fmt.Sprintf("%s: %s", path, full))
		}
	}
	v := BoolValue(len(detail) == 0)
	v.Detail = detail
	return v, nil
}
