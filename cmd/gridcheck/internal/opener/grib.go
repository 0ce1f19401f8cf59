// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package opener

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// GRIBOpener decodes GRIB files by converting them to NetCDF with the
// climate-operator binary and decoding the conversion. The fingerprint
// and path identify the original GRIB file, so caching behaves as if
// the file were read directly; the conversion artifact is deleted as
// soon as decoding finishes.
type GRIBOpener struct {
	// OperatorBinary is the cdo-compatible executable.
	OperatorBinary string
}

// Open implements dataset.Opener.
func (o *GRIBOpener) Open(ctx context.Context, path string) (dataset.Dataset, error) {
	fp, err := dataset.FileFingerprint(path)
	if err != nil {
		return nil, &dataset.OpenError{Path: path, Err: err}
	}

	tmpDir, err := os.MkdirTemp("", "gridcheck-grib-*")
	if err != nil {
		return nil, &dataset.OpenError{Path: path, Err: err}
	}
	defer os.RemoveAll(tmpDir)

	converted := filepath.Join(tmpDir, "converted.nc")
	cmd := exec.CommandContext(ctx, o.OperatorBinary, "-f", "nc", "copy", path, converted)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &dataset.OpenError{Path: path, Err: ctx.Err()}
		}
		return nil, &dataset.OpenError{Path: path,
			Err: fmt.Errorf("convert to netcdf: %w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	mem, err := decodeNetCDF(converted, path)
	if err != nil {
		return nil, err
	}
	return mem.WithFingerprint(fp), nil
}

var (
	_ dataset.Opener = (*NetCDFOpener)(nil)
	_ dataset.Opener = (*GRIBOpener)(nil)
)
