// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package opener provides the production dataset.Opener implementations.
//
// NetCDF files are decoded in-process with go-native-netcdf. GRIB files
// are converted to NetCDF through the climate-operator binary first and
// then decoded the same way; decoding is eager, so the conversion
// artifact is deleted before Open returns.
package opener

import (
	"fmt"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// ForFormat returns the Opener for a dataset format. The operator
// binary is only needed for GRIB.
func ForFormat(format dataset.Format, operatorBinary string) (dataset.Opener, error) {
	switch format {
	case dataset.FormatNetCDF:
		return &NetCDFOpener{}, nil
	case dataset.FormatGRIB:
		if operatorBinary == "" {
			return nil, fmt.Errorf("GRIB decoding needs the climate-operator binary")
		}
		return &GRIBOpener{OperatorBinary: operatorBinary}, nil
	default:
		return nil, fmt.Errorf("no opener for format %q", format)
	}
}
