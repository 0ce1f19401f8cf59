// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dataset defines the accessor boundary between the rule engine
// and the external NetCDF/GRIB decoding libraries.
//
// The engine never decodes binary formats itself. It consumes the Dataset
// interface, which an Opener produces from a file path. The package ships
// an in-memory implementation (Memory) used by fakes and tests, and a
// Collection that presents several files as one logical dataset.
//
// Every Dataset carries a stable fingerprint derived from its content
// identity (path, size, mtime). The fingerprint is part of every cache
// key, so a changed file is a cache miss and a byte-identical file is a
// hit, across runs.
package dataset

import (
	"context"
	"fmt"
	"strings"
)

// Format identifies the on-disk encoding of a dataset.
type Format string

const (
	// FormatNetCDF is the NetCDF family (classic and netCDF-4).
	FormatNetCDF Format = "NETCDF"

	// FormatGRIB is the GRIB family (editions 1 and 2).
	FormatGRIB Format = "GRIB"
)

// ParseFormat normalizes a format string from configuration.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NETCDF", "NC":
		return FormatNetCDF, nil
	case "GRIB", "GRB":
		return FormatGRIB, nil
	default:
		return "", fmt.Errorf("unknown dataset format %q (want NETCDF or GRIB)", s)
	}
}

// Variable is one decoded array variable of a dataset.
//
// Values hold the decoded cells in row-major order. A NaN cell is a
// missing value; decoders are expected to have applied _FillValue and
// missing_value substitution already.
type Variable struct {
	// Name is the variable name as stored in the file.
	Name string

	// Dims names the dimensions, outermost first.
	Dims []string

	// Shape is the length of each dimension, aligned with Dims.
	Shape []int

	// DType is the on-disk element type (e.g. "float32", "int16").
	DType string

	// Attrs holds the variable attributes (units, long_name, ...).
	Attrs map[string]any

	// Values are the decoded cells; NaN marks a missing cell.
	Values []float64
}

// Size returns the total number of cells described by Shape.
func (v *Variable) Size() int {
	if len(v.Shape) == 0 {
		return len(v.Values)
	}
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// DimSize returns the length of the named dimension and whether the
// variable has that dimension.
func (v *Variable) DimSize(name string) (int, bool) {
	for i, d := range v.Dims {
		if d == name && i < len(v.Shape) {
			return v.Shape[i], true
		}
	}
	return 0, false
}

// Dataset is a logical multi-dimensional dataset opened from one file or
// a collection of files.
//
// # Thread Safety
//
// Implementations are not assumed safe for concurrent reads. Each worker
// must hold its own Dataset, or the implementation must serialize reads
// internally.
type Dataset interface {
	// Path returns the source path (or pattern for collections).
	Path() string

	// Fingerprint returns a stable identifier for the dataset content.
	Fingerprint() string

	// VariableNames returns all variable names in sorted order.
	VariableNames() []string

	// Variable returns the named variable, or *VariableNotFoundError.
	Variable(name string) (*Variable, error)

	// GlobalAttrs returns the global attributes.
	GlobalAttrs() map[string]any

	// GlobalDims returns the global dimension sizes.
	GlobalDims() map[string]int

	// Close releases file handles. Safe to call more than once.
	Close() error
}

// Opener opens a path as a Dataset. It is the injection point for the
// external decoding library; substitute a fake in tests.
type Opener interface {
	Open(ctx context.Context, path string) (Dataset, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (Dataset, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, path string) (Dataset, error) {
	return f(ctx, path)
}

// OpenError reports a dataset that could not be opened. Rules targeting
// the dataset are recorded as errored; sibling datasets are unaffected.
type OpenError struct {
	// Path is the file that failed to open.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("open dataset %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error { return e.Err }

// VariableNotFoundError reports a variable absent from a dataset. The
// evaluator maps it to FAILED for explicit selectors and SKIPPED for
// wildcard selectors.
type VariableNotFoundError struct {
	// Name is the missing variable.
	Name string

	// Path identifies the dataset searched.
	Path string
}

// Error implements the error interface.
func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable %q not found in %s", e.Name, e.Path)
}
