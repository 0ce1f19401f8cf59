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
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/dataset"
)

// NetCDFOpener decodes NetCDF files (classic and netCDF-4) into
// in-memory datasets. Decoding is eager: rule evaluation touches a
// variable's cells many times and the reductions need the full array
// anyway.
type NetCDFOpener struct{}

// Open implements dataset.Opener.
func (o *NetCDFOpener) Open(_ context.Context, path string) (dataset.Dataset, error) {
	fp, err := dataset.FileFingerprint(path)
	if err != nil {
		return nil, &dataset.OpenError{Path: path, Err: err}
	}
	mem, err := decodeNetCDF(path, path)
	if err != nil {
		return nil, err
	}
	return mem.WithFingerprint(fp), nil
}

// decodeNetCDF eagerly decodes the NetCDF file at path into an
// in-memory dataset labeled with label. The caller pins the
// fingerprint; for converted GRIB the label and fingerprint refer to
// the original file, not the conversion artifact.
func decodeNetCDF(path, label string) (*dataset.Memory, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, &dataset.OpenError{Path: label, Err: err}
	}
	defer nc.Close()

	mem := dataset.NewMemory(label)
	for key, value := range attrMap(nc.Attributes()) {
		mem.WithGlobalAttr(key, value)
	}

	for _, name := range nc.ListVariables() {
		vr, err := nc.GetVariable(name)
		if err != nil {
			return nil, &dataset.OpenError{Path: label, Err: fmt.Errorf("variable %s: %w", name, err)}
		}
		variable, err := convertVariable(name, vr)
		if err != nil {
			return nil, &dataset.OpenError{Path: label, Err: fmt.Errorf("variable %s: %w", name, err)}
		}
		mem.WithVariable(variable)
	}
	return mem, nil
}

// attrMap flattens an attribute map into plain Go values.
func attrMap(attrs api.AttributeMap) map[string]any {
	out := make(map[string]any)
	if attrs == nil {
		return out
	}
	for _, key := range attrs.Keys() {
		if value, has := attrs.Get(key); has {
			out[key] = value
		}
	}
	return out
}

// convertVariable flattens a decoded variable into the engine's model:
// row-major float64 cells with NaN for missing values.
func convertVariable(name string, vr *api.Variable) (*dataset.Variable, error) {
	attrs := attrMap(vr.Attributes)

	values := reflect.ValueOf(vr.Values)
	shape := valueShape(values)
	flat := make([]float64, 0, totalCells(shape))
	dtype, err := flatten(values, &flat)
	if err != nil {
		return nil, err
	}

	applyFillValues(flat, attrs)

	return &dataset.Variable{
		Name:   name,
		Dims:   append([]string(nil), vr.Dimensions...),
		Shape:  shape,
		DType:  dtype,
		Attrs:  attrs,
		Values: flat,
	}, nil
}

// valueShape walks nested slices to recover the array shape. Scalars
// have an empty shape.
func valueShape(v reflect.Value) []int {
	var shape []int
	for v.Kind() == reflect.Slice {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			break
		}
		v = v.Index(0)
	}
	return shape
}

func totalCells(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// flatten appends the numeric cells of a possibly nested slice in
// row-major order and reports the element type name. String variables
// are rejected; the engine has no comparable use for them.
func flatten(v reflect.Value, out *[]float64) (string, error) {
	switch v.Kind() {
	case reflect.Slice:
		dtype := ""
		for i := 0; i < v.Len(); i++ {
			dt, err := flatten(v.Index(i), out)
			if err != nil {
				return "", err
			}
			if dt != "" {
				dtype = dt
			}
		}
		return dtype, nil
	case reflect.Float32, reflect.Float64:
		*out = append(*out, v.Float())
		return v.Kind().String(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		*out = append(*out, float64(v.Int()))
		return v.Kind().String(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		*out = append(*out, float64(v.Uint()))
		return v.Kind().String(), nil
	case reflect.Interface:
		return flatten(v.Elem(), out)
	default:
		return "", fmt.Errorf("unsupported element type %s", v.Kind())
	}
}

// applyFillValues substitutes declared fill/missing sentinels with NaN
// so the diagnostics see one uniform missing-value convention.
func applyFillValues(values []float64, attrs map[string]any) {
	for _, key := range []string{"_FillValue", "missing_value"} {
		raw, has := attrs[key]
		if !has {
			continue
		}
		sentinel, ok := numericAttr(raw)
		if !ok {
			continue
		}
		for i, v := range values {
			if v == sentinel {
				values[i] = math.NaN()
			}
		}
	}
}

// numericAttr widens a scalar attribute (or its single-element slice
// form) to float64.
func numericAttr(raw any) (float64, bool) {
	v := reflect.ValueOf(raw)
	if v.Kind() == reflect.Slice {
		if v.Len() != 1 {
			return 0, false
		}
		v = v.Index(0)
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return float64(v.Int()), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return float64(v.Uint()), true
	default:
		return 0, false
	}
}
