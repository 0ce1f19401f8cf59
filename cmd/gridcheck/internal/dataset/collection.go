// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Collection presents several member files as one logical dataset.
//
// Variable names are the union across members. A variable present in a
// single member is returned as-is; a variable shared by several members
// is concatenated along its leading dimension in member order, which is
// how time-split products (one file per month) are checked as one series.
//
// Global attributes are merged first-member-wins. The fingerprint is the
// order-independent combination of member fingerprints.
type Collection struct {
	pattern string
	members []Dataset
	fp      string
}

// NewCollection builds a Collection over the given members. The pattern
// is a label only (typically the configured files glob).
func NewCollection(pattern string, members ...Dataset) (*Collection, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("collection %q needs at least one member", pattern)
	}
	fps := make([]string, len(members))
	for i, m := range members {
		fps[i] = m.Fingerprint()
	}
	return &Collection{
		pattern: pattern,
		members: members,
		fp:      CombineFingerprints(fps),
	}, nil
}

// OpenCollection expands a glob pattern and opens every match through the
// opener, closing already-open members if a later open fails.
func OpenCollection(ctx context.Context, opener Opener, pattern string) (*Collection, error) {
	paths, err := ExpandPattern(pattern)
	if err != nil {
		return nil, err
	}

	members := make([]Dataset, 0, len(paths))
	for _, path := range paths {
		ds, err := opener.Open(ctx, path)
		if err != nil {
			for _, open := range members {
				_ = open.Close()
			}
			return nil, err
		}
		members = append(members, ds)
	}
	return NewCollection(pattern, members...)
}

// Members returns the member datasets in order.
func (c *Collection) Members() []Dataset { return c.members }

// Path implements Dataset.
func (c *Collection) Path() string { return c.pattern }

// Fingerprint implements Dataset.
func (c *Collection) Fingerprint() string { return c.fp }

// VariableNames implements Dataset.
func (c *Collection) VariableNames() []string {
	seen := make(map[string]struct{})
	for _, m := range c.members {
		for _, name := range m.VariableNames() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variable implements Dataset. Shared variables are concatenated along
// the leading dimension; metadata comes from the first member holding
// the variable.
func (c *Collection) Variable(name string) (*Variable, error) {
	var parts []*Variable
	for _, m := range c.members {
		v, err := m.Variable(name)
		if err != nil {
			var notFound *VariableNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		parts = append(parts, v)
	}

	switch len(parts) {
	case 0:
		return nil, &VariableNotFoundError{Name: name, Path: c.pattern}
	case 1:
		return parts[0], nil
	}

	first := parts[0]
	merged := &Variable{
		Name:  first.Name,
		Dims:  append([]string(nil), first.Dims...),
		Shape: append([]int(nil), first.Shape...),
		DType: first.DType,
		Attrs: first.Attrs,
	}
	for _, p := range parts {
		merged.Values = append(merged.Values, p.Values...)
	}
	if len(merged.Shape) > 0 {
		leading := 0
		for _, p := range parts {
			if len(p.Shape) > 0 {
				leading += p.Shape[0]
			}
		}
		merged.Shape[0] = leading
	}
	return merged, nil
}

// GlobalAttrs implements Dataset with first-member-wins merging.
func (c *Collection) GlobalAttrs() map[string]any {
	attrs := make(map[string]any)
	for i := len(c.members) - 1; i >= 0; i-- {
		for k, v := range c.members[i].GlobalAttrs() {
			attrs[k] = v
		}
	}
	return attrs
}

// GlobalDims implements Dataset with first-member-wins merging.
func (c *Collection) GlobalDims() map[string]int {
	dims := make(map[string]int)
	for i := len(c.members) - 1; i >= 0; i-- {
		for k, v := range c.members[i].GlobalDims() {
			dims[k] = v
		}
	}
	return dims
}

// Close closes every member and returns the combined error, if any.
func (c *Collection) Close() error {
	var errs []string
	for _, m := range c.members {
		if err := m.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close collection %s: %s", c.pattern, strings.Join(errs, "; "))
	}
	return nil
}

var _ Dataset = (*Collection)(nil)
