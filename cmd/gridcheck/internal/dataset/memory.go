// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Dataset. Decoder fakes and tests build one with
// the fluent With* methods:
//
//	ds := dataset.NewMemory("t2m.nc").
//	    WithGlobalAttr("Conventions", "CF-1.8").
//	    WithDim("time", 4).
//	    WithVariable(&dataset.Variable{Name: "t2m", ...})
//
// # Thread Safety
//
// Memory is safe for concurrent reads after construction. The With*
// builders are not synchronized; finish building before sharing.
type Memory struct {
	path        string
	fpMu        sync.Mutex
	fingerprint string
	attrs       map[string]any
	dims        map[string]int
	vars        map[string]*Variable
	closed      bool
}

// NewMemory creates an empty in-memory dataset labeled with path.
func NewMemory(path string) *Memory {
	return &Memory{
		path:  path,
		attrs: make(map[string]any),
		dims:  make(map[string]int),
		vars:  make(map[string]*Variable),
	}
}

// WithGlobalAttr sets a global attribute and returns the receiver.
func (m *Memory) WithGlobalAttr(key string, value any) *Memory {
	m.attrs[key] = value
	return m
}

// WithDim sets a global dimension size and returns the receiver.
func (m *Memory) WithDim(name string, size int) *Memory {
	m.dims[name] = size
	return m
}

// WithVariable adds a variable and registers its dimensions as global
// dimensions when not already present.
func (m *Memory) WithVariable(v *Variable) *Memory {
	m.vars[v.Name] = v
	for i, d := range v.Dims {
		if _, ok := m.dims[d]; !ok && i < len(v.Shape) {
			m.dims[d] = v.Shape[i]
		}
	}
	return m
}

// WithFingerprint pins the fingerprint. Without it, a digest of the
// structure is derived on first use.
func (m *Memory) WithFingerprint(fp string) *Memory {
	m.fingerprint = fp
	return m
}

// Path implements Dataset.
func (m *Memory) Path() string { return m.path }

// Fingerprint implements Dataset. The lazy derivation is guarded so a
// shared unpinned Memory stays safe across concurrent workers.
func (m *Memory) Fingerprint() string {
	m.fpMu.Lock()
	defer m.fpMu.Unlock()
	if m.fingerprint == "" {
		h := sha256.New()
		fmt.Fprintf(h, "mem|%s", m.path)
		for _, name := range m.VariableNames() {
			v := m.vars[name]
			fmt.Fprintf(h, "|%s:%v:%d", name, v.Shape, len(v.Values))
		}
		m.fingerprint = hex.EncodeToString(h.Sum(nil))
	}
	return m.fingerprint
}

// VariableNames implements Dataset.
func (m *Memory) VariableNames() []string {
	names := make([]string, 0, len(m.vars))
	for name := range m.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variable implements Dataset.
func (m *Memory) Variable(name string) (*Variable, error) {
	v, ok := m.vars[name]
	if !ok {
		return nil, &VariableNotFoundError{Name: name, Path: m.path}
	}
	return v, nil
}

// GlobalAttrs implements Dataset.
func (m *Memory) GlobalAttrs() map[string]any { return m.attrs }

// GlobalDims implements Dataset.
func (m *Memory) GlobalDims() map[string]int { return m.dims }

// Close implements Dataset. In-memory data has nothing to release.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close has been called. Used by accessor
// lifecycle tests.
func (m *Memory) Closed() bool { return m.closed }

var _ Dataset = (*Memory)(nil)
