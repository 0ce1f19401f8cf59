// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key identifies one diagnostic computation. Two evaluations share a
// cache entry iff every component matches: the check id, the dataset
// content fingerprint, the variable selector, and the parameter hash.
type Key struct {
	// Check is the diagnostic id.
	Check string

	// Fingerprint is the dataset content fingerprint.
	Fingerprint string

	// Selector is the canonical variable selector rendering. For
	// wildcard rules each resolved variable gets its own key.
	Selector string

	// ParamsHash digests the rule parameters canonically.
	ParamsHash string
}

// NewKey builds a Key, hashing the parameters canonically. Marshaling
// through encoding/json sorts map keys at every level, so two rules
// with the same parameters in different YAML order share a key.
func NewKey(check, fingerprint, selector string, params map[string]any) (Key, error) {
	hash, err := hashParams(params)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Check:       check,
		Fingerprint: fingerprint,
		Selector:    selector,
		ParamsHash:  hash,
	}, nil
}

// hashParams digests parameters into a stable hex string. Nil and empty
// maps share a digest.
func hashParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("hash parameters: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// String renders the key in its storage form.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Check, k.Fingerprint, k.Selector, k.ParamsHash)
}

// Bytes returns the key in its storage form for the persistent store.
func (k Key) Bytes() []byte { return []byte(k.String()) }
