// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagnostic

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind tags the variant of a diagnostic output.
type ValueKind string

const (
	// KindNumber is a float statistic (min, max, mean, fraction, ...).
	KindNumber ValueKind = "number"

	// KindBool is a structural predicate outcome.
	KindBool ValueKind = "bool"

	// KindCount is a non-negative integer (violations, missing cells).
	KindCount ValueKind = "count"
)

// Value is the single comparable output of a diagnostic. It is a tagged
// union; Kind selects the active field. Values round-trip through JSON
// for the persistent cache, including NaN and infinities.
type Value struct {
	// Kind tags the active variant.
	Kind ValueKind `json:"kind"`

	// Number is the float payload (KindNumber).
	Number float64 `json:"-"`

	// Bool is the predicate payload (KindBool).
	Bool bool `json:"bool,omitempty"`

	// Count is the integer payload (KindCount).
	Count int `json:"count,omitempty"`

	// Detail carries supporting lines for report messages, e.g. the
	// compliance violations behind a count.
	Detail []string `json:"detail,omitempty"`
}

// NumberValue builds a KindNumber value.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// BoolValue builds a KindBool value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// CountValue builds a KindCount value with optional detail lines.
func CountValue(n int, detail ...string) Value {
	return Value{Kind: KindCount, Count: n, Detail: detail}
}

// String renders the active payload for reports and logs.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindCount:
		return strconv.Itoa(v.Count)
	default:
		return "(none)"
	}
}

// valueDoc is the JSON wire form. Number travels as a string so that
// NaN and infinities survive encoding/json, which rejects them as
// float64.
type valueDoc struct {
	Kind   ValueKind `json:"kind"`
	Number string    `json:"number,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	Count  int       `json:"count,omitempty"`
	Detail []string  `json:"detail,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	doc := valueDoc{Kind: v.Kind, Bool: v.Bool, Count: v.Count, Detail: v.Detail}
	if v.Kind == KindNumber {
		doc.Number = strconv.FormatFloat(v.Number, 'g', -1, 64)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var doc valueDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	v.Kind = doc.Kind
	v.Bool = doc.Bool
	v.Count = doc.Count
	v.Detail = doc.Detail
	if doc.Kind == KindNumber {
		n, err := strconv.ParseFloat(doc.Number, 64)
		if err != nil {
			return fmt.Errorf("bad number payload %q: %w", doc.Number, err)
		}
		v.Number = n
	}
	return nil
}
