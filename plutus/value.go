// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package plutus

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedValue is returned when a user supplied value cannot be
	// turned into Plutus data of the requested kind.
	ErrMalformedValue = errors.New("malformed value")

	// ErrUnknownValueKind is returned for a kind other than Opaque or
	// Constructor.
	ErrUnknownValueKind = errors.New("unknown value kind")
)

// ValueKind selects how the raw text of a StructuredValue is interpreted.
type ValueKind uint8

const (
	// KindOpaque passes the raw text through as a literal byte string.
	KindOpaque ValueKind = iota

	// KindConstructor parses the raw text as a JSON tree describing a
	// constructor value.
	KindConstructor
)

// String returns "data" or "constructor", the names the kinds are selected
// by.
func (k ValueKind) String() string {
	switch k {
	case KindOpaque:
		return "data"

	case KindConstructor:
		return "constructor"

	default:
		return "unknown"
	}
}

// ParseValueKind maps "data" (or "opaque") and "constructor" onto a kind.
func ParseValueKind(s string) (ValueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data", "opaque", "":
		return KindOpaque, nil

	case "constructor":
		return KindConstructor, nil

	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownValueKind, s)
	}
}

// StructuredValue is a user's intent to produce on-chain data. It is only
// interpreted when Encode is called, so partially typed input never fails
// early.
type StructuredValue struct {
	// Kind selects the interpretation of Raw.
	Kind ValueKind

	// Raw is the text exactly as entered.
	Raw string
}

// Opaque returns a literal StructuredValue.
func Opaque(raw string) StructuredValue {
	return StructuredValue{Kind: KindOpaque, Raw: raw}
}

// Constructor returns a JSON constructor StructuredValue.
func Constructor(raw string) StructuredValue {
	return StructuredValue{Kind: KindConstructor, Raw: raw}
}

// IsEmpty reports whether no text was entered.
func (v StructuredValue) IsEmpty() bool {
	return strings.TrimSpace(v.Raw) == ""
}

// Data translates the value into a Plutus data tree.
func (v StructuredValue) Data() (Data, error) {
	switch v.Kind {
	case KindOpaque:
		return literalBytes(v.Raw), nil

	case KindConstructor:
		return constructorValue(v.Raw)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownValueKind, v.Kind)
	}
}

// Encode returns the CBOR encoding of the value. Encoding is deterministic:
// equal values always produce equal bytes, so a retried submission carries
// the same payload.
func (v StructuredValue) Encode() ([]byte, error) {
	d, err := v.Data()
	if err != nil {
		return nil, err
	}

	return EncodeData(d)
}

// Encode is shorthand for StructuredValue{Kind: kind, Raw: raw}.Encode().
func Encode(kind ValueKind, raw string) ([]byte, error) {
	return StructuredValue{Kind: kind, Raw: raw}.Encode()
}

// constructorValue parses raw as JSON and requires the top level to be a
// constructor. A bare array is read as the fields of constructor 0.
func constructorValue(raw string) (Data, error) {
	d, err := ParseJSON(raw)
	if err != nil {
		return nil, err
	}

	switch t := d.(type) {
	case Constr:
		return t, nil

	case List:
		return Constr{Index: 0, Fields: t}, nil

	default:
		return nil, fmt.Errorf("%w: expected a constructor object or an "+
			"array of fields", ErrMalformedValue)
	}
}
