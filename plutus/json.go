// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package plutus

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// jsonAPI keeps numbers as json.Number so integers beyond 2^53 survive.
var jsonAPI = jsoniter.Config{
	UseNumber:              true,
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// number is satisfied by the number type the decoder produces in UseNumber
// mode.
type number interface {
	String() string
	Float64() (float64, error)
}

// Keys of the detailed JSON schema understood by ParseJSON and produced by
// MarshalJSON.
const (
	keyConstructor = "constructor"
	keyAlternative = "alternative"
	keyFields      = "fields"
	keyInt         = "int"
	keyBytes       = "bytes"
	keyList        = "list"
	keyMap         = "map"
	keyMapKey      = "k"
	keyMapValue    = "v"
)

// ParseJSON parses a single JSON document into a Plutus data tree.
//
// Objects with "constructor" (or "alternative") and "fields" become
// constructors, and the detailed schema objects {"int"}, {"bytes"}, {"list"}
// and {"map"} map onto their namesakes. Plain numbers are integers, strings
// are byte strings (hex when they are valid hex, UTF-8 otherwise), arrays are
// lists, booleans are the constructors False (0) and True (1) and any other
// object is a map keyed by its UTF-8 keys in sorted order.
func ParseJSON(raw string) (Data, error) {
	var tree any
	if err := jsonAPI.UnmarshalFromString(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}

	return fromJSON(tree)
}

func fromJSON(v any) (Data, error) {
	switch t := v.(type) {
	case number:
		return parseInteger(t.String())

	case string:
		return literalBytes(t), nil

	case bool:
		if t {
			return NewConstr(1), nil
		}

		return NewConstr(0), nil

	case []any:
		items, err := fromJSONList(t)
		if err != nil {
			return nil, err
		}

		return List(items), nil

	case map[string]any:
		return fromJSONObject(t)

	case nil:
		return nil, fmt.Errorf("%w: null has no plutus representation",
			ErrMalformedValue)

	default:
		return nil, fmt.Errorf("%w: unsupported json value %T",
			ErrMalformedValue, v)
	}
}

func fromJSONList(items []any) ([]Data, error) {
	out := make([]Data, 0, len(items))
	for i, item := range items {
		d, err := fromJSON(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		out = append(out, d)
	}

	return out, nil
}

func fromJSONObject(obj map[string]any) (Data, error) {
	if _, ok := obj[keyFields]; ok {
		return constrFromJSON(obj)
	}

	if len(obj) == 1 {
		for key, value := range obj {
			d, ok, err := detailedFromJSON(key, value)
			if ok || err != nil {
				return d, err
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(Map, 0, len(keys))
	for _, key := range keys {
		value, err := fromJSON(obj[key])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}

		out = append(out, Pair{Key: Bytes(key), Value: value})
	}

	return out, nil
}

// constrFromJSON parses {"constructor": n, "fields": [...]}.
func constrFromJSON(obj map[string]any) (Constr, error) {
	rawIndex, ok := obj[keyConstructor]
	if !ok {
		rawIndex, ok = obj[keyAlternative]
	}
	if !ok {
		return Constr{}, fmt.Errorf("%w: fields without constructor index",
			ErrMalformedValue)
	}

	if len(obj) != 2 {
		return Constr{}, fmt.Errorf("%w: constructor object has "+
			"unexpected keys", ErrMalformedValue)
	}

	num, ok := rawIndex.(number)
	if !ok {
		return Constr{}, fmt.Errorf("%w: constructor index must be a "+
			"number", ErrMalformedValue)
	}

	index, ok := new(big.Int).SetString(num.String(), 10)
	if !ok || index.Sign() < 0 || !index.IsUint64() {
		return Constr{}, fmt.Errorf("%w: invalid constructor index %s",
			ErrMalformedValue, num.String())
	}

	rawFields, ok := obj[keyFields].([]any)
	if !ok {
		return Constr{}, fmt.Errorf("%w: constructor fields must be an "+
			"array", ErrMalformedValue)
	}

	fields, err := fromJSONList(rawFields)
	if err != nil {
		return Constr{}, err
	}

	return Constr{Index: index.Uint64(), Fields: fields}, nil
}

// detailedFromJSON handles the single-key detailed schema objects. The
// boolean result is false when key is not part of the schema.
func detailedFromJSON(key string, value any) (Data, bool, error) {
	switch key {
	case keyInt:
		num, ok := value.(number)
		if !ok {
			return nil, true, fmt.Errorf("%w: int must be a number",
				ErrMalformedValue)
		}

		d, err := parseInteger(num.String())

		return d, true, err

	case keyBytes:
		s, ok := value.(string)
		if !ok {
			return nil, true, fmt.Errorf("%w: bytes must be a string",
				ErrMalformedValue)
		}

		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, true, fmt.Errorf("%w: bytes must be hex: %v",
				ErrMalformedValue, err)
		}

		return Bytes(b), true, nil

	case keyList:
		items, ok := value.([]any)
		if !ok {
			return nil, true, fmt.Errorf("%w: list must be an array",
				ErrMalformedValue)
		}

		out, err := fromJSONList(items)
		if err != nil {
			return nil, true, err
		}

		return List(out), true, nil

	case keyMap:
		entries, ok := value.([]any)
		if !ok {
			return nil, true, fmt.Errorf("%w: map must be an array",
				ErrMalformedValue)
		}

		out, err := mapFromJSON(entries)

		return out, true, err

	default:
		return nil, false, nil
	}
}

func mapFromJSON(entries []any) (Map, error) {
	out := make(Map, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok || len(obj) != 2 {
			return nil, fmt.Errorf("%w: map entry %d must be {k, v}",
				ErrMalformedValue, i)
		}

		rawKey, okKey := obj[keyMapKey]
		rawValue, okValue := obj[keyMapValue]
		if !okKey || !okValue {
			return nil, fmt.Errorf("%w: map entry %d must be {k, v}",
				ErrMalformedValue, i)
		}

		key, err := fromJSON(rawKey)
		if err != nil {
			return nil, err
		}

		value, err := fromJSON(rawValue)
		if err != nil {
			return nil, err
		}

		out = append(out, Pair{Key: key, Value: value})
	}

	return out, nil
}

// parseInteger accepts base 10 integers only.
func parseInteger(s string) (Data, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer",
			ErrMalformedValue, s)
	}

	return Int{v: n}, nil
}

// literalBytes returns the hex decoding of s when it is valid hex and its
// UTF-8 bytes otherwise.
func literalBytes(s string) Bytes {
	if b, err := hex.DecodeString(s); err == nil {
		return Bytes(b)
	}

	return Bytes(s)
}

// MarshalJSON renders {"int": n}.
func (i Int) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"%s":%s}`, keyInt, i.Big().String())), nil
}

// MarshalJSON renders {"bytes": "<hex>"}.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return jsonAPI.Marshal(map[string]string{
		keyBytes: hex.EncodeToString(b),
	})
}

// MarshalJSON renders {"list": [...]}.
func (l List) MarshalJSON() ([]byte, error) {
	items := l
	if items == nil {
		items = List{}
	}

	return jsonAPI.Marshal(map[string][]Data{keyList: items})
}

// MarshalJSON renders {"map": [{"k": ..., "v": ...}]}.
func (m Map) MarshalJSON() ([]byte, error) {
	entries := make([]map[string]Data, 0, len(m))
	for _, pair := range m {
		entries = append(entries, map[string]Data{
			keyMapKey:   pair.Key,
			keyMapValue: pair.Value,
		})
	}

	return jsonAPI.Marshal(map[string]any{keyMap: entries})
}

// MarshalJSON renders {"constructor": n, "fields": [...]}.
func (c Constr) MarshalJSON() ([]byte, error) {
	fields := c.Fields
	if fields == nil {
		fields = []Data{}
	}

	return jsonAPI.Marshal(map[string]any{
		keyConstructor: c.Index,
		keyFields:      fields,
	})
}
