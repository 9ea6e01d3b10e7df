// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package plutus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrMalformedData is returned when CBOR bytes do not hold a valid
	// Plutus data tree.
	ErrMalformedData = errors.New("malformed plutus data")
)

// DecodeData parses the CBOR encoding of a Plutus data tree. The input must
// hold exactly one item.
func DecodeData(b []byte) (Data, error) {
	var raw cbor.RawMessage
	if err := cbor.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	return decodeItem(raw)
}

// decodeItem decodes a single CBOR item.
func decodeItem(raw cbor.RawMessage) (Data, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty item", ErrMalformedData)
	}

	switch raw[0] >> 5 {
	case majorUint, majorNegInt:
		return decodeInt(raw)

	case majorBytes:
		var b []byte
		if err := cbor.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
		}

		return Bytes(b), nil

	case majorArray:
		items, err := decodeList(raw)
		if err != nil {
			return nil, err
		}

		return List(items), nil

	case majorMap:
		return decodeMap(raw)

	case majorTag:
		return decodeTag(raw)

	default:
		return nil, fmt.Errorf("%w: unexpected major type %d",
			ErrMalformedData, raw[0]>>5)
	}
}

// decodeInt decodes a CBOR integer or bignum.
func decodeInt(raw cbor.RawMessage) (Data, error) {
	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	switch n := v.(type) {
	case uint64:
		return Int{v: new(big.Int).SetUint64(n)}, nil

	case int64:
		return Int{v: big.NewInt(n)}, nil

	case big.Int:
		return NewInt(&n), nil

	case *big.Int:
		return NewInt(n), nil

	default:
		return nil, fmt.Errorf("%w: unexpected integer type %T",
			ErrMalformedData, v)
	}
}

// decodeList decodes a definite or indefinite array of data.
func decodeList(raw cbor.RawMessage) ([]Data, error) {
	var items []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	out := make([]Data, 0, len(items))
	for _, item := range items {
		d, err := decodeItem(item)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, nil
}

// decodeMap decodes a map while keeping its entry order, which a Go map
// destination would lose.
func decodeMap(raw cbor.RawMessage) (Data, error) {
	n, headLen, indefinite, err := readHead(raw)
	if err != nil {
		return nil, err
	}

	dec := cbor.NewDecoder(bytes.NewReader(raw[headLen:]))

	var out Map
	for i := uint64(0); indefinite || i < n; i++ {
		if indefinite {
			offset := headLen + dec.NumBytesRead()
			if offset >= len(raw) {
				return nil, fmt.Errorf("%w: unterminated map",
					ErrMalformedData)
			}

			if raw[offset] == indefiniteBreak {
				break
			}
		}

		var k, v cbor.RawMessage
		if err := dec.Decode(&k); err != nil {
			return nil, fmt.Errorf("%w: map key: %v", ErrMalformedData, err)
		}

		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: map value: %v", ErrMalformedData,
				err)
		}

		key, err := decodeItem(k)
		if err != nil {
			return nil, err
		}

		value, err := decodeItem(v)
		if err != nil {
			return nil, err
		}

		out = append(out, Pair{Key: key, Value: value})
	}

	return out, nil
}

// decodeTag decodes constructors and bignums.
func decodeTag(raw cbor.RawMessage) (Data, error) {
	var tag cbor.RawTag
	if err := cbor.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	switch {
	case tag.Number == tagPositiveBignum || tag.Number == tagNegativeBignum:
		var n big.Int
		if err := cbor.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
		}

		return NewInt(&n), nil

	case tag.Number >= tagConstrSmallBase &&
		tag.Number <= tagConstrSmallBase+maxConstrSmallIndex:

		return decodeConstr(tag.Number-tagConstrSmallBase, tag.Content)

	case tag.Number >= tagConstrLargeBase &&
		tag.Number <= tagConstrLargeBase+maxConstrCompactIdx-
			maxConstrSmallIndex-1:

		index := tag.Number - tagConstrLargeBase + maxConstrSmallIndex + 1

		return decodeConstr(index, tag.Content)

	case tag.Number == tagConstrGeneral:
		var parts []cbor.RawMessage
		if err := cbor.Unmarshal(tag.Content, &parts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
		}

		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: general constructor has %d parts",
				ErrMalformedData, len(parts))
		}

		var index uint64
		if err := cbor.Unmarshal(parts[0], &index); err != nil {
			return nil, fmt.Errorf("%w: constructor index: %v",
				ErrMalformedData, err)
		}

		return decodeConstr(index, parts[1])

	default:
		return nil, fmt.Errorf("%w: unexpected tag %d", ErrMalformedData,
			tag.Number)
	}
}

func decodeConstr(index uint64, content []byte) (Data, error) {
	if len(content) == 0 || content[0]>>5 != majorArray {
		return nil, fmt.Errorf("%w: constructor fields must be an array",
			ErrMalformedData)
	}

	fields, err := decodeList(content)
	if err != nil {
		return nil, err
	}

	return Constr{Index: index, Fields: fields}, nil
}

// readHead parses the head of a CBOR item and returns its argument, the head
// length and whether the item uses indefinite length encoding.
func readHead(raw []byte) (uint64, int, bool, error) {
	if len(raw) == 0 {
		return 0, 0, false, fmt.Errorf("%w: empty head", ErrMalformedData)
	}

	info := raw[0] & 0x1f

	switch {
	case info < 24:
		return uint64(info), 1, false, nil

	case info == 31:
		return 0, 1, true, nil

	case info > 27:
		return 0, 0, false, fmt.Errorf("%w: reserved additional info %d",
			ErrMalformedData, info)
	}

	size := 1 << (info - 24)
	if len(raw) < 1+size {
		return 0, 0, false, fmt.Errorf("%w: truncated head",
			ErrMalformedData)
	}

	var n uint64
	switch size {
	case 1:
		n = uint64(raw[1])

	case 2:
		n = uint64(binary.BigEndian.Uint16(raw[1:3]))

	case 4:
		n = uint64(binary.BigEndian.Uint32(raw[1:5]))

	default:
		n = binary.BigEndian.Uint64(raw[1:9])
	}

	return n, 1 + size, false, nil
}
