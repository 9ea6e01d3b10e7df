// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package plutus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

const (
	// CBOR major types used by Plutus data.
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorArray  = 4
	majorMap    = 5
	majorTag    = 6

	// Constructor tags. Indexes 0-6 map onto 121-127, 7-127 onto
	// 1280-1400, anything larger uses the general form under tag 102.
	tagConstrSmallBase   = 121
	tagConstrLargeBase   = 1280
	tagConstrGeneral     = 102
	maxConstrSmallIndex  = 6
	maxConstrCompactIdx  = 127
	tagPositiveBignum    = 2
	tagNegativeBignum    = 3
	maxBytesChunk        = 64
	indefiniteArrayStart = 0x9f
	indefiniteBytesStart = 0x5f
	indefiniteBreak      = 0xff
)

// Data is a node of the Plutus data tree that scripts receive as datum and
// redeemer. Implementations are immutable.
type Data interface {
	// MarshalCBOR returns the canonical CBOR encoding of the node.
	MarshalCBOR() ([]byte, error)

	// MarshalJSON returns the detailed-schema JSON rendering of the node.
	MarshalJSON() ([]byte, error)

	isData()
}

// Int is an arbitrary precision integer.
type Int struct {
	v *big.Int
}

// NewInt wraps a big integer. The value is copied.
func NewInt(v *big.Int) Int {
	return Int{v: new(big.Int).Set(v)}
}

// NewInt64 returns an Int holding v.
func NewInt64(v int64) Int {
	return Int{v: big.NewInt(v)}
}

// Big returns a copy of the integer.
func (i Int) Big() *big.Int {
	if i.v == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(i.v)
}

// Bytes is a byte string.
type Bytes []byte

// List is an ordered list of data.
type List []Data

// Pair is a single key/value entry of a Map.
type Pair struct {
	Key   Data
	Value Data
}

// Map is an ordered association list. Order is preserved on encoding.
type Map []Pair

// Constr is a constructor application: the index of the alternative and its
// positional fields.
type Constr struct {
	Index  uint64
	Fields []Data
}

// NewConstr returns a constructor value.
func NewConstr(index uint64, fields ...Data) Constr {
	return Constr{Index: index, Fields: fields}
}

func (Int) isData()    {}
func (Bytes) isData()  {}
func (List) isData()   {}
func (Map) isData()    {}
func (Constr) isData() {}

// MarshalCBOR encodes the integer as a CBOR integer when it fits in 64 bits
// and as a bignum otherwise.
func (i Int) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(i.Big())
}

// MarshalCBOR encodes short byte strings directly and longer ones as an
// indefinite byte string of 64 byte chunks, as the ledger requires.
func (b Bytes) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	if len(b) <= maxBytesChunk {
		buf.Write(encodeHead(majorBytes, uint64(len(b))))
		buf.Write(b)

		return buf.Bytes(), nil
	}

	buf.WriteByte(indefiniteBytesStart)

	for start := 0; start < len(b); start += maxBytesChunk {
		end := min(start+maxBytesChunk, len(b))

		buf.Write(encodeHead(majorBytes, uint64(end-start)))
		buf.Write(b[start:end])
	}

	buf.WriteByte(indefiniteBreak)

	return buf.Bytes(), nil
}

// MarshalCBOR encodes the list. Non-empty lists use indefinite length
// encoding, matching the serialisation used by the reference wallets.
func (l List) MarshalCBOR() ([]byte, error) {
	return encodeList(l)
}

// MarshalCBOR encodes the map as a definite length map in entry order.
func (m Map) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(encodeHead(majorMap, uint64(len(m))))

	for _, pair := range m {
		if pair.Key == nil || pair.Value == nil {
			return nil, fmt.Errorf("%w: nil map entry", ErrMalformedValue)
		}

		k, err := pair.Key.MarshalCBOR()
		if err != nil {
			return nil, err
		}

		v, err := pair.Value.MarshalCBOR()
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.Write(v)
	}

	return buf.Bytes(), nil
}

// MarshalCBOR encodes the constructor under its compact tag, or the general
// tag 102 for indexes beyond 127.
func (c Constr) MarshalCBOR() ([]byte, error) {
	fields, err := encodeList(c.Fields)
	if err != nil {
		return nil, err
	}

	switch {
	case c.Index <= maxConstrSmallIndex:
		return cbor.Marshal(cbor.RawTag{
			Number:  tagConstrSmallBase + c.Index,
			Content: fields,
		})

	case c.Index <= maxConstrCompactIdx:
		return cbor.Marshal(cbor.RawTag{
			Number:  tagConstrLargeBase + c.Index - maxConstrSmallIndex - 1,
			Content: fields,
		})

	default:
		content, err := cbor.Marshal([]any{
			c.Index, cbor.RawMessage(fields),
		})
		if err != nil {
			return nil, err
		}

		return cbor.Marshal(cbor.RawTag{
			Number:  tagConstrGeneral,
			Content: content,
		})
	}
}

// encodeList encodes a sequence of data, definite when empty and
// indefinite otherwise.
func encodeList(items []Data) ([]byte, error) {
	if len(items) == 0 {
		return encodeHead(majorArray, 0), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(indefiniteArrayStart)

	for _, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: nil list item", ErrMalformedValue)
		}

		enc, err := item.MarshalCBOR()
		if err != nil {
			return nil, err
		}

		buf.Write(enc)
	}

	buf.WriteByte(indefiniteBreak)

	return buf.Bytes(), nil
}

// encodeHead returns the shortest CBOR head for a major type and argument.
func encodeHead(major byte, n uint64) []byte {
	m := major << 5

	switch {
	case n < 24:
		return []byte{m | byte(n)}

	case n <= 0xff:
		return []byte{m | 24, byte(n)}

	case n <= 0xffff:
		head := []byte{m | 25, 0, 0}
		binary.BigEndian.PutUint16(head[1:], uint16(n))

		return head

	case n <= 0xffffffff:
		head := []byte{m | 26, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(head[1:], uint32(n))

		return head

	default:
		head := make([]byte, 9)
		head[0] = m | 27
		binary.BigEndian.PutUint64(head[1:], n)

		return head
	}
}

// EncodeData returns the CBOR encoding of d.
func EncodeData(d Data) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil data", ErrMalformedValue)
	}

	return d.MarshalCBOR()
}
