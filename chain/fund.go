// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/pkg/lovelace"
)

const (
	// TxHashSize is the size in bytes of a transaction hash.
	TxHashSize = 32

	// outRefSeparator separates the hash and index of an OutRef in its
	// string form.
	outRefSeparator = "#"
)

var (
	// ErrInvalidOutRef is returned when an output reference cannot be
	// parsed.
	ErrInvalidOutRef = errors.New("invalid output reference")
)

// OutRef identifies a transaction output by the hash of the transaction that
// created it and the output's index within it.
type OutRef struct {
	// TxHash is the hex encoded hash of the creating transaction.
	TxHash string

	// Index is the position of the output in the transaction.
	Index uint32
}

// String returns the reference in the "<txhash>#<index>" form.
func (o OutRef) String() string {
	return o.TxHash + outRefSeparator + strconv.FormatUint(
		uint64(o.Index), 10,
	)
}

// ParseOutRef parses a reference in the "<txhash>#<index>" form.
func ParseOutRef(s string) (OutRef, error) {
	hash, index, ok := strings.Cut(strings.TrimSpace(s), outRefSeparator)
	if !ok {
		return OutRef{}, fmt.Errorf("%w: %q has no index", ErrInvalidOutRef,
			s)
	}

	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != TxHashSize {
		return OutRef{}, fmt.Errorf("%w: bad tx hash %q", ErrInvalidOutRef,
			hash)
	}

	idx, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return OutRef{}, fmt.Errorf("%w: bad index %q", ErrInvalidOutRef,
			index)
	}

	return OutRef{TxHash: strings.ToLower(hash), Index: uint32(idx)}, nil
}

// Asset is a quantity of a single asset held by an output. Unit is either
// "lovelace" or the concatenated policy id and hex asset name.
type Asset struct {
	Unit     string
	Quantity string
}

// Fund is a snapshot of an unspent output. It is never mutated after it has
// been read from a provider.
type Fund struct {
	// Ref identifies the output.
	Ref OutRef

	// Address is the bech32 address holding the output.
	Address string

	// Assets lists the value held by the output.
	Assets []Asset

	// InlineDatum is the CBOR of the datum stored inline with the output,
	// if any.
	InlineDatum fn.Option[[]byte]

	// DatumHash is the hex hash of the datum attached to the output, if
	// any.
	DatumHash string
}

// Lovelace returns the lovelace held by the output.
func (f Fund) Lovelace() lovelace.Amount {
	var total lovelace.Amount
	for _, a := range f.Assets {
		if a.Unit != lovelace.Unit {
			continue
		}

		amt, err := lovelace.ParseAmount(a.Quantity)
		if err != nil {
			continue
		}

		total += amt
	}

	return total
}

// HasInlineDatum reports whether the output carries an inline datum.
func (f Fund) HasInlineDatum() bool {
	return f.InlineDatum.IsSome()
}
