// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderUnavailable is returned when the provider could not be
	// reached or failed to answer.
	ErrProviderUnavailable = errors.New("chain provider unavailable")

	// ErrInputsSpent is returned when a submitted transaction spends an
	// output that no longer exists.
	ErrInputsSpent = errors.New("transaction inputs already spent")

	// ErrScriptFailure is returned when the ledger rejected a transaction
	// because one of its scripts failed.
	ErrScriptFailure = errors.New("script validation failed")

	// ErrSubmitRejected is returned when the ledger rejected a transaction
	// for any other reason.
	ErrSubmitRejected = errors.New("transaction rejected")
)

// Provider is the read and submit surface of a chain data provider.
type Provider interface {
	// FetchAddressUTxOs returns every unspent output held by the address.
	// An address that has never been used yields an empty result.
	FetchAddressUTxOs(ctx context.Context, address string) ([]Fund, error)

	// SubmitTx submits a signed transaction in hex and returns its hash.
	SubmitTx(ctx context.Context, signedTx string) (string, error)
}

// rejectPatterns maps fragments of ledger rejection messages onto the error
// they indicate. They are checked in order.
var rejectPatterns = []struct {
	fragment string
	err      error
}{
	{"BadInputsUTxO", ErrInputsSpent},
	{"ValueNotConservedUTxO", ErrInputsSpent},
	{"ScriptFailure", ErrScriptFailure},
	{"PlutusFailure", ErrScriptFailure},
	{"ValidationTagMismatch", ErrScriptFailure},
}

// MapSubmitErr maps a ledger rejection message to one of the submit
// sentinels. The ledger message is kept in the returned error.
func MapSubmitErr(msg string) error {
	for _, p := range rejectPatterns {
		if strings.Contains(msg, p.fragment) {
			return fmt.Errorf("%w: %s", p.err, msg)
		}
	}

	return fmt.Errorf("%w: %s", ErrSubmitRejected, msg)
}
