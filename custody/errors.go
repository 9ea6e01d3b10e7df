// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"errors"

	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/plutus"
)

var (
	// ErrNoScript is returned when an operation needs a resolved script
	// but no program has been submitted.
	ErrNoScript = errors.New("no script program loaded")

	// ErrInvalidAmount is returned when the lock amount is not a
	// digit-only lovelace quantity.
	ErrInvalidAmount = errors.New("invalid lovelace amount")

	// ErrBelowMinDeposit is returned when the lock amount is below
	// lovelace.MinDeposit.
	ErrBelowMinDeposit = errors.New("amount below minimum deposit")

	// ErrInvalidDatum is returned when the datum is empty or cannot be
	// encoded as the selected kind.
	ErrInvalidDatum = errors.New("invalid datum")

	// ErrRedeemerMissing is returned when an unlock is requested without a
	// redeemer.
	ErrRedeemerMissing = errors.New("redeemer is required")

	// ErrInvalidRedeemer is returned when the redeemer cannot be encoded
	// as the selected kind.
	ErrInvalidRedeemer = errors.New("invalid redeemer")

	// ErrUnknownFund is returned when an unlock references an output that
	// is not part of the current fund set.
	ErrUnknownFund = errors.New("fund not held at script address")

	// ErrDuplicateFund is returned when a fund set would hold the same
	// output reference twice.
	ErrDuplicateFund = errors.New("duplicate fund reference")

	// ErrOperationInFlight is returned when a lock or unlock is requested
	// while another one has not finished yet.
	ErrOperationInFlight = errors.New("another operation is in flight")

	// ErrScriptReplaced is returned by a refresh whose result was
	// discarded because a new program was submitted meanwhile.
	ErrScriptReplaced = errors.New("script replaced during refresh")

	// ErrWalletDisconnected is returned when no wallet is connected.
	ErrWalletDisconnected = errors.New("wallet not connected")

	// ErrSignDeclined is returned by a Wallet when the user declined to
	// sign.
	ErrSignDeclined = errors.New("signing declined by user")

	// ErrWalletRejected is returned when the wallet declined or failed to
	// sign a transaction.
	ErrWalletRejected = errors.New("wallet rejected transaction")

	// ErrInsufficientFunds is returned when the wallet cannot fund the
	// transaction or provide collateral.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrScriptValidationFailed is returned when the script rejected the
	// spend, either during evaluation or on submission.
	ErrScriptValidationFailed = errors.New("script validation failed")

	// ErrBuildFailed is returned when a transaction could not be composed
	// for any other reason.
	ErrBuildFailed = errors.New("transaction build failed")

	// ErrSubmissionFailed is returned when a signed transaction was not
	// accepted by the chain provider.
	ErrSubmissionFailed = errors.New("transaction submission failed")

	// ErrStaleFund is returned when the spent output no longer exists.
	// The inventory must be refreshed before retrying.
	ErrStaleFund = errors.New("fund already spent")
)

// userMessages maps error categories to the sentences shown to the user.
// They are checked in order, so more specific errors come first.
var userMessages = []struct {
	err error
	msg string
}{
	{plutus.ErrInvalidProgram, "Could not resolve script address or " +
		"load UTxOs. Check the CBOR."},
	{ErrNoScript, "Paste the script CBOR code first."},
	{ErrWalletDisconnected, "Connect your wallet to continue."},
	{ErrInvalidAmount, "Must be a Lovelace amount (numbers only)."},
	{ErrBelowMinDeposit, "Amount must be greater than or equal to " +
		"1,000,000 lovelace."},
	{ErrInvalidDatum, "Data error. Make sure the datum is valid for the " +
		"selected type."},
	{ErrRedeemerMissing, "Specify a redeemer before unlocking."},
	{ErrInvalidRedeemer, "Data error. Make sure the redeemer is valid " +
		"for the selected type."},
	{ErrOperationInFlight, "Another transaction is still being " +
		"processed."},
	{ErrUnknownFund, "The selected UTxO is not at the script address. " +
		"Reload and try again."},
	{ErrStaleFund, "The selected UTxO was already spent. Reload and try " +
		"again."},
	{ErrInsufficientFunds, "Not enough funds in the wallet."},
	{ErrScriptValidationFailed, "The script rejected the transaction. " +
		"Check the redeemer."},
	{ErrWalletRejected, "The wallet did not sign the transaction."},
	{ErrBuildFailed, "Could not build or submit the transaction."},
	{ErrSubmissionFailed, "Could not build or submit the transaction."},
	{ErrScriptReplaced, "The script changed while loading UTxOs."},
	{chain.ErrProviderUnavailable, "Could not load UTxOs. The chain " +
		"provider is unavailable."},
}

// UserMessage returns the human readable sentence for err, or the empty
// string when err is nil.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}

	return "Something went wrong. Try again."
}
