// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/pkg/lovelace"
	"github.com/spendingapp/custody/plutus"
)

var (
	// ErrNilTxIntent is returned when a nil TxIntent is provided.
	ErrNilTxIntent = errors.New("nil TxIntent")

	// ErrEmptyTxIntent is returned when an intent has neither outputs nor
	// script inputs.
	ErrEmptyTxIntent = errors.New("tx intent has no outputs or inputs")

	// ErrMissingChangeAddress is returned when an intent has no change
	// address.
	ErrMissingChangeAddress = errors.New("missing change address")
)

// TxOutput is an output the transaction must create.
type TxOutput struct {
	// Address receives the output.
	Address string

	// Assets is the value of the output.
	Assets []chain.Asset

	// InlineDatum is the CBOR datum stored inline with the output. It is
	// empty for outputs without a datum.
	InlineDatum []byte
}

// ScriptSpend is a script output the transaction must spend.
type ScriptSpend struct {
	// Fund is the output being spent.
	Fund chain.Fund

	// Script is the double CBOR wrapped program placed in the witness set.
	Script []byte

	// Version is the Plutus language version of Script.
	Version plutus.ScriptVersion

	// Redeemer is the CBOR redeemer passed to the script.
	Redeemer []byte

	// InlineDatumPresent tells the composer that the datum is read from
	// the spent output rather than supplied in the witness set.
	InlineDatumPresent bool
}

// TxIntent describes the transaction a custody operation wants. The
// Composer selects wallet inputs, adds change and fees and evaluates script
// costs to turn it into an unsigned transaction.
//
// A lock intent carries a single output at the script address:
//
//	intent := &TxIntent{
//		Outputs: []TxOutput{{
//			Address:     script.Address,
//			Assets:      []chain.Asset{{Unit: "lovelace", Quantity: "2000000"}},
//			InlineDatum: datum,
//		}},
//		ChangeAddress: change,
//	}
//
// An unlock intent spends a script output and returns its value to the
// change address, so it carries no outputs of its own:
//
//	intent := &TxIntent{
//		ScriptInputs:    []ScriptSpend{{Fund: fund, ...}},
//		Collateral:      collateral,
//		RequiredSigners: []string{pkh},
//		ChangeAddress:   change,
//	}
type TxIntent struct {
	// Outputs lists the outputs to create.
	Outputs []TxOutput

	// ScriptInputs lists the script outputs to spend.
	ScriptInputs []ScriptSpend

	// Collateral lists wallet outputs pledged in case a script fails.
	Collateral []chain.Fund

	// RequiredSigners lists the hex key hashes that must sign.
	RequiredSigners []string

	// ChangeAddress receives the remaining value.
	ChangeAddress string
}

// validate checks the intent is complete enough to compose.
func (t *TxIntent) validate() error {
	if t == nil {
		return ErrNilTxIntent
	}

	if len(t.Outputs) == 0 && len(t.ScriptInputs) == 0 {
		return ErrEmptyTxIntent
	}

	if t.ChangeAddress == "" {
		return ErrMissingChangeAddress
	}

	return nil
}

// LockParams are the inputs of a lock.
type LockParams struct {
	// Script is the resolved script that will hold the funds.
	Script *plutus.ResolvedScript

	// Amount is the lovelace to lock, exactly as entered.
	Amount string

	// Datum is stored inline with the locked output.
	Datum plutus.StructuredValue
}

// Validate checks the parameters without touching the network. It returns
// the parsed amount and the encoded datum.
func (p LockParams) Validate() (lovelace.Amount, []byte, error) {
	if p.Script == nil {
		return 0, nil, ErrNoScript
	}

	amount, err := lovelace.ParseDeposit(p.Amount, lovelace.MinDeposit)
	switch {
	case errors.Is(err, lovelace.ErrBelowMinimum):
		return 0, nil, fmt.Errorf("%w: %w", ErrBelowMinDeposit, err)

	case err != nil:
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	if p.Datum.IsEmpty() {
		return 0, nil, fmt.Errorf("%w: datum is required",
			ErrInvalidDatum)
	}

	datum, err := p.Datum.Encode()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidDatum, err)
	}

	return amount, datum, nil
}

// UnlockParams are the inputs of an unlock.
type UnlockParams struct {
	// Script is the resolved script guarding the fund.
	Script *plutus.ResolvedScript

	// Fund is the script output to spend.
	Fund *chain.Fund

	// Redeemer is passed to the script.
	Redeemer plutus.StructuredValue
}

// Validate checks the parameters without touching the network. It returns
// the encoded redeemer.
func (p UnlockParams) Validate() ([]byte, error) {
	if p.Redeemer.IsEmpty() {
		return nil, ErrRedeemerMissing
	}

	redeemer, err := p.Redeemer.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRedeemer, err)
	}

	if p.Script == nil {
		return nil, ErrNoScript
	}

	if p.Fund == nil {
		return nil, fmt.Errorf("%w: no fund selected", ErrUnknownFund)
	}

	return redeemer, nil
}

// LockTxBuilder locks funds at a script address.
type LockTxBuilder struct {
	publisher *txPublisher
}

// NewLockTxBuilder returns a builder spending from wallet.
func NewLockTxBuilder(wallet Wallet, composer Composer,
	provider chain.Provider) *LockTxBuilder {

	return &LockTxBuilder{
		publisher: newTxPublisher(wallet, composer, provider),
	}
}

// Lock sends the amount to the script address with the datum inline and
// returns the transaction hash. Parameters are validated before any wallet
// or network call.
func (b *LockTxBuilder) Lock(ctx context.Context,
	params LockParams) (string, error) {

	amount, datum, err := params.Validate()
	if err != nil {
		return "", err
	}

	if !b.publisher.wallet.Connected(ctx) {
		return "", ErrWalletDisconnected
	}

	return b.lock(ctx, params.Script, amount, datum)
}

// lock builds and publishes the lock of validated parameters to a wallet
// already known to be connected.
func (b *LockTxBuilder) lock(ctx context.Context,
	script *plutus.ResolvedScript, amount lovelace.Amount,
	datum []byte) (string, error) {

	change, err := b.publisher.wallet.ChangeAddress(ctx)
	if err != nil {
		return "", mapWalletErr(err)
	}

	intent := &TxIntent{
		Outputs: []TxOutput{{
			Address: script.Address,
			Assets: []chain.Asset{{
				Unit:     lovelace.Unit,
				Quantity: amount.Quantity(),
			}},
			InlineDatum: datum,
		}},
		ChangeAddress: change,
	}

	log.Debugf("Locking %v at %v", amount, script.Address)

	return b.publisher.publish(ctx, intent, false)
}

// UnlockTxBuilder spends funds held at a script address.
type UnlockTxBuilder struct {
	publisher *txPublisher
}

// NewUnlockTxBuilder returns a builder that returns unlocked funds to
// wallet.
func NewUnlockTxBuilder(wallet Wallet, composer Composer,
	provider chain.Provider) *UnlockTxBuilder {

	return &UnlockTxBuilder{
		publisher: newTxPublisher(wallet, composer, provider),
	}
}

// Unlock spends the fund with the redeemer, sending its value to the
// wallet's change address, and returns the transaction hash. The wallet's
// payment key is added as a required signer so scripts can check who
// spends.
func (b *UnlockTxBuilder) Unlock(ctx context.Context,
	params UnlockParams) (string, error) {

	redeemer, err := params.Validate()
	if err != nil {
		return "", err
	}

	if !b.publisher.wallet.Connected(ctx) {
		return "", ErrWalletDisconnected
	}

	return b.unlock(ctx, params, redeemer)
}

// unlock builds and publishes the spend of validated parameters through a
// wallet already known to be connected.
func (b *UnlockTxBuilder) unlock(ctx context.Context, params UnlockParams,
	redeemer []byte) (string, error) {

	wallet := b.publisher.wallet

	change, err := wallet.ChangeAddress(ctx)
	if err != nil {
		return "", mapWalletErr(err)
	}

	pkh, err := plutus.PaymentKeyHash(change)
	if err != nil {
		return "", fmt.Errorf("%w: change address: %w", ErrBuildFailed,
			err)
	}

	collateral, err := wallet.Collateral(ctx)
	if err != nil {
		return "", mapWalletErr(err)
	}

	if len(collateral) == 0 {
		return "", fmt.Errorf("%w: wallet has no collateral",
			ErrInsufficientFunds)
	}

	fund := *params.Fund
	intent := &TxIntent{
		ScriptInputs: []ScriptSpend{{
			Fund:               fund,
			Script:             params.Script.EncodedProgram,
			Version:            params.Script.Version,
			Redeemer:           redeemer,
			InlineDatumPresent: fund.HasInlineDatum(),
		}},
		Collateral:      collateral,
		RequiredSigners: []string{pkh},
		ChangeAddress:   change,
	}

	log.Debugf("Unlocking %v holding %v", fund.Ref, fund.Lovelace())

	return b.publisher.publish(ctx, intent, true)
}
