// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spendingapp/custody/chain"
)

// txPublisher runs the compose, sign and submit steps shared by the lock and
// unlock builders.
type txPublisher struct {
	wallet   Wallet
	composer Composer
	provider chain.Provider
}

// newTxPublisher returns a publisher over the given collaborators.
func newTxPublisher(wallet Wallet, composer Composer,
	provider chain.Provider) *txPublisher {

	return &txPublisher{
		wallet:   wallet,
		composer: composer,
		provider: provider,
	}
}

// publish composes the intent, has the wallet sign it and submits it. The
// failure of each step is mapped onto the custody error of that step.
// Nothing is retried.
func (p *txPublisher) publish(ctx context.Context, intent *TxIntent,
	partialSign bool) (string, error) {

	if err := intent.validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	log.Tracef("Composing transaction intent: %v", newLogClosure(
		func() string {
			return spew.Sdump(intent)
		}),
	)

	unsigned, err := p.composer.Compose(ctx, intent)
	if err != nil {
		return "", mapComposeErr(err)
	}

	signed, err := p.wallet.SignTx(ctx, unsigned, partialSign)
	if err != nil {
		return "", mapWalletErr(err)
	}

	hash, err := p.provider.SubmitTx(ctx, signed)
	if err != nil {
		return "", mapSubmitErr(err, len(intent.ScriptInputs) > 0)
	}

	log.Infof("Published transaction %v", hash)

	return hash, nil
}

// mapComposeErr keeps the errors the composer is documented to return and
// reports everything else as ErrBuildFailed.
func mapComposeErr(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrScriptValidationFailed),
		errors.Is(err, ErrWalletDisconnected):

		return err

	default:
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
}

// mapWalletErr reports a wallet failure as ErrWalletRejected unless the
// wallet went away.
func mapWalletErr(err error) error {
	switch {
	case errors.Is(err, ErrWalletDisconnected),
		errors.Is(err, ErrWalletRejected),
		errors.Is(err, ErrInsufficientFunds):

		return err

	default:
		return fmt.Errorf("%w: %w", ErrWalletRejected, err)
	}
}

// mapSubmitErr maps a provider submit failure. Spent inputs only mean a
// stale fund when a script output was being spent; for a lock they are the
// wallet's own inputs.
func mapSubmitErr(err error, spendsScript bool) error {
	switch {
	case spendsScript && errors.Is(err, chain.ErrInputsSpent):
		return fmt.Errorf("%w: %w", ErrStaleFund, err)

	case errors.Is(err, chain.ErrScriptFailure):
		return fmt.Errorf("%w: %w", ErrScriptValidationFailed, err)

	default:
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
}
