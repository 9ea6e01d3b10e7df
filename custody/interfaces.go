// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"

	"github.com/spendingapp/custody/chain"
)

// Wallet is the user's signing wallet. Keys never leave it; the custody flow
// only asks for addresses, collateral and signatures.
type Wallet interface {
	// Connected reports whether the wallet is available for use.
	Connected(ctx context.Context) bool

	// ChangeAddress returns the address that receives change and unlocked
	// funds.
	ChangeAddress(ctx context.Context) (string, error)

	// Collateral returns the outputs the wallet sets aside as collateral
	// for script spends.
	Collateral(ctx context.Context) ([]chain.Fund, error)

	// SignTx signs the unsigned transaction in hex and returns the signed
	// transaction in hex. When partial is true the wallet only adds the
	// witnesses it can provide. ErrSignDeclined is returned when the user
	// refuses.
	SignTx(ctx context.Context, unsignedTx string,
		partial bool) (string, error)
}

// Composer turns a TxIntent into a balanced, unsigned transaction. Coin
// selection, fee calculation and script cost evaluation all happen behind
// this interface. Implementations return ErrInsufficientFunds or
// ErrScriptValidationFailed for those conditions.
type Composer interface {
	// Compose returns the unsigned transaction in hex.
	Compose(ctx context.Context, intent *TxIntent) (string, error)
}
