// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletbridge

import (
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/custody"
)

// assetJSON is a single asset quantity on the wire.
type assetJSON struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// utxoJSON is an unspent output on the wire. Byte fields are hex.
type utxoJSON struct {
	TxHash      string      `json:"tx_hash"`
	OutputIndex uint32      `json:"output_index"`
	Address     string      `json:"address"`
	Amount      []assetJSON `json:"amount"`
	InlineDatum string      `json:"inline_datum,omitempty"`
	DataHash    string      `json:"data_hash,omitempty"`
}

// outputJSON is an output to create.
type outputJSON struct {
	Address     string      `json:"address"`
	Amount      []assetJSON `json:"amount"`
	InlineDatum string      `json:"inline_datum,omitempty"`
}

// scriptInputJSON is a script output to spend.
type scriptInputJSON struct {
	UTxO               utxoJSON `json:"utxo"`
	Script             string   `json:"script"`
	Version            string   `json:"version"`
	Redeemer           string   `json:"redeemer"`
	InlineDatumPresent bool     `json:"inline_datum_present"`
}

// composeRequest is the body of POST /tx/compose.
type composeRequest struct {
	Outputs         []outputJSON      `json:"outputs"`
	ScriptInputs    []scriptInputJSON `json:"script_inputs"`
	Collateral      []utxoJSON        `json:"collateral"`
	RequiredSigners []string          `json:"required_signers"`
	ChangeAddress   string            `json:"change_address"`
}

// signRequest is the body of POST /wallet/sign.
type signRequest struct {
	Tx      string `json:"tx"`
	Partial bool   `json:"partial"`
}

// txResponse carries a transaction in hex.
type txResponse struct {
	Tx string `json:"tx"`
}

// statusResponse is the body of GET /wallet/status.
type statusResponse struct {
	Connected bool `json:"connected"`
}

// addressResponse is the body of GET /wallet/change-address.
type addressResponse struct {
	Address string `json:"address"`
}

// collateralResponse is the body of GET /wallet/collateral.
type collateralResponse struct {
	UTxOs []utxoJSON `json:"utxos"`
}

// errorResponse is the body of a non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func assetsToJSON(assets []chain.Asset) []assetJSON {
	out := make([]assetJSON, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetJSON{Unit: a.Unit, Quantity: a.Quantity})
	}

	return out
}

func assetsFromJSON(assets []assetJSON) []chain.Asset {
	out := make([]chain.Asset, 0, len(assets))
	for _, a := range assets {
		out = append(out, chain.Asset{Unit: a.Unit, Quantity: a.Quantity})
	}

	return out
}

func fundToJSON(f chain.Fund) utxoJSON {
	u := utxoJSON{
		TxHash:      f.Ref.TxHash,
		OutputIndex: f.Ref.Index,
		Address:     f.Address,
		Amount:      assetsToJSON(f.Assets),
		DataHash:    f.DatumHash,
	}

	f.InlineDatum.WhenSome(func(d []byte) {
		u.InlineDatum = hex.EncodeToString(d)
	})

	return u
}

func fundFromJSON(u utxoJSON) (chain.Fund, error) {
	ref, err := chain.ParseOutRef(chain.OutRef{
		TxHash: u.TxHash,
		Index:  u.OutputIndex,
	}.String())
	if err != nil {
		return chain.Fund{}, err
	}

	fund := chain.Fund{
		Ref:         ref,
		Address:     u.Address,
		Assets:      assetsFromJSON(u.Amount),
		InlineDatum: fn.None[[]byte](),
		DatumHash:   u.DataHash,
	}

	if u.InlineDatum != "" {
		datum, err := hex.DecodeString(u.InlineDatum)
		if err != nil {
			return chain.Fund{}, fmt.Errorf("inline datum of %v: %w",
				ref, err)
		}

		fund.InlineDatum = fn.Some(datum)
	}

	return fund, nil
}

// newComposeRequest converts an intent into its wire form.
func newComposeRequest(intent *custody.TxIntent) *composeRequest {
	req := &composeRequest{
		Outputs:         make([]outputJSON, 0, len(intent.Outputs)),
		ScriptInputs:    make([]scriptInputJSON, 0, len(intent.ScriptInputs)),
		Collateral:      make([]utxoJSON, 0, len(intent.Collateral)),
		RequiredSigners: append([]string{}, intent.RequiredSigners...),
		ChangeAddress:   intent.ChangeAddress,
	}

	for _, o := range intent.Outputs {
		req.Outputs = append(req.Outputs, outputJSON{
			Address:     o.Address,
			Amount:      assetsToJSON(o.Assets),
			InlineDatum: hex.EncodeToString(o.InlineDatum),
		})
	}

	for _, in := range intent.ScriptInputs {
		req.ScriptInputs = append(req.ScriptInputs, scriptInputJSON{
			UTxO:               fundToJSON(in.Fund),
			Script:             hex.EncodeToString(in.Script),
			Version:            in.Version.String(),
			Redeemer:           hex.EncodeToString(in.Redeemer),
			InlineDatumPresent: in.InlineDatumPresent,
		})
	}

	for _, f := range intent.Collateral {
		req.Collateral = append(req.Collateral, fundToJSON(f))
	}

	return req
}
