// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/custody"
	"github.com/spendingapp/custody/pkg/lovelace"
	"github.com/spendingapp/custody/plutus"
)

// json mirrors encoding/json on top of json-iterator.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// commandBase carries what every command needs.
type commandBase struct {
	cfg *config
	out io.Writer
}

// newContext returns a context bounded by the configured timeout and
// cancelled on interrupt.
func (b *commandBase) newContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)

	return ctx, func() {
		cancel()
		stop()
	}
}

// printJSON writes v as indented JSON.
func (b *commandBase) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(b.out, string(out))

	return err
}

// report turns a custody error into the user message, keeping the cause for
// the log.
func report(err error) error {
	if err == nil {
		return nil
	}

	log.Debugf("Command failed: %v", err)

	return fmt.Errorf("%s (%w)", custody.UserMessage(err), err)
}

// scriptInfo is the printed form of a resolved script.
type scriptInfo struct {
	Address        string `json:"address"`
	Hash           string `json:"hash"`
	Version        string `json:"version"`
	EncodedProgram string `json:"encoded_program"`
}

func newScriptInfo(s *plutus.ResolvedScript) scriptInfo {
	return scriptInfo{
		Address:        s.Address,
		Hash:           s.HashHex(),
		Version:        s.Version.String(),
		EncodedProgram: s.EncodedProgramHex(),
	}
}

// resolveCommand prints the address of a script program.
type resolveCommand struct {
	commandBase `no-flag:"true"`

	Program string `long:"program" short:"p" description:"Script program in hex, or @file"`
}

// Execute resolves the program without touching the network.
func (c *resolveCommand) Execute(_ []string) error {
	program, err := loadProgram(c.Program)
	if err != nil {
		return err
	}

	net, err := c.cfg.network()
	if err != nil {
		return err
	}

	version, err := c.cfg.version()
	if err != nil {
		return err
	}

	script, err := plutus.Resolve(program, version, net)
	if err != nil {
		return report(err)
	}

	return c.printJSON(newScriptInfo(script))
}

// utxosCommand lists the funds held at a script address.
type utxosCommand struct {
	commandBase `no-flag:"true"`

	Program string `long:"program" short:"p" description:"Script program in hex, or @file"`
}

// Execute resolves the program and lists its funds.
func (c *utxosCommand) Execute(_ []string) error {
	ctx, cancel := c.newContext()
	defer cancel()

	ctrl, err := loadFlow(ctx, c.cfg, c.Program)
	if err != nil {
		return err
	}

	if _, err := ctrl.Refresh(ctx); err != nil {
		return report(err)
	}

	status := ctrl.Status()
	if err := printFunds(c.out, ctrl.Summaries(),
		status.Funds.Total()); err != nil {

		return err
	}

	_, err = fmt.Fprintln(c.out, status.Message)

	return err
}

// printFunds writes one line per fund followed by the total in ada.
func printFunds(w io.Writer, summaries []custody.FundSummary,
	total lovelace.Amount) error {

	for _, s := range summaries {
		_, err := fmt.Fprintf(w, "%v  %v  (%s)\n", s.Ref, s,
			s.Lovelace.Ada())
		if err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%d funds holding %s\n", len(summaries),
		total.Ada())

	return err
}

// lockCommand locks lovelace at a script with an inline datum.
type lockCommand struct {
	commandBase `no-flag:"true"`

	Program   string `long:"program" short:"p" description:"Script program in hex, or @file"`
	Amount    string `long:"amount" short:"a" required:"true" description:"Lovelace to lock, digits only"`
	Datum     string `long:"datum" required:"true" description:"Datum text"`
	DatumKind string `long:"datumkind" default:"data" choice:"data" choice:"constructor" description:"How the datum text is interpreted"`
}

// Execute locks the funds and prints the transaction hash.
func (c *lockCommand) Execute(_ []string) error {
	kind, err := plutus.ParseValueKind(c.DatumKind)
	if err != nil {
		return err
	}

	ctx, cancel := c.newContext()
	defer cancel()

	ctrl, err := loadFlow(ctx, c.cfg, c.Program)
	if err != nil {
		return err
	}

	hash, err := ctrl.Lock(ctx, custody.LockRequest{
		Amount: c.Amount,
		Datum:  plutus.StructuredValue{Kind: kind, Raw: c.Datum},
	})
	if err != nil {
		return report(err)
	}

	_, err = fmt.Fprintf(c.out, "%s\n%s\n", hash, ctrl.Status().Message)

	return err
}

// unlockCommand spends a fund held at a script.
type unlockCommand struct {
	commandBase `no-flag:"true"`

	Program      string `long:"program" short:"p" description:"Script program in hex, or @file"`
	UTxO         string `long:"utxo" short:"u" required:"true" description:"Fund to spend as txhash#index"`
	Redeemer     string `long:"redeemer" required:"true" description:"Redeemer text"`
	RedeemerKind string `long:"redeemerkind" default:"data" choice:"data" choice:"constructor" description:"How the redeemer text is interpreted"`
}

// Execute loads the funds, spends the selected one and prints the
// transaction hash.
func (c *unlockCommand) Execute(_ []string) error {
	ref, err := chain.ParseOutRef(c.UTxO)
	if err != nil {
		return err
	}

	kind, err := plutus.ParseValueKind(c.RedeemerKind)
	if err != nil {
		return err
	}

	ctx, cancel := c.newContext()
	defer cancel()

	ctrl, err := loadFlow(ctx, c.cfg, c.Program)
	if err != nil {
		return err
	}

	if _, err := ctrl.Refresh(ctx); err != nil {
		return report(err)
	}

	hash, err := ctrl.Unlock(ctx, custody.UnlockRequest{
		Ref:      ref,
		Redeemer: plutus.StructuredValue{Kind: kind, Raw: c.Redeemer},
	})
	if err != nil {
		return report(err)
	}

	_, err = fmt.Fprintf(c.out, "%s\n%s\n", hash, ctrl.Status().Message)

	return err
}

// pkhCommand prints the payment key hash of the wallet.
type pkhCommand struct {
	commandBase `no-flag:"true"`
}

// Execute asks the wallet for its change address and prints its key hash.
func (c *pkhCommand) Execute(_ []string) error {
	ctx, cancel := c.newContext()
	defer cancel()

	ctrl, err := c.cfg.newController()
	if err != nil {
		return err
	}

	pkh, err := ctrl.PubKeyHash(ctx)
	if err != nil {
		return report(err)
	}

	_, err = fmt.Fprintln(c.out, pkh)

	return err
}

// encodeCommand prints the CBOR encoding of a datum or redeemer.
type encodeCommand struct {
	commandBase `no-flag:"true"`

	Kind string `long:"kind" short:"k" default:"data" choice:"data" choice:"constructor" description:"How the value text is interpreted"`

	Args struct {
		Value string `positional-arg-name:"value" description:"Value text"`
	} `positional-args:"yes" required:"yes"`
}

// Execute encodes the value offline.
func (c *encodeCommand) Execute(_ []string) error {
	kind, err := plutus.ParseValueKind(c.Kind)
	if err != nil {
		return err
	}

	enc, err := plutus.Encode(kind, c.Args.Value)
	if err != nil {
		if errors.Is(err, plutus.ErrMalformedValue) {
			return fmt.Errorf("%w: check the value against the %v "+
				"schema", err, kind)
		}

		return err
	}

	_, err = fmt.Fprintln(c.out, hex.EncodeToString(enc))

	return err
}

// loadFlow builds a controller and submits the program to it.
func loadFlow(ctx context.Context, cfg *config,
	program string) (*custody.Controller, error) {

	program, err := loadProgram(program)
	if err != nil {
		return nil, err
	}

	ctrl, err := cfg.newController()
	if err != nil {
		return nil, err
	}

	if _, err := ctrl.SubmitProgram(ctx, program); err != nil {
		return nil, report(err)
	}

	return ctrl, nil
}
