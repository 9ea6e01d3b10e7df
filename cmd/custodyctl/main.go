// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command custodyctl locks funds at a Plutus script and unlocks them again
// through a CIP-30 wallet bridge and the Blockfrost API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args, sets up logging and executes the selected command.
func run(args []string, out io.Writer) error {
	cfg := defaultConfig()

	parser := newParser(&cfg, out)
	parser.CommandHandler = func(cmd flags.Commander, cmdArgs []string) error {
		if cmd == nil {
			return nil
		}

		if err := setLogLevels(cfg.DebugLevel); err != nil {
			return err
		}

		if cfg.LogDir != "" {
			if err := initLogRotator(cfg.LogDir); err != nil {
				return err
			}
			defer closeLogRotator()
		}

		log.Debugf("Logging subsystems: %s",
			strings.Join(supportedSubsystems(), ", "))

		return cmd.Execute(cmdArgs)
	}

	_, err := parser.ParseArgs(args)

	return err
}

// newParser returns the command line parser with every command registered.
func newParser(cfg *config, out io.Writer) *flags.Parser {
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)

	base := commandBase{cfg: cfg, out: out}

	commands := []struct {
		name  string
		short string
		long  string
		data  any
	}{
		{
			name:  "resolve",
			short: "Print the address of a script",
			long: "Resolve a script program into its address and " +
				"hash without contacting the network.",
			data: &resolveCommand{commandBase: base},
		},
		{
			name:  "utxos",
			short: "List the funds held at a script",
			long:  "Load every unspent output held at the script address.",
			data:  &utxosCommand{commandBase: base},
		},
		{
			name:  "lock",
			short: "Lock lovelace at a script",
			long: "Build, sign and submit a transaction that locks " +
				"lovelace at the script with an inline datum.",
			data: &lockCommand{commandBase: base},
		},
		{
			name:  "unlock",
			short: "Spend a fund held at a script",
			long: "Build, sign and submit a transaction that spends " +
				"a script output with the given redeemer.",
			data: &unlockCommand{commandBase: base},
		},
		{
			name:  "pkh",
			short: "Print the payment key hash of the wallet",
			long: "Print the payment key hash of the wallet change " +
				"address, for use in datums.",
			data: &pkhCommand{commandBase: base},
		},
		{
			name:  "encode",
			short: "Print the CBOR encoding of a value",
			long: "Encode a datum or redeemer the way lock and unlock " +
				"do, without contacting the network.",
			data: &encodeCommand{commandBase: base},
		},
	}

	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long,
			c.data); err != nil {

			// Registration only fails on malformed struct tags.
			panic(err)
		}
	}

	return parser
}
