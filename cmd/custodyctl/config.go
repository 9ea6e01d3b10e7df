// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/custody"
	"github.com/spendingapp/custody/plutus"
	"github.com/spendingapp/custody/walletbridge"
)

const (
	defaultNetwork       = "preprod"
	defaultScriptVersion = "V3"
	defaultDebugLevel    = "info"
	defaultTimeout       = 2 * time.Minute

	// programFilePrefix marks a program argument that names a file.
	programFilePrefix = "@"
)

var (
	// errMissingProgram is returned when a command needs a script program
	// and none was given.
	errMissingProgram = errors.New("a script program is required " +
		"(--program)")

	// errNetworkMismatch is returned when the Blockfrost URL serves a
	// different network than the one selected.
	errNetworkMismatch = errors.New("blockfrost url does not match network")
)

// config holds the global options shared by every command.
//
//nolint:lll
type config struct {
	Network       string        `long:"network" env:"CUSTODY_NETWORK" default:"preprod" description:"Cardano network: preprod, preview, testnet or mainnet"`
	ScriptVersion string        `long:"scriptversion" env:"CUSTODY_SCRIPT_VERSION" default:"V3" description:"Plutus language version of the script: V1, V2 or V3"`
	LogDir        string        `long:"logdir" env:"CUSTODY_LOG_DIR" description:"Directory to also write rotated log files to"`
	DebugLevel    string        `short:"d" long:"debuglevel" env:"CUSTODY_DEBUG_LEVEL" default:"info" description:"Logging level for all subsystems"`
	Timeout       time.Duration `long:"timeout" env:"CUSTODY_TIMEOUT" default:"2m" description:"Upper bound for a single command"`

	Blockfrost blockfrostConfig `group:"Blockfrost" namespace:"blockfrost"`
	Bridge     bridgeConfig     `group:"Wallet bridge" namespace:"bridge"`
}

// blockfrostConfig holds the chain provider options.
//
//nolint:lll
type blockfrostConfig struct {
	URL       string `long:"url" env:"BLOCKFROST_URL" description:"Blockfrost API root, chosen from --network when unset"`
	ProjectID string `long:"projectid" env:"BLOCKFROST_PROJECT_ID" description:"Blockfrost project id"`
	RateLimit int    `long:"ratelimit" env:"BLOCKFROST_RATE_LIMIT" default:"10" description:"Requests per second sent to Blockfrost, negative for no limit"`
}

// bridgeConfig holds the wallet bridge options.
//
//nolint:lll
type bridgeConfig struct {
	URL string `long:"url" env:"CUSTODY_BRIDGE_URL" default:"http://127.0.0.1:8090" description:"Root URL of the CIP-30 wallet bridge"`
}

// defaultConfig returns the configuration used before flags are applied.
func defaultConfig() config {
	return config{
		Network:       defaultNetwork,
		ScriptVersion: defaultScriptVersion,
		DebugLevel:    defaultDebugLevel,
		Timeout:       defaultTimeout,
		Blockfrost: blockfrostConfig{
			RateLimit: chain.DefaultRequestsPerSecond,
		},
		Bridge: bridgeConfig{
			URL: walletbridge.DefaultURL,
		},
	}
}

// network parses the configured network.
func (c *config) network() (plutus.Network, error) {
	return plutus.ParseNetwork(c.Network)
}

// version parses the configured script version.
func (c *config) version() (plutus.ScriptVersion, error) {
	return plutus.ParseScriptVersion(c.ScriptVersion)
}

// blockfrostURL returns the Blockfrost root to use. An unset URL follows the
// selected network. A URL naming another Cardano network is rejected.
func (c *config) blockfrostURL() (string, error) {
	want, err := chain.BlockfrostURL(c.Network)
	if err != nil {
		return "", err
	}

	if c.Blockfrost.URL == "" {
		return want, nil
	}

	u, err := url.Parse(c.Blockfrost.URL)
	if err != nil {
		return "", fmt.Errorf("blockfrost url: %w", err)
	}

	// Self-hosted endpoints carry no network in their host and are taken
	// as given.
	host := strings.ToLower(u.Hostname())
	wantHost := strings.SplitN(want, "/", 4)[2]
	for _, name := range []string{"mainnet", "preprod", "preview"} {
		if !strings.HasPrefix(host, "cardano-"+name+".") {
			continue
		}

		if host != wantHost {
			return "", fmt.Errorf("%w: %s serves %s, network is %s",
				errNetworkMismatch, host, name, c.Network)
		}
	}

	return c.Blockfrost.URL, nil
}

// newController wires the Blockfrost provider and the wallet bridge into a
// custody controller.
func (c *config) newController() (*custody.Controller, error) {
	net, err := c.network()
	if err != nil {
		return nil, err
	}

	version, err := c.version()
	if err != nil {
		return nil, err
	}

	baseURL, err := c.blockfrostURL()
	if err != nil {
		return nil, err
	}

	provider, err := chain.NewBlockfrostClient(chain.BlockfrostConfig{
		BaseURL:           baseURL,
		ProjectID:         c.Blockfrost.ProjectID,
		Network:           strings.ToLower(c.Network),
		RequestsPerSecond: c.Blockfrost.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	bridge, err := walletbridge.New(walletbridge.Config{
		URL:     c.Bridge.URL,
		Timeout: c.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return custody.NewController(custody.Config{
		Network:  net,
		Version:  version,
		Wallet:   bridge,
		Composer: bridge,
		Provider: provider,
	})
}

// loadProgram returns the program hex. A value starting with "@" names a
// file holding the program.
func loadProgram(program string) (string, error) {
	program = strings.TrimSpace(program)
	if program == "" {
		return "", errMissingProgram
	}

	if !strings.HasPrefix(program, programFilePrefix) {
		return program, nil
	}

	path := filepath.Clean(strings.TrimPrefix(program, programFilePrefix))

	// #nosec G304 -- the path is supplied by the operator.
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read program file: %w", err)
	}

	return strings.TrimSpace(string(raw)), nil
}
