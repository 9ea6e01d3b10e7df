// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package plutus

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	// ErrUnknownNetwork is returned for a network that is neither testnet
	// nor mainnet.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrInvalidAddress is returned when an address cannot be decoded.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotKeyAddress is returned when an address has no payment key
	// hash, e.g. a script or Byron address.
	ErrNotKeyAddress = errors.New("address has no payment key hash")
)

// Network identifies the Cardano network an address belongs to.
type Network uint8

const (
	// Testnet covers preprod, preview and other test networks (network
	// id 0).
	Testnet Network = 0

	// Mainnet is the production network (network id 1).
	Mainnet Network = 1
)

const (
	// hrpTestnet is the bech32 prefix of test network addresses.
	hrpTestnet = "addr_test"

	// hrpMainnet is the bech32 prefix of mainnet addresses.
	hrpMainnet = "addr"

	// headerEnterpriseScript is the header nibble of an address whose
	// payment part is a script hash and that carries no stake part.
	headerEnterpriseScript = 0x70

	// headerTypeByron is the header nibble of bootstrap addresses.
	headerTypeByron = 0x8

	// credentialSize is the size of a payment credential.
	credentialSize = 28
)

// String returns "testnet" or "mainnet".
func (n Network) String() string {
	switch n {
	case Testnet:
		return "testnet"

	case Mainnet:
		return "mainnet"

	default:
		return "unknown"
	}
}

// ParseNetwork maps a network name onto its network id. Preprod and preview
// share the testnet id.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet":
		return Mainnet, nil

	case "testnet", "preprod", "preview":
		return Testnet, nil

	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

func (n Network) validate() error {
	if n != Testnet && n != Mainnet {
		return fmt.Errorf("%w: id %d", ErrUnknownNetwork, n)
	}

	return nil
}

func (n Network) hrp() string {
	if n == Mainnet {
		return hrpMainnet
	}

	return hrpTestnet
}

// scriptAddress builds the bech32 enterprise address for a script hash.
func scriptAddress(hash [ScriptHashSize]byte, net Network) (string, error) {
	payload := make([]byte, 0, 1+ScriptHashSize)
	payload = append(payload, headerEnterpriseScript|byte(net))
	payload = append(payload, hash[:]...)

	addr, err := bech32.EncodeFromBase256(net.hrp(), payload)
	if err != nil {
		return "", fmt.Errorf("encode script address: %w", err)
	}

	return addr, nil
}

// PaymentKeyHash returns the hex payment key hash of a Shelley address. It is
// the identifier a wallet is known by to scripts that check signatories.
func PaymentKeyHash(address string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	if hrp != hrpTestnet && hrp != hrpMainnet {
		return "", fmt.Errorf("%w: unexpected prefix %q",
			ErrInvalidAddress, hrp)
	}

	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	if len(payload) < 1+credentialSize {
		return "", fmt.Errorf("%w: payload of %d bytes", ErrInvalidAddress,
			len(payload))
	}

	// The high nibble is the address type. Odd types carry a script as
	// payment credential, types above 7 have none.
	addrType := payload[0] >> 4
	if addrType >= headerTypeByron || addrType&1 == 1 {
		return "", fmt.Errorf("%w: address type %d", ErrNotKeyAddress,
			addrType)
	}

	return hex.EncodeToString(payload[1 : 1+credentialSize]), nil
}
