// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package plutus derives script addresses from Plutus programs and encodes
// the structured data (datums and redeemers) those programs consume.
package plutus

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrInvalidProgram is returned when a script program cannot be
	// decoded into a well-formed, CBOR-wrapped UPLC program.
	ErrInvalidProgram = errors.New("invalid script program")

	// ErrUnknownVersion is returned when a script version outside V1-V3 is
	// requested.
	ErrUnknownVersion = errors.New("unknown script version")
)

const (
	// ScriptHashSize is the size in bytes of a script hash.
	ScriptHashSize = 28

	// maxWrapLayers is the number of CBOR byte-string layers a program may
	// arrive wrapped in. Aiken emits one layer, witnesses carry two.
	maxWrapLayers = 2

	// minFlatSize is the smallest flat program that can hold a version
	// triple and a term.
	minFlatSize = 4

	// uplcMajorVersion is the only UPLC major version in use on-chain.
	uplcMajorVersion = 0x01
)

// ScriptVersion is the Plutus language version of a script.
type ScriptVersion uint8

const (
	// VersionUnknown is the zero value and is never valid.
	VersionUnknown ScriptVersion = iota

	// V1 is Plutus V1.
	V1

	// V2 is Plutus V2.
	V2

	// V3 is Plutus V3.
	V3
)

// String returns the conventional name of the version, e.g. "V3".
func (v ScriptVersion) String() string {
	switch v {
	case V1:
		return "V1"

	case V2:
		return "V2"

	case V3:
		return "V3"

	default:
		return "unknown"
	}
}

// ParseScriptVersion parses "V1", "V2" or "V3" (case-insensitive).
func ParseScriptVersion(s string) (ScriptVersion, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "V1":
		return V1, nil

	case "V2":
		return V2, nil

	case "V3":
		return V3, nil

	default:
		return VersionUnknown, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
}

// languageTag returns the byte prepended to the script bytes when hashing.
func (v ScriptVersion) languageTag() (byte, error) {
	switch v {
	case V1, V2, V3:
		return byte(v), nil

	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
}

// ResolvedScript is a script program together with everything derived from
// it. A ResolvedScript is immutable; resolving a different program produces a
// new value.
type ResolvedScript struct {
	// EncodedProgram is the program wrapped in two CBOR byte-string
	// layers, the form attached to transaction witnesses.
	EncodedProgram []byte

	// Version is the Plutus language version the program was resolved
	// for.
	Version ScriptVersion

	// Hash is the blake2b-224 script hash.
	Hash [ScriptHashSize]byte

	// Network is the network the address was derived for.
	Network Network

	// Address is the bech32 enterprise script address.
	Address string
}

// EncodedProgramHex returns the double-wrapped program as hex.
func (r *ResolvedScript) EncodedProgramHex() string {
	return hex.EncodeToString(r.EncodedProgram)
}

// HashHex returns the script hash as hex.
func (r *ResolvedScript) HashHex() string {
	return hex.EncodeToString(r.Hash[:])
}

// Resolve turns a hex encoded script program into its encoded form and
// script address. The program may be raw flat bytes or wrapped in one or two
// CBOR byte-string layers; all forms of the same program resolve to the same
// address. Resolve does not consult any external state.
func Resolve(program string, version ScriptVersion,
	net Network) (*ResolvedScript, error) {

	tag, err := version.languageTag()
	if err != nil {
		return nil, err
	}

	if err := net.validate(); err != nil {
		return nil, err
	}

	flat, err := unwrapProgram(program)
	if err != nil {
		return nil, err
	}

	// The ledger hashes the singly wrapped program, while witnesses carry
	// it wrapped once more.
	single, err := cbor.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}

	double, err := cbor.Marshal(single)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}

	hash, err := scriptHash(tag, single)
	if err != nil {
		return nil, err
	}

	addr, err := scriptAddress(hash, net)
	if err != nil {
		return nil, err
	}

	return &ResolvedScript{
		EncodedProgram: double,
		Version:        version,
		Hash:           hash,
		Network:        net,
		Address:        addr,
	}, nil
}

// unwrapProgram decodes the hex program and peels off any CBOR byte-string
// layers, returning the flat program.
func unwrapProgram(program string) ([]byte, error) {
	program = strings.TrimSpace(program)
	if program == "" {
		return nil, fmt.Errorf("%w: empty program", ErrInvalidProgram)
	}

	raw, err := hex.DecodeString(program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}

	for layer := 0; layer < maxWrapLayers && isByteString(raw); layer++ {
		var inner []byte
		if err := cbor.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: malformed cbor layer %d: %v",
				ErrInvalidProgram, layer+1, err)
		}

		raw = inner
	}

	if isByteString(raw) {
		return nil, fmt.Errorf("%w: too many cbor layers",
			ErrInvalidProgram)
	}

	if len(raw) < minFlatSize {
		return nil, fmt.Errorf("%w: program of %d bytes is too short",
			ErrInvalidProgram, len(raw))
	}

	if raw[0] != uplcMajorVersion {
		return nil, fmt.Errorf("%w: unsupported uplc version %d",
			ErrInvalidProgram, raw[0])
	}

	return raw, nil
}

// isByteString reports whether b starts with a CBOR byte-string head.
func isByteString(b []byte) bool {
	return len(b) > 0 && b[0]>>5 == majorBytes
}

// scriptHash computes blake2b-224(tag || script).
func scriptHash(tag byte, script []byte) ([ScriptHashSize]byte, error) {
	var hash [ScriptHashSize]byte

	h, err := blake2b.New(ScriptHashSize, nil)
	if err != nil {
		return hash, err
	}

	_, _ = h.Write([]byte{tag})
	_, _ = h.Write(script)
	copy(hash[:], h.Sum(nil))

	return hash, nil
}
