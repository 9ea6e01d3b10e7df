// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package lovelace provides an amount type for Cardano's base unit.
package lovelace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// PerAda is the number of lovelace in one ada.
	PerAda = 1_000_000

	// MinDeposit is the smallest amount accepted for an output locked at a
	// script. Smaller outputs risk falling below the ledger's minimum
	// UTxO value once a datum is attached.
	MinDeposit Amount = 1_000_000

	// Unit is the asset unit name providers use for lovelace.
	Unit = "lovelace"
)

var (
	// ErrEmptyAmount is returned when no amount was entered.
	ErrEmptyAmount = errors.New("amount is empty")

	// ErrNotDigits is returned when an amount contains anything other than
	// the digits 0-9.
	ErrNotDigits = errors.New("amount must contain digits only")

	// ErrAmountOverflow is returned when an amount does not fit in 64 bits.
	ErrAmountOverflow = errors.New("amount too large")

	// ErrBelowMinimum is returned when an amount is below a required
	// minimum.
	ErrBelowMinimum = errors.New("amount below minimum")
)

// Amount is a quantity of lovelace.
type Amount uint64

// ParseAmount parses a digit-only string. Signs, separators, decimal points
// and surrounding whitespace are all rejected.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return 0, ErrEmptyAmount
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrNotDigits, s)
		}
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}

	return Amount(v), nil
}

// ParseDeposit parses s and checks that it is at least minimum.
func ParseDeposit(s string, minimum Amount) (Amount, error) {
	amt, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}

	if amt < minimum {
		return 0, fmt.Errorf("%w: %v is less than %v", ErrBelowMinimum,
			amt, minimum)
	}

	return amt, nil
}

// String formats the amount with its unit, e.g. "1500000 lovelace".
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10) + " " + Unit
}

// Quantity returns the bare decimal quantity as providers expect it.
func (a Amount) Quantity() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Ada formats the amount in ada with six decimals, trailing zeros trimmed.
func (a Amount) Ada() string {
	whole := uint64(a) / PerAda
	frac := uint64(a) % PerAda

	if frac == 0 {
		return strconv.FormatUint(whole, 10) + " ADA"
	}

	fracStr := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")

	return fmt.Sprintf("%d.%s ADA", whole, fracStr)
}
