// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/pkg/lovelace"
	"golang.org/x/sync/singleflight"
)

// FundSet is an ordered collection of funds with unique references. A
// FundSet is never modified; a refresh produces a new one. The nil FundSet
// is empty.
type FundSet struct {
	funds []chain.Fund
	index map[chain.OutRef]int
}

// NewFundSet builds a set from funds, keeping their order. It fails with
// ErrDuplicateFund when two funds share a reference.
func NewFundSet(funds []chain.Fund) (*FundSet, error) {
	set := &FundSet{
		funds: make([]chain.Fund, 0, len(funds)),
		index: make(map[chain.OutRef]int, len(funds)),
	}

	for _, f := range funds {
		if _, ok := set.index[f.Ref]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateFund, f.Ref)
		}

		set.index[f.Ref] = len(set.funds)
		set.funds = append(set.funds, f)
	}

	return set, nil
}

// Len returns the number of funds.
func (s *FundSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.funds)
}

// Funds returns a copy of the funds in order.
func (s *FundSet) Funds() []chain.Fund {
	if s == nil {
		return nil
	}

	out := make([]chain.Fund, len(s.funds))
	copy(out, s.funds)

	return out
}

// Lookup returns the fund with the given reference.
func (s *FundSet) Lookup(ref chain.OutRef) fn.Option[chain.Fund] {
	if s == nil {
		return fn.None[chain.Fund]()
	}

	i, ok := s.index[ref]
	if !ok {
		return fn.None[chain.Fund]()
	}

	return fn.Some(s.funds[i])
}

// Refs returns the set of references held.
func (s *FundSet) Refs() fn.Set[chain.OutRef] {
	refs := fn.NewSet[chain.OutRef]()
	if s == nil {
		return refs
	}

	for _, f := range s.funds {
		refs.Add(f.Ref)
	}

	return refs
}

// Total returns the lovelace held by all funds.
func (s *FundSet) Total() lovelace.Amount {
	var total lovelace.Amount
	if s == nil {
		return total
	}

	for _, f := range s.funds {
		total += f.Lovelace()
	}

	return total
}

// Inventory loads the funds held at script addresses. Concurrent refreshes
// of one address share a single provider fetch.
type Inventory struct {
	provider chain.Provider

	group singleflight.Group

	// mu guards last.
	mu sync.Mutex

	// last holds the most recent successful fund set per address.
	last map[string]*FundSet
}

// NewInventory returns an inventory reading from provider.
func NewInventory(provider chain.Provider) *Inventory {
	return &Inventory{
		provider: provider,
		last:     make(map[string]*FundSet),
	}
}

// Refresh fetches the funds currently held at address.
//
// On failure it returns the last successful set for the address, which may
// be nil, together with an error wrapping chain.ErrProviderUnavailable. A
// caller whose context ends while the fetch is running returns with the
// context error; the fetch itself continues for the other callers.
func (i *Inventory) Refresh(ctx context.Context,
	address string) (*FundSet, error) {

	if address == "" {
		return nil, ErrNoScript
	}

	// The shared fetch must outlive any single caller, so it only inherits
	// the values of ctx.
	fetchCtx := context.WithoutCancel(ctx)

	resultChan := i.group.DoChan(address, func() (any, error) {
		return i.fetch(fetchCtx, address)
	})

	select {
	case res := <-resultChan:
		if res.Err != nil {
			return i.Last(address), res.Err
		}

		set, ok := res.Val.(*FundSet)
		if !ok {
			return i.Last(address), fmt.Errorf("%w: unexpected "+
				"result %T", chain.ErrProviderUnavailable, res.Val)
		}

		return set, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch loads the funds from the provider and records them as the latest
// set for address.
func (i *Inventory) fetch(ctx context.Context,
	address string) (*FundSet, error) {

	funds, err := i.provider.FetchAddressUTxOs(ctx, address)
	if err != nil {
		if !errors.Is(err, chain.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %w", chain.ErrProviderUnavailable,
				err)
		}

		log.Warnf("Unable to refresh funds at %v: %v", address, err)

		return nil, err
	}

	set, err := NewFundSet(funds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrProviderUnavailable,
			err)
	}

	i.mu.Lock()
	i.last[address] = set
	i.mu.Unlock()

	log.Debugf("Loaded %d funds holding %v at %v", set.Len(), set.Total(),
		address)

	return set, nil
}

// Last returns the most recent successful set for address, or nil.
func (i *Inventory) Last(address string) *FundSet {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.last[address]
}

// Forget drops the cached set of address.
func (i *Inventory) Forget(address string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.last, address)
}
