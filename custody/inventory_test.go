package custody

import (
	"context"
	"testing"

	"github.com/spendingapp/custody/chain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testScriptAddress = "addr_test1wqscriptaddress"

// TestNewFundSetRejectsDuplicates checks reference uniqueness.
func TestNewFundSetRejectsDuplicates(t *testing.T) {
	t.Parallel()

	f := testFund(testScriptAddress, 0, "2000000")

	set, err := NewFundSet([]chain.Fund{f, f})
	require.ErrorIs(t, err, ErrDuplicateFund)
	require.Nil(t, set)
}

// TestFundSetAccessors checks lookup, order and totals.
func TestFundSetAccessors(t *testing.T) {
	t.Parallel()

	f0 := testFund(testScriptAddress, 0, "2000000")
	f1 := testFund(testScriptAddress, 1, "3000000")

	set, err := NewFundSet([]chain.Fund{f0, f1})
	require.NoError(t, err)

	require.Equal(t, 2, set.Len())
	require.Equal(t, []chain.Fund{f0, f1}, set.Funds())
	require.EqualValues(t, 5_000_000, set.Total())
	require.True(t, set.Refs().Contains(f1.Ref))

	got, err := set.Lookup(f1.Ref).UnwrapOrErr(errMock)
	require.NoError(t, err)
	require.Equal(t, f1, got)

	missing := testFund(testScriptAddress, 9, "1")
	require.True(t, set.Lookup(missing.Ref).IsNone())

	// The nil set is empty.
	var empty *FundSet
	require.Zero(t, empty.Len())
	require.Empty(t, empty.Funds())
	require.True(t, empty.Lookup(f0.Ref).IsNone())
}

// TestInventoryRefresh checks a successful refresh and that a failed one
// returns the last set with an advisory error.
func TestInventoryRefresh(t *testing.T) {
	t.Parallel()

	// Arrange: the first fetch succeeds, the second fails.
	m := newTestMocks(t)
	inv := NewInventory(m.provider)

	funds := []chain.Fund{testFund(testScriptAddress, 0, "2000000")}
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, testScriptAddress,
	).Return(funds, nil).Once()
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, testScriptAddress,
	).Return(nil, errMock).Once()

	// Act and assert: the first refresh loads the set.
	set, err := inv.Refresh(context.Background(), testScriptAddress)
	require.NoError(t, err)
	require.Equal(t, funds, set.Funds())

	// The failing refresh hands back the previous set.
	stale, err := inv.Refresh(context.Background(), testScriptAddress)
	require.ErrorIs(t, err, chain.ErrProviderUnavailable)
	require.ErrorIs(t, err, errMock)
	require.Same(t, set, stale)
	require.Same(t, set, inv.Last(testScriptAddress))
}

// TestInventoryRefreshDuplicateFromProvider checks that inconsistent
// provider data is reported as a provider failure.
func TestInventoryRefreshDuplicateFromProvider(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	inv := NewInventory(m.provider)

	f := testFund(testScriptAddress, 0, "2000000")
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, testScriptAddress,
	).Return([]chain.Fund{f, f}, nil).Once()

	set, err := inv.Refresh(context.Background(), testScriptAddress)
	require.ErrorIs(t, err, chain.ErrProviderUnavailable)
	require.ErrorIs(t, err, ErrDuplicateFund)
	require.Nil(t, set)
}

// TestInventoryRefreshEmptyAddress checks that no fetch happens without an
// address.
func TestInventoryRefreshEmptyAddress(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	inv := NewInventory(m.provider)

	_, err := inv.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrNoScript)
}

// TestInventoryRefreshJoinsInFlightFetch checks that a refresh issued while
// a fetch is running joins it, and that a joiner whose context ends returns
// without stopping the shared fetch.
func TestInventoryRefreshJoinsInFlightFetch(t *testing.T) {
	t.Parallel()

	// Arrange: a single fetch that blocks until released.
	m := newTestMocks(t)
	inv := NewInventory(m.provider)

	started := make(chan struct{})
	release := make(chan struct{})
	funds := []chain.Fund{testFund(testScriptAddress, 0, "2000000")}

	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, testScriptAddress,
	).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(funds, nil).Once()

	type result struct {
		set *FundSet
		err error
	}
	first := make(chan result, 1)

	go func() {
		set, err := inv.Refresh(context.Background(), testScriptAddress)
		first <- result{set, err}
	}()
	<-started

	// Act: a joiner with an expired context returns at once.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set, err := inv.Refresh(ctx, testScriptAddress)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, set)

	// Assert: the shared fetch still completes for the first caller.
	close(release)

	res := <-first
	require.NoError(t, res.err)
	require.Equal(t, funds, res.set.Funds())
}
