// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/plutus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestController returns a testnet V3 controller over the mocks.
func newTestController(t *testing.T, m *testMocks) *Controller {
	t.Helper()

	c, err := NewController(Config{
		Network:  plutus.Testnet,
		Version:  plutus.V3,
		Wallet:   m.wallet,
		Composer: m.composer,
		Provider: m.provider,
	})
	require.NoError(t, err)

	return c
}

// loadTestScript submits testFlatProgram and returns its resolved script.
func loadTestScript(t *testing.T, c *Controller) *plutus.ResolvedScript {
	t.Helper()

	script, err := c.SubmitProgram(
		context.Background(), programHex(t, testFlatProgram),
	)
	require.NoError(t, err)

	return script
}

// loadTestFunds loads the given funds into c through a refresh.
func loadTestFunds(t *testing.T, c *Controller, m *testMocks,
	funds []chain.Fund) {

	t.Helper()

	address := c.Status().Script.Address
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, address,
	).Return(funds, nil).Once()

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
}

// expectLock sets up a successful lock through every collaborator.
func expectLock(t *testing.T, m *testMocks, hash string) {
	t.Helper()

	m.wallet.On("ChangeAddress", mock.Anything).Return(
		testChangeAddress(t), nil,
	)
	m.composer.On("Compose", mock.Anything, mock.Anything).Return(
		"unsigned", nil,
	)
	m.wallet.On("SignTx", mock.Anything, "unsigned", false).Return(
		"signed", nil,
	)
	m.provider.On("SubmitTx", mock.Anything, "signed").Return(hash, nil)
}

// TestNewControllerRequiresCollaborators checks config validation.
func TestNewControllerRequiresCollaborators(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)

	_, err := NewController(Config{Wallet: m.wallet})
	require.ErrorIs(t, err, ErrMissingCollaborator)

	c := newTestController(t, m)
	status := c.Status()
	require.Equal(t, PhaseUninitialized, status.Phase)
	require.Nil(t, status.Script)
	require.True(t, status.LastOperation.IsNone())
}

// TestSubmitProgramDeterministic checks that the same program always
// resolves to the same address.
func TestSubmitProgramDeterministic(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	first := loadTestScript(t, newTestController(t, m))
	second := loadTestScript(t, newTestController(t, m))

	require.Equal(t, first.Address, second.Address)
	require.Equal(t, first.EncodedProgram, second.EncodedProgram)
}

// TestSubmitProgramInvalid checks that a bad program leaves the flow
// uninitialized and drops the previous script.
func TestSubmitProgramInvalid(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	loadTestScript(t, c)

	script, err := c.SubmitProgram(context.Background(), "not a program")
	require.ErrorIs(t, err, plutus.ErrInvalidProgram)
	require.Nil(t, script)

	status := c.Status()
	require.Equal(t, PhaseUninitialized, status.Phase)
	require.Nil(t, status.Script)
	require.Nil(t, status.Funds)
	require.Equal(t, UserMessage(plutus.ErrInvalidProgram), status.Message)

	// Without a script nothing can be refreshed.
	_, err = c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoScript)
}

// TestSubmitProgramResetsFunds checks that a new program discards the funds
// of the previous one.
func TestSubmitProgramResetsFunds(t *testing.T) {
	t.Parallel()

	// Arrange: a loaded script with one fund.
	m := newTestMocks(t)
	c := newTestController(t, m)
	old := loadTestScript(t, c)
	loadTestFunds(t, c, m, []chain.Fund{
		testFund(old.Address, 0, "2000000"),
	})
	require.Equal(t, PhaseInventoryLoaded, c.Status().Phase)

	// Act.
	script, err := c.SubmitProgram(
		context.Background(), programHex(t, otherFlatProgram),
	)

	// Assert.
	require.NoError(t, err)
	require.NotEqual(t, old.Address, script.Address)

	status := c.Status()
	require.Equal(t, PhaseAddressResolved, status.Phase)
	require.Equal(t, script.Address, status.Script.Address)
	require.Zero(t, status.Funds.Len())
	require.Empty(t, c.Summaries())
}

// TestRefreshFailureKeepsFunds checks that a failed refresh keeps the last
// fund set and phase and records an advisory.
func TestRefreshFailureKeepsFunds(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	funds := []chain.Fund{testFund(script.Address, 0, "2000000")}
	loadTestFunds(t, c, m, funds)

	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return(nil, chain.ErrProviderUnavailable).Once()

	set, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, chain.ErrProviderUnavailable)
	require.Equal(t, funds, set.Funds())

	status := c.Status()
	require.Equal(t, PhaseInventoryLoaded, status.Phase)
	require.Equal(t, funds, status.Funds.Funds())
	require.ErrorIs(t, status.Advisory, chain.ErrProviderUnavailable)
}

// TestRefreshDroppedAfterNewProgram checks that a refresh started under an
// older program does not overwrite the state of the new one.
func TestRefreshDroppedAfterNewProgram(t *testing.T) {
	t.Parallel()

	// Arrange: a refresh of the first script that blocks in the provider.
	m := newTestMocks(t)
	c := newTestController(t, m)
	old := loadTestScript(t, c)

	started := make(chan struct{})
	release := make(chan struct{})
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, old.Address,
	).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return([]chain.Fund{testFund(old.Address, 0, "2000000")}, nil).Once()

	errChan := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		errChan <- err
	}()
	<-started

	// Act: replace the program while the refresh is running.
	script, err := c.SubmitProgram(
		context.Background(), programHex(t, otherFlatProgram),
	)
	require.NoError(t, err)
	close(release)

	// Assert.
	require.ErrorIs(t, <-errChan, ErrScriptReplaced)

	status := c.Status()
	require.Equal(t, script.Address, status.Script.Address)
	require.Equal(t, PhaseAddressResolved, status.Phase)
	require.Nil(t, status.Funds)
}

// TestLockRejectsInvalidAmount checks that bad amounts never reach a
// collaborator.
func TestLockRejectsInvalidAmount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		amount    string
		expectErr error
	}{
		{name: "letters", amount: "12a", expectErr: ErrInvalidAmount},
		{name: "negative", amount: "-1000000", expectErr: ErrInvalidAmount},
		{name: "spaces", amount: " 1000000", expectErr: ErrInvalidAmount},
		{name: "below min", amount: "999999", expectErr: ErrBelowMinDeposit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMocks(t)
			c := newTestController(t, m)
			loadTestScript(t, c)

			_, err := c.Lock(context.Background(), LockRequest{
				Amount: tc.amount,
				Datum:  plutus.Opaque("cafe"),
			})
			require.ErrorIs(t, err, tc.expectErr)

			m.wallet.AssertNotCalled(t, "Connected", mock.Anything)

			m.provider.AssertNotCalled(
				t, "SubmitTx", mock.Anything, mock.Anything,
			)
			m.provider.AssertNotCalled(
				t, "FetchAddressUTxOs", mock.Anything, mock.Anything,
			)
			require.True(t, c.Status().LastOperation.IsNone())
		})
	}
}

// TestLockMinimumDeposit checks that exactly the minimum deposit is
// accepted and the funds are refreshed afterwards.
func TestLockMinimumDeposit(t *testing.T) {
	t.Parallel()

	// Arrange.
	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	m.wallet.On("Connected", mock.Anything).Return(true)
	expectLock(t, m, "lockhash")

	locked := testFund(script.Address, 0, "1000000")
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return([]chain.Fund{locked}, nil).Once()

	// Act.
	hash, err := c.Lock(context.Background(), LockRequest{
		Amount: "1000000",
		Datum:  plutus.Opaque("cafe"),
	})

	// Assert.
	require.NoError(t, err)
	require.Equal(t, "lockhash", hash)

	status := c.Status()
	require.Equal(t, PhaseInventoryLoaded, status.Phase)
	require.True(t, status.Funds.Refs().Contains(locked.Ref))
	require.False(t, status.Busy)

	op, err := status.LastOperation.UnwrapOrErr(errMock)
	require.NoError(t, err)
	require.Equal(t, OpLock, op.Kind)
	require.Equal(t, StatusSucceeded, op.Status)
	require.Equal(t, "lockhash", op.TxHash)
}

// TestLockOpaqueDatumIdempotent checks that the same opaque datum is
// encoded to the same bytes on every lock.
func TestLockOpaqueDatumIdempotent(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	var (
		mu     sync.Mutex
		datums [][]byte
	)

	m.wallet.On("Connected", mock.Anything).Return(true)
	m.wallet.On("ChangeAddress", mock.Anything).Return(
		testChangeAddress(t), nil,
	)
	m.composer.On("Compose", mock.Anything, mock.Anything).Run(
		func(args mock.Arguments) {
			intent, _ := args.Get(1).(*TxIntent)

			mu.Lock()
			datums = append(datums, intent.Outputs[0].InlineDatum)
			mu.Unlock()
		},
	).Return("unsigned", nil).Twice()
	m.wallet.On("SignTx", mock.Anything, "unsigned", false).Return(
		"signed", nil,
	).Twice()
	m.provider.On("SubmitTx", mock.Anything, "signed").Return(
		"lockhash", nil,
	).Twice()
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return([]chain.Fund{}, nil).Twice()

	for i := 0; i < 2; i++ {
		_, err := c.Lock(context.Background(), LockRequest{
			Amount: "2000000",
			Datum:  plutus.Opaque("deadbeef"),
		})
		require.NoError(t, err)
	}

	require.Len(t, datums, 2)
	require.Equal(t, []byte{0x44, 0xde, 0xad, 0xbe, 0xef}, datums[0])
	require.Equal(t, datums[0], datums[1])
}

// TestLockMalformedDatumLeavesState checks that a malformed constructor
// datum fails without changing the controller.
func TestLockMalformedDatumLeavesState(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)
	loadTestFunds(t, c, m, []chain.Fund{
		testFund(script.Address, 0, "2000000"),
	})

	before := c.Status()

	_, err := c.Lock(context.Background(), LockRequest{
		Amount: "2000000",
		Datum:  plutus.Constructor(`{"constructor": 0, "fields": [`),
	})
	require.ErrorIs(t, err, ErrInvalidDatum)
	require.ErrorIs(t, err, plutus.ErrMalformedValue)

	require.Equal(t, before, c.Status())
}

// TestLockRequiresWalletAndScript checks the preconditions of a lock.
func TestLockRequiresWalletAndScript(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)

	req := LockRequest{Amount: "2000000", Datum: plutus.Opaque("cafe")}

	_, err := c.Lock(context.Background(), req)
	require.ErrorIs(t, err, ErrNoScript)

	loadTestScript(t, c)
	m.wallet.On("Connected", mock.Anything).Return(false).Once()

	_, err = c.Lock(context.Background(), req)
	require.ErrorIs(t, err, ErrWalletDisconnected)
	require.Equal(t, "Connect your wallet to continue.", UserMessage(err))
}

// TestLockConcurrentRejected checks that a second operation is refused
// while the first is in flight.
func TestLockConcurrentRejected(t *testing.T) {
	t.Parallel()

	// Arrange: a held fund and a lock that blocks in the composer.
	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	held := testFund(script.Address, 0, "2000000")
	loadTestFunds(t, c, m, []chain.Fund{held})

	started := make(chan struct{})
	release := make(chan struct{})

	m.wallet.On("Connected", mock.Anything).Return(true)
	m.wallet.On("ChangeAddress", mock.Anything).Return(
		testChangeAddress(t), nil,
	)
	m.composer.On("Compose", mock.Anything, mock.Anything).Run(
		func(mock.Arguments) {
			close(started)
			<-release
		},
	).Return("unsigned", nil).Once()
	m.wallet.On("SignTx", mock.Anything, "unsigned", false).Return(
		"signed", nil,
	).Once()
	m.provider.On("SubmitTx", mock.Anything, "signed").Return(
		"lockhash", nil,
	).Once()
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return([]chain.Fund{}, nil).Once()

	req := LockRequest{Amount: "2000000", Datum: plutus.Opaque("cafe")}

	errChan := make(chan error, 1)
	go func() {
		_, err := c.Lock(context.Background(), req)
		errChan <- err
	}()
	<-started

	// Act: a second lock and an unlock while the first is in flight.
	_, err := c.Lock(context.Background(), req)
	require.ErrorIs(t, err, ErrOperationInFlight)

	_, err = c.Unlock(context.Background(), UnlockRequest{
		Ref:      held.Ref,
		Redeemer: plutus.Opaque("00"),
	})
	require.ErrorIs(t, err, ErrOperationInFlight)
	require.True(t, c.Status().Busy)

	op, err := c.Status().LastOperation.UnwrapOrErr(errMock)
	require.NoError(t, err)
	require.Equal(t, StatusInFlight, op.Status)

	// Assert: the first lock completes normally.
	close(release)
	require.NoError(t, <-errChan)
	require.False(t, c.Status().Busy)
}

// TestUnlockThenRefresh checks that the spent fund disappears from the set
// loaded after the unlock.
func TestUnlockThenRefresh(t *testing.T) {
	t.Parallel()

	// Arrange: two funds at the script.
	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	spent := testFund(script.Address, 0, "2000000")
	kept := testFund(script.Address, 1, "3000000")
	loadTestFunds(t, c, m, []chain.Fund{spent, kept})

	m.wallet.On("Connected", mock.Anything).Return(true)
	m.wallet.On("ChangeAddress", mock.Anything).Return(
		testChangeAddress(t), nil,
	)
	m.wallet.On("Collateral", mock.Anything).Return(
		[]chain.Fund{testFund("c", 7, "5000000")}, nil,
	).Once()
	m.composer.On("Compose", mock.Anything, mock.MatchedBy(
		func(intent *TxIntent) bool {
			return len(intent.ScriptInputs) == 1 &&
				intent.ScriptInputs[0].Fund.Ref == spent.Ref
		},
	)).Return("unsigned", nil).Once()
	m.wallet.On("SignTx", mock.Anything, "unsigned", true).Return(
		"signed", nil,
	).Once()
	m.provider.On("SubmitTx", mock.Anything, "signed").Return(
		"unlockhash", nil,
	).Once()
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return([]chain.Fund{kept}, nil).Once()

	// Act.
	hash, err := c.Unlock(context.Background(), UnlockRequest{
		Ref:      spent.Ref,
		Redeemer: plutus.Constructor(`{"constructor": 0, "fields": []}`),
	})

	// Assert.
	require.NoError(t, err)
	require.Equal(t, "unlockhash", hash)

	funds := c.Status().Funds
	require.Equal(t, 1, funds.Len())
	require.False(t, funds.Refs().Contains(spent.Ref))
	require.True(t, funds.Lookup(kept.Ref).IsSome())
}

// TestUnlockStaleFund checks that a spent fund is reported distinctly and
// triggers a refresh without a retry.
func TestUnlockStaleFund(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	stale := testFund(script.Address, 0, "2000000")
	loadTestFunds(t, c, m, []chain.Fund{stale})

	m.wallet.On("Connected", mock.Anything).Return(true)
	m.wallet.On("ChangeAddress", mock.Anything).Return(
		testChangeAddress(t), nil,
	)
	m.wallet.On("Collateral", mock.Anything).Return(
		[]chain.Fund{testFund("c", 7, "5000000")}, nil,
	).Once()
	m.composer.On("Compose", mock.Anything, mock.Anything).Return(
		"unsigned", nil,
	).Once()
	m.wallet.On("SignTx", mock.Anything, "unsigned", true).Return(
		"signed", nil,
	).Once()
	m.provider.On("SubmitTx", mock.Anything, "signed").Return(
		"", chain.MapSubmitErr("BadInputsUTxO"),
	).Once()
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return([]chain.Fund{}, nil).Once()

	_, err := c.Unlock(context.Background(), UnlockRequest{
		Ref:      stale.Ref,
		Redeemer: plutus.Opaque("00"),
	})
	require.ErrorIs(t, err, ErrStaleFund)

	status := c.Status()
	require.Zero(t, status.Funds.Len())
	require.Equal(t,
		"The selected UTxO was already spent. Reload and try again.",
		UserMessage(err))

	op, err := status.LastOperation.UnwrapOrErr(errMock)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, op.Status)
	require.ErrorIs(t, op.Err, ErrStaleFund)
}

// TestUnlockPreconditions checks the unlock checks done before any
// collaborator call.
func TestUnlockPreconditions(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	held := testFund(script.Address, 0, "2000000")
	loadTestFunds(t, c, m, []chain.Fund{held})

	unknown := testFund(script.Address, 9, "2000000")
	_, err := c.Unlock(context.Background(), UnlockRequest{
		Ref:      unknown.Ref,
		Redeemer: plutus.Opaque("00"),
	})
	require.ErrorIs(t, err, ErrUnknownFund)

	_, err = c.Unlock(context.Background(), UnlockRequest{Ref: held.Ref})
	require.ErrorIs(t, err, ErrRedeemerMissing)

	m.wallet.AssertNotCalled(t, "Connected", mock.Anything)
	require.True(t, c.Status().LastOperation.IsNone())
}

// TestInputErrorsBeforeWalletCheck checks that invalid input is reported as
// such even when the wallet is disconnected, without asking the wallet.
func TestInputErrorsBeforeWalletCheck(t *testing.T) {
	t.Parallel()

	// Arrange: a loaded script and fund, and a wallet that would report
	// itself disconnected if asked.
	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	held := testFund(script.Address, 0, "2000000")
	loadTestFunds(t, c, m, []chain.Fund{held})

	m.wallet.On("Connected", mock.Anything).Return(false).Maybe()

	// Act.
	_, lockErr := c.Lock(context.Background(), LockRequest{
		Amount: "12a",
		Datum:  plutus.Opaque("cafe"),
	})
	_, unlockErr := c.Unlock(context.Background(), UnlockRequest{
		Ref:      held.Ref,
		Redeemer: plutus.Constructor("{not json"),
	})

	// Assert: the input errors win and the wallet was never asked.
	require.ErrorIs(t, lockErr, ErrInvalidAmount)
	require.NotErrorIs(t, lockErr, ErrWalletDisconnected)

	require.ErrorIs(t, unlockErr, ErrInvalidRedeemer)
	require.ErrorIs(t, unlockErr, plutus.ErrMalformedValue)

	m.wallet.AssertNotCalled(t, "Connected", mock.Anything)
	m.provider.AssertNotCalled(t, "SubmitTx", mock.Anything, mock.Anything)
	require.True(t, c.Status().LastOperation.IsNone())
}

// TestLockChecksWalletOnce checks that a lock asks for the wallet status a
// single time.
func TestLockChecksWalletOnce(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	m.wallet.On("Connected", mock.Anything).Return(true).Once()
	expectLock(t, m, "lockhash")
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return([]chain.Fund{}, nil).Once()

	_, err := c.Lock(context.Background(), LockRequest{
		Amount: "2000000",
		Datum:  plutus.Opaque("cafe"),
	})
	require.NoError(t, err)

	m.wallet.AssertNumberOfCalls(t, "Connected", 1)
}

// TestLockRefreshFailureIsAdvisory checks that a failed refresh after a
// successful lock does not fail the lock.
func TestLockRefreshFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	m.wallet.On("Connected", mock.Anything).Return(true)
	expectLock(t, m, "lockhash")
	m.provider.On(
		"FetchAddressUTxOs", mock.Anything, script.Address,
	).Return(nil, chain.ErrProviderUnavailable).Once()

	hash, err := c.Lock(context.Background(), LockRequest{
		Amount: "5000000",
		Datum:  plutus.Constructor("[1, 2]"),
	})
	require.NoError(t, err)
	require.Equal(t, "lockhash", hash)

	status := c.Status()
	require.ErrorIs(t, status.Advisory, chain.ErrProviderUnavailable)
	require.Equal(t, PhaseAddressResolved, status.Phase)

	op, err := status.LastOperation.UnwrapOrErr(errMock)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, op.Status)
}

// TestPubKeyHash checks the payment key hash of the wallet.
func TestPubKeyHash(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)

	m.wallet.On("Connected", mock.Anything).Return(true).Once()
	m.wallet.On("ChangeAddress", mock.Anything).Return(
		testChangeAddress(t), nil,
	).Once()

	pkh, err := c.PubKeyHash(context.Background())
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("ab", 28), pkh)

	m.wallet.On("Connected", mock.Anything).Return(false).Once()

	_, err = c.PubKeyHash(context.Background())
	require.ErrorIs(t, err, ErrWalletDisconnected)
}

// TestSummaries checks the display form of the loaded funds.
func TestSummaries(t *testing.T) {
	t.Parallel()

	m := newTestMocks(t)
	c := newTestController(t, m)
	script := loadTestScript(t, c)

	plain := testFund(script.Address, 1, "3000000")
	plain.InlineDatum = fn.None[[]byte]()

	loadTestFunds(t, c, m, []chain.Fund{
		testFund(script.Address, 0, "2000000"), plain,
	})

	summaries := c.Summaries()
	require.Len(t, summaries, 2)
	require.Equal(t,
		`Spend 2000000 lovelace {"constructor":0,"fields":[]}`,
		summaries[0].String())
	require.Equal(t, "Spend 3000000 lovelace  (no datum)",
		summaries[1].String())
}
