// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/chain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	errMock     = errors.New("mock error")
	errDeclined = fmt.Errorf("%w: user closed the popup", ErrSignDeclined)

	// testFlatProgram is a small flat-encoded UPLC program.
	testFlatProgram = []byte{
		0x01, 0x01, 0x00, 0x32, 0x32, 0x22, 0x80, 0x02, 0x00, 0x11, 0x01,
	}

	// otherFlatProgram differs from testFlatProgram in its body.
	otherFlatProgram = []byte{
		0x01, 0x01, 0x00, 0x32, 0x32, 0x22, 0x80, 0x02, 0x00, 0x12, 0x01,
	}

	// testPaymentKey is the payment key hash of testChangeAddress.
	testPaymentKey = bytes.Repeat([]byte{0xab}, 28)
)

// mockWallet is a mock implementation of the Wallet interface.
type mockWallet struct {
	mock.Mock
}

// A compile time check to ensure that mockWallet implements the Wallet
// interface.
var _ Wallet = (*mockWallet)(nil)

func (m *mockWallet) Connected(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *mockWallet) ChangeAddress(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockWallet) Collateral(ctx context.Context) ([]chain.Fund, error) {
	args := m.Called(ctx)
	funds, _ := args.Get(0).([]chain.Fund)

	return funds, args.Error(1)
}

func (m *mockWallet) SignTx(ctx context.Context, unsignedTx string,
	partial bool) (string, error) {

	args := m.Called(ctx, unsignedTx, partial)
	return args.String(0), args.Error(1)
}

// mockComposer is a mock implementation of the Composer interface.
type mockComposer struct {
	mock.Mock
}

// A compile time check to ensure that mockComposer implements the Composer
// interface.
var _ Composer = (*mockComposer)(nil)

func (m *mockComposer) Compose(ctx context.Context,
	intent *TxIntent) (string, error) {

	args := m.Called(ctx, intent)
	return args.String(0), args.Error(1)
}

// mockProvider is a mock implementation of the chain.Provider interface.
type mockProvider struct {
	mock.Mock
}

// A compile time check to ensure that mockProvider implements the
// chain.Provider interface.
var _ chain.Provider = (*mockProvider)(nil)

func (m *mockProvider) FetchAddressUTxOs(ctx context.Context,
	address string) ([]chain.Fund, error) {

	args := m.Called(ctx, address)
	funds, _ := args.Get(0).([]chain.Fund)

	return funds, args.Error(1)
}

func (m *mockProvider) SubmitTx(ctx context.Context,
	signedTx string) (string, error) {

	args := m.Called(ctx, signedTx)
	return args.String(0), args.Error(1)
}

// testMocks bundles the collaborators of a controller under test.
type testMocks struct {
	wallet   *mockWallet
	composer *mockComposer
	provider *mockProvider
}

// newTestMocks returns fresh mocks whose expectations are asserted when the
// test ends.
func newTestMocks(t *testing.T) *testMocks {
	t.Helper()

	m := &testMocks{
		wallet:   &mockWallet{},
		composer: &mockComposer{},
		provider: &mockProvider{},
	}

	t.Cleanup(func() {
		m.wallet.AssertExpectations(t)
		m.composer.AssertExpectations(t)
		m.provider.AssertExpectations(t)
	})

	return m
}

// programHex returns the single CBOR wrapped hex form of a flat program.
func programHex(t *testing.T, flat []byte) string {
	t.Helper()

	wrapped, err := cbor.Marshal(flat)
	require.NoError(t, err)

	return fmt.Sprintf("%x", wrapped)
}

// testChangeAddress returns a testnet enterprise key address paying to
// testPaymentKey.
func testChangeAddress(t *testing.T) string {
	t.Helper()

	addr, err := bech32.EncodeFromBase256(
		"addr_test", append([]byte{0x60}, testPaymentKey...),
	)
	require.NoError(t, err)

	return addr
}

// testFund returns a fund at address holding qty lovelace. The reference is
// derived from i.
func testFund(address string, i int, qty string) chain.Fund {
	return chain.Fund{
		Ref: chain.OutRef{
			TxHash: fmt.Sprintf("%064x", i+1),
			Index:  uint32(i % 2),
		},
		Address: address,
		Assets: []chain.Asset{
			{Unit: "lovelace", Quantity: qty},
		},
		InlineDatum: fn.Some([]byte{0xd8, 0x79, 0x80}),
	}
}
