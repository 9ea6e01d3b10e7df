// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/metrics"
	"github.com/spendingapp/custody/pkg/lovelace"
	"github.com/spendingapp/custody/plutus"
)

const (
	// msgScriptLoaded is shown after a program was resolved and its funds
	// loaded.
	msgScriptLoaded = "Script and UTxOs updated successfully."

	// msgLocked is shown after a lock was submitted.
	msgLocked = "Transaction submitted to lock ADAs."

	// msgUnlocked is shown after an unlock was submitted.
	msgUnlocked = "Transaction submitted to unlock ADAs."
)

var (
	// ErrMissingCollaborator is returned when the Config lacks a required
	// collaborator.
	ErrMissingCollaborator = errors.New("missing collaborator")
)

// Config holds the collaborators and settings of a Controller.
type Config struct {
	// Network selects the address network of resolved scripts.
	Network plutus.Network

	// Version is the Plutus language version of submitted programs.
	Version plutus.ScriptVersion

	// Wallet signs and funds transactions.
	Wallet Wallet

	// Composer balances transaction intents.
	Composer Composer

	// Provider reads script funds and submits transactions.
	Provider chain.Provider
}

// validate checks that every collaborator is set.
func (c *Config) validate() error {
	switch {
	case c.Wallet == nil:
		return fmt.Errorf("%w: wallet", ErrMissingCollaborator)

	case c.Composer == nil:
		return fmt.Errorf("%w: composer", ErrMissingCollaborator)

	case c.Provider == nil:
		return fmt.Errorf("%w: provider", ErrMissingCollaborator)
	}

	return nil
}

// LockRequest asks the controller to lock funds at the current script.
type LockRequest struct {
	// Amount is the lovelace to lock, exactly as entered.
	Amount string

	// Datum is stored inline with the locked output.
	Datum plutus.StructuredValue
}

// UnlockRequest asks the controller to spend a fund held at the current
// script.
type UnlockRequest struct {
	// Ref selects the fund from the current fund set.
	Ref chain.OutRef

	// Redeemer is passed to the script.
	Redeemer plutus.StructuredValue
}

// snapshot is the controller state published to readers. It is replaced
// wholesale and never modified once stored.
type snapshot struct {
	// generation increases with every submitted program. A refresh only
	// commits its result if the generation it started under is current.
	generation uint64

	phase    Phase
	script   *plutus.ResolvedScript
	funds    *FundSet
	lastOp   fn.Option[PendingOperation]
	message  string
	advisory error
}

// clone returns a shallow copy that can be modified before being stored.
func (s *snapshot) clone() *snapshot {
	next := *s
	return &next
}

// Controller drives the custody flow: it holds the current script and its
// funds and runs locks and unlocks against them. Reads never block; all
// writes are serialized and published as immutable snapshots.
type Controller struct {
	cfg Config

	state     *flowState
	inventory *Inventory
	locker    *LockTxBuilder
	unlocker  *UnlockTxBuilder
	metrics   *metrics.Flow

	// mu serializes snapshot replacements and the phase transitions that
	// go with them.
	mu sync.Mutex

	snap atomic.Pointer[snapshot]
}

// NewController returns a controller in the uninitialized phase.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		state:     newFlowState(),
		inventory: NewInventory(cfg.Provider),
		locker: NewLockTxBuilder(
			cfg.Wallet, cfg.Composer, cfg.Provider,
		),
		unlocker: NewUnlockTxBuilder(
			cfg.Wallet, cfg.Composer, cfg.Provider,
		),
		metrics: metrics.NewFlow(),
	}

	c.snap.Store(&snapshot{
		phase:  PhaseUninitialized,
		lastOp: fn.None[PendingOperation](),
	})

	return c, nil
}

// Status returns the current view of the controller.
func (c *Controller) Status() Status {
	snap := c.snap.Load()

	return Status{
		Phase:         snap.phase,
		Script:        snap.script,
		Funds:         snap.funds,
		Busy:          c.state.busy(),
		LastOperation: snap.lastOp,
		Message:       snap.message,
		Advisory:      snap.advisory,
	}
}

// Summaries returns the display summaries of the current funds.
func (c *Controller) Summaries() []FundSummary {
	funds := c.snap.Load().funds.Funds()

	summaries := make([]FundSummary, 0, len(funds))
	for _, f := range funds {
		summaries = append(summaries, summarize(f))
	}

	return summaries
}

// SubmitProgram discards the current script and funds and resolves program
// in their place. On failure the flow stays uninitialized.
func (c *Controller) SubmitProgram(ctx context.Context,
	program string) (*plutus.ResolvedScript, error) {

	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	next := &snapshot{
		generation: cur.generation + 1,
		lastOp:     cur.lastOp,
	}

	if cur.script != nil {
		c.inventory.Forget(cur.script.Address)
	}

	if err := c.state.fire(ctx, eventReset); err != nil {
		return nil, err
	}

	script, err := plutus.Resolve(program, c.cfg.Version, c.cfg.Network)
	c.metrics.Observe("resolve", err, start)
	c.metrics.SetFunds(0)

	if err != nil {
		log.Debugf("Rejected script program: %v", err)

		next.phase = c.state.phase()
		next.message = UserMessage(err)
		c.snap.Store(next)

		return nil, err
	}

	if err := c.state.fire(ctx, eventResolve); err != nil {
		return nil, err
	}

	next.phase = c.state.phase()
	next.script = script
	c.snap.Store(next)

	log.Infof("Resolved %v script %v at %v", script.Version,
		script.HashHex(), script.Address)

	return script, nil
}

// Refresh reloads the funds held at the current script address.
//
// On failure the previous fund set and phase are kept and the error is
// recorded as an advisory. If a new program is submitted while the refresh
// runs, its result is dropped and ErrScriptReplaced is returned.
func (c *Controller) Refresh(ctx context.Context) (*FundSet, error) {
	start := time.Now()

	started := c.snap.Load()
	if started.script == nil {
		return nil, ErrNoScript
	}

	set, err := c.inventory.Refresh(ctx, started.script.Address)
	c.metrics.Observe("refresh", err, start)

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if cur.generation != started.generation {
		log.Debugf("Dropping funds of replaced script %v",
			started.script.Address)

		return nil, ErrScriptReplaced
	}

	next := cur.clone()
	if err != nil {
		next.advisory = err
		next.message = UserMessage(err)
		c.snap.Store(next)

		return cur.funds, err
	}

	if err := c.state.fire(ctx, eventLoad); err != nil {
		return nil, err
	}

	next.phase = c.state.phase()
	next.funds = set
	next.advisory = nil
	next.message = msgScriptLoaded
	c.snap.Store(next)
	c.metrics.SetFunds(set.Len())

	return set, nil
}

// Lock locks the requested amount at the current script and returns the
// transaction hash. The funds are refreshed afterwards; a failed refresh is
// recorded as an advisory and does not fail the lock.
func (c *Controller) Lock(ctx context.Context,
	req LockRequest) (string, error) {

	snap := c.snap.Load()
	params := LockParams{
		Script: snap.script,
		Amount: req.Amount,
		Datum:  req.Datum,
	}

	var (
		amount lovelace.Amount
		datum  []byte
	)

	return c.run(ctx, OpLock, func() error {
		var err error
		amount, datum, err = params.Validate()

		return err
	}, func(ctx context.Context) (string, error) {
		return c.locker.lock(ctx, params.Script, amount, datum)
	})
}

// Unlock spends the referenced fund with the redeemer and returns the
// transaction hash. The fund must be part of the current fund set. A fund
// that was spent meanwhile yields ErrStaleFund and a refresh, but no retry.
func (c *Controller) Unlock(ctx context.Context,
	req UnlockRequest) (string, error) {

	snap := c.snap.Load()
	params := UnlockParams{
		Script:   snap.script,
		Redeemer: req.Redeemer,
	}

	var redeemer []byte

	return c.run(ctx, OpUnlock, func() error {
		if snap.script == nil {
			return ErrNoScript
		}

		fund, err := snap.funds.Lookup(req.Ref).UnwrapOrErr(
			fmt.Errorf("%w: %v", ErrUnknownFund, req.Ref),
		)
		if err != nil {
			return err
		}
		params.Fund = &fund

		redeemer, err = params.Validate()

		return err
	}, func(ctx context.Context) (string, error) {
		return c.unlocker.unlock(ctx, params, redeemer)
	})
}

// run executes a lock or unlock. Input validation happens before any wallet
// or network call, and the preconditions are checked before the operation
// slot is claimed, so rejected requests leave the controller untouched.
func (c *Controller) run(ctx context.Context, kind OperationKind,
	validate func() error,
	execute func(context.Context) (string, error)) (string, error) {

	if c.snap.Load().script == nil {
		return "", ErrNoScript
	}

	if err := validate(); err != nil {
		log.Debugf("Rejected %v request: %v", kind, err)
		return "", err
	}

	// The wallet is only asked once the input is known to be valid.
	if !c.cfg.Wallet.Connected(ctx) {
		return "", ErrWalletDisconnected
	}

	if !c.state.tryBegin() {
		return "", ErrOperationInFlight
	}
	defer c.state.end()

	op := newPendingOperation(kind)
	c.recordOperation(op, "")

	log.Debugf("Starting %v operation %v", kind, op.ID)

	hash, err := execute(ctx)
	c.metrics.Observe(kind.String(), err, op.Started)

	op = op.finish(hash, err)
	if err != nil {
		log.Warnf("%v operation %v failed: %v", kind, op.ID, err)
		c.recordOperation(op, UserMessage(err))

		if errors.Is(err, ErrStaleFund) {
			c.refreshAfter(ctx, op)
		}

		return "", err
	}

	msg := msgLocked
	if kind == OpUnlock {
		msg = msgUnlocked
	}
	c.recordOperation(op, msg)

	c.refreshAfter(ctx, op)

	return hash, nil
}

// refreshAfter reloads the funds after an operation. Its failure is only
// logged since Refresh already records it as an advisory.
func (c *Controller) refreshAfter(ctx context.Context, op PendingOperation) {
	if _, err := c.Refresh(ctx); err != nil {
		log.Warnf("Unable to refresh funds after %v operation %v: %v",
			op.Kind, op.ID, err)
	}
}

// recordOperation publishes the operation as the latest one. A non-empty
// message replaces the user message.
func (c *Controller) recordOperation(op PendingOperation, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.Load().clone()
	next.lastOp = fn.Some(op)
	if message != "" {
		next.message = message
	}

	c.snap.Store(next)
}

// PubKeyHash returns the hex payment key hash of the wallet's change
// address, the identifier scripts check for the signer.
func (c *Controller) PubKeyHash(ctx context.Context) (string, error) {
	if !c.cfg.Wallet.Connected(ctx) {
		return "", ErrWalletDisconnected
	}

	change, err := c.cfg.Wallet.ChangeAddress(ctx)
	if err != nil {
		return "", mapWalletErr(err)
	}

	return plutus.PaymentKeyHash(change)
}
