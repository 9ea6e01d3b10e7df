// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/pkg/lovelace"
	"github.com/spendingapp/custody/plutus"
)

// OperationKind is the kind of a custody operation.
type OperationKind uint8

const (
	// OpLock locks funds at the script address.
	OpLock OperationKind = iota

	// OpUnlock spends funds held at the script address.
	OpUnlock
)

// String returns the operation name.
func (k OperationKind) String() string {
	switch k {
	case OpLock:
		return "lock"

	case OpUnlock:
		return "unlock"

	default:
		return "unknown"
	}
}

// OperationStatus is the progress of a custody operation.
type OperationStatus uint8

const (
	// StatusIdle means the operation has not started.
	StatusIdle OperationStatus = iota

	// StatusInFlight means the operation is running.
	StatusInFlight

	// StatusSucceeded means the transaction was submitted.
	StatusSucceeded

	// StatusFailed means the operation ended with an error.
	StatusFailed
)

// String returns the status name.
func (s OperationStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"

	case StatusInFlight:
		return "in_flight"

	case StatusSucceeded:
		return "succeeded"

	case StatusFailed:
		return "failed"

	default:
		return "unknown"
	}
}

// PendingOperation records a lock or unlock. Values are copied in and out of
// the controller and never shared.
type PendingOperation struct {
	// ID identifies the operation in logs.
	ID uuid.UUID

	// Kind is the operation kind.
	Kind OperationKind

	// Status is the operation progress.
	Status OperationStatus

	// Err is set when Status is StatusFailed.
	Err error

	// TxHash is set when Status is StatusSucceeded.
	TxHash string

	// Started is when the operation began.
	Started time.Time

	// Finished is when the operation ended. It is zero while in flight.
	Finished time.Time
}

// newPendingOperation returns an in-flight operation of the given kind.
func newPendingOperation(kind OperationKind) PendingOperation {
	return PendingOperation{
		ID:      uuid.New(),
		Kind:    kind,
		Status:  StatusInFlight,
		Started: time.Now(),
	}
}

// finish returns a copy of the operation completed with the result.
func (o PendingOperation) finish(txHash string, err error) PendingOperation {
	o.Finished = time.Now()

	if err != nil {
		o.Status = StatusFailed
		o.Err = err

		return o
	}

	o.Status = StatusSucceeded
	o.TxHash = txHash

	return o
}

// Status is a consistent view of the controller.
type Status struct {
	// Phase is the flow phase.
	Phase Phase

	// Script is the resolved script, nil before a program was accepted.
	Script *plutus.ResolvedScript

	// Funds is the latest fund set, nil before the first refresh.
	Funds *FundSet

	// Busy reports whether a lock or unlock is in flight.
	Busy bool

	// LastOperation is the most recent lock or unlock.
	LastOperation fn.Option[PendingOperation]

	// Message is the sentence to show the user about the latest event.
	Message string

	// Advisory is the error of the latest failed refresh. The previous
	// fund set is still shown while it is set.
	Advisory error
}

// noDatumLabel marks a fund without an inline datum. Its leading space is
// part of the label, so the rendered line carries two spaces before it.
const noDatumLabel = " (no datum)"

// FundSummary is the display form of a fund.
type FundSummary struct {
	// Ref identifies the fund.
	Ref chain.OutRef

	// Lovelace is the lovelace held.
	Lovelace lovelace.Amount

	// Datum is the inline datum rendered as JSON, the raw hex when it
	// cannot be decoded, or empty when there is none.
	Datum string
}

// String renders the summary the way the fund list shows it, e.g.
// "Spend 2000000 lovelace {"constructor":0,"fields":[]}" or, without a datum,
// "Spend 2000000 lovelace  (no datum)".
func (s FundSummary) String() string {
	if s.Datum == "" {
		return fmt.Sprintf("Spend %s %s", s.Lovelace, noDatumLabel)
	}

	return fmt.Sprintf("Spend %s %s", s.Lovelace, s.Datum)
}

// summarize builds the display summary of a fund.
func summarize(f chain.Fund) FundSummary {
	summary := FundSummary{
		Ref:      f.Ref,
		Lovelace: f.Lovelace(),
	}

	f.InlineDatum.WhenSome(func(raw []byte) {
		summary.Datum = renderDatum(raw)
	})

	return summary
}

// renderDatum renders an inline datum as detailed-schema JSON, falling back
// to hex for bytes that are not Plutus data.
func renderDatum(raw []byte) string {
	d, err := plutus.DecodeData(raw)
	if err != nil {
		return hex.EncodeToString(raw)
	}

	rendered, err := d.MarshalJSON()
	if err != nil {
		return hex.EncodeToString(raw)
	}

	return string(rendered)
}
