// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custody

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// Phase is the phase of the custody flow.
type Phase string

const (
	// PhaseUninitialized means no valid program has been submitted.
	PhaseUninitialized Phase = "uninitialized"

	// PhaseAddressResolved means a script is resolved but its funds have
	// not been loaded.
	PhaseAddressResolved Phase = "address_resolved"

	// PhaseInventoryLoaded means the funds at the script address have
	// been loaded at least once.
	PhaseInventoryLoaded Phase = "inventory_loaded"
)

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

const (
	// eventResolve moves a freshly reset flow to address_resolved.
	eventResolve = "resolve"

	// eventLoad records a successful inventory refresh.
	eventLoad = "load"

	// eventReset discards the script and its funds.
	eventReset = "reset"
)

// flowState tracks the phase of the custody flow and the single slot for an
// in-flight lock or unlock.
type flowState struct {
	// machine holds the phase. Transitions are driven by the controller
	// while it holds its transition mutex.
	machine *fsm.FSM

	// inFlight is set while a lock or unlock is running.
	inFlight atomic.Bool
}

// newFlowState returns a flow in the uninitialized phase with no operation
// in flight.
func newFlowState() *flowState {
	machine := fsm.NewFSM(
		PhaseUninitialized.String(),
		fsm.Events{
			{
				Name: eventResolve,
				Src:  []string{PhaseUninitialized.String()},
				Dst:  PhaseAddressResolved.String(),
			},
			{
				Name: eventLoad,
				Src: []string{
					PhaseAddressResolved.String(),
					PhaseInventoryLoaded.String(),
				},
				Dst: PhaseInventoryLoaded.String(),
			},
			{
				Name: eventReset,
				Src: []string{
					PhaseUninitialized.String(),
					PhaseAddressResolved.String(),
					PhaseInventoryLoaded.String(),
				},
				Dst: PhaseUninitialized.String(),
			},
		},
		fsm.Callbacks{},
	)

	return &flowState{machine: machine}
}

// phase returns the current phase.
func (s *flowState) phase() Phase {
	return Phase(s.machine.Current())
}

// fire applies the event. Self transitions, such as a reload of an already
// loaded inventory, are not errors.
func (s *flowState) fire(ctx context.Context, event string) error {
	err := s.machine.Event(ctx, event)

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}

	return err
}

// tryBegin claims the operation slot. It returns false when another
// operation already holds it.
func (s *flowState) tryBegin() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

// end releases the operation slot.
func (s *flowState) end() {
	s.inFlight.Store(false)
}

// busy reports whether an operation holds the slot.
func (s *flowState) busy() bool {
	return s.inFlight.Load()
}
