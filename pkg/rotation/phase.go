package rotation

import (
	dserrors "github.com/systmms/credrotate/internal/errors"
)

// Phase represents the two-phase-commit phase of a transaction. Phases are
// tracked only when 2PC is enabled on the rotation.
type Phase string

const (
	// PhasePreparing indicates prepare work is in flight.
	PhasePreparing Phase = "preparing"

	// PhasePrepared indicates all participants acknowledged prepare.
	PhasePrepared Phase = "prepared"

	// PhaseCommitting indicates the irreversible commit is in flight.
	PhaseCommitting Phase = "committing"

	// PhaseCommitted indicates the commit completed. Terminal.
	PhaseCommitted Phase = "committed"

	// PhaseAborting indicates abort work is in flight.
	PhaseAborting Phase = "aborting"

	// PhaseAborted indicates the transaction was fully undone. Terminal.
	PhaseAborted Phase = "aborted"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal returns true for Committed and Aborted.
func (p Phase) IsTerminal() bool {
	return p == PhaseCommitted || p == PhaseAborted
}

// validPhaseTransitions orders the success path and allows any pre-committed
// phase to abort. Committed cannot be aborted.
var validPhaseTransitions = map[Phase][]Phase{
	PhasePreparing:  {PhasePrepared, PhaseAborting},
	PhasePrepared:   {PhaseCommitting, PhaseAborting},
	PhaseCommitting: {PhaseCommitted, PhaseAborting},
	PhaseCommitted:  {},
	PhaseAborting:   {PhaseAborted},
	PhaseAborted:    {},
}

// CanTransitionTo checks whether moving to next is allowed.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, valid := range validPhaseTransitions[p] {
		if valid == next {
			return true
		}
	}
	return false
}

// TwoPhaseDriver enforces phase ordering for a transaction that uses 2PC.
// The zero value is not usable; call BeginTransaction first.
type TwoPhaseDriver struct {
	phase Phase
	begun bool
}

// Phase returns the current phase.
func (d *TwoPhaseDriver) Phase() Phase {
	return d.phase
}

// Begun reports whether BeginTransaction has been called.
func (d *TwoPhaseDriver) Begun() bool {
	return d.begun
}

// BeginTransaction starts the protocol in the Preparing phase.
func (d *TwoPhaseDriver) BeginTransaction() error {
	if d.begun {
		return dserrors.TransactionFailed("two-phase transaction already begun")
	}
	d.begun = true
	d.phase = PhasePreparing
	return nil
}

// PreparePhase marks prepare work complete: Preparing → Prepared.
func (d *TwoPhaseDriver) PreparePhase() error {
	return d.transition(PhasePrepared)
}

// CommitPhase starts the irreversible commit: Prepared → Committing.
func (d *TwoPhaseDriver) CommitPhase() error {
	return d.transition(PhaseCommitting)
}

// CompleteCommit finishes the protocol: Committing → Committed.
func (d *TwoPhaseDriver) CompleteCommit() error {
	return d.transition(PhaseCommitted)
}

// AbortTransaction moves any pre-committed phase to Aborting. It is a no-op
// when already aborting or aborted, and fails once committed.
func (d *TwoPhaseDriver) AbortTransaction(reason string) error {
	if !d.begun {
		return dserrors.TransactionFailed("two-phase transaction not begun")
	}
	if d.phase == PhaseAborting || d.phase == PhaseAborted {
		return nil
	}
	if d.phase == PhaseCommitted {
		return dserrors.InvalidStateTransition(d.phase.String(), PhaseAborting.String())
	}
	d.phase = PhaseAborting
	return nil
}

// CompleteAbort finishes the abort: Aborting → Aborted.
func (d *TwoPhaseDriver) CompleteAbort() error {
	return d.transition(PhaseAborted)
}

func (d *TwoPhaseDriver) transition(next Phase) error {
	if !d.begun {
		return dserrors.TransactionFailed("two-phase transaction not begun")
	}
	if !d.phase.CanTransitionTo(next) {
		return dserrors.InvalidStateTransition(d.phase.String(), next.String())
	}
	d.phase = next
	return nil
}
