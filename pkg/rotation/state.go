package rotation

import (
	dserrors "github.com/systmms/credrotate/internal/errors"
)

// State represents the lifecycle state of a rotation attempt.
type State string

const (
	// StatePending indicates the transaction exists but no work has started.
	StatePending State = "pending"

	// StateCreating indicates the new credential is being minted and stored.
	StateCreating State = "creating"

	// StateValidating indicates the new credential is being probed.
	StateValidating State = "validating"

	// StateCommitting indicates the current pointer is being swapped.
	StateCommitting State = "committing"

	// StateCommitted indicates the rotation completed. Terminal.
	StateCommitted State = "committed"

	// StateRolledBack indicates the rotation was undone. Terminal.
	StateRolledBack State = "rolled_back"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true for Committed and RolledBack.
func (s State) IsTerminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// validTransitions is the full transition table. RolledBack is reachable
// from every pre-commit state; the terminal states have no successors.
var validTransitions = map[State][]State{
	StatePending:    {StateCreating, StateRolledBack},
	StateCreating:   {StateValidating, StateRolledBack},
	StateValidating: {StateCommitting, StateRolledBack},
	StateCommitting: {StateCommitted, StateRolledBack},
	StateCommitted:  {},
	StateRolledBack: {},
}

// CanTransitionTo checks whether moving to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	for _, valid := range validTransitions[s] {
		if valid == next {
			return true
		}
	}
	return false
}

// Transition validates a state change and returns the new state. There is
// deliberately no setter that bypasses this check.
func Transition(current, next State) (State, error) {
	if !current.CanTransitionTo(next) {
		return current, dserrors.InvalidStateTransition(current.String(), next.String())
	}
	return next, nil
}
