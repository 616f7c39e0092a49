package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/credrotate/internal/errors"
)

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateCreating.IsTerminal())
	assert.False(t, StateValidating.IsTerminal())
	assert.False(t, StateCommitting.IsTerminal())
	assert.True(t, StateCommitted.IsTerminal())
	assert.True(t, StateRolledBack.IsTerminal())
}

func TestTransition_HappyPath(t *testing.T) {
	t.Parallel()

	path := []State{StateCreating, StateValidating, StateCommitting, StateCommitted}

	current := StatePending
	for _, next := range path {
		got, err := Transition(current, next)
		require.NoError(t, err)
		current = got
	}
	assert.Equal(t, StateCommitted, current)
}

func TestTransition_RolledBackFromAnyPreCommitState(t *testing.T) {
	t.Parallel()

	for _, from := range []State{StatePending, StateCreating, StateValidating, StateCommitting} {
		got, err := Transition(from, StateRolledBack)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, StateRolledBack, got)
	}
}

func TestTransition_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		from State
		to   State
	}{
		{"skip_creating", StatePending, StateValidating},
		{"skip_validating", StateCreating, StateCommitting},
		{"skip_committing", StateValidating, StateCommitted},
		{"backwards", StateValidating, StateCreating},
		{"out_of_committed", StateCommitted, StateCreating},
		{"out_of_rolled_back", StateRolledBack, StatePending},
		{"rollback_after_commit", StateCommitted, StateRolledBack},
		{"self_loop", StateCreating, StateCreating},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Transition(tc.from, tc.to)
			require.Error(t, err)
			assert.True(t, dserrors.IsKind(err, dserrors.KindInvalidStateTransition))
			assert.Equal(t, tc.from, got, "failed transition must not move the state")
		})
	}
}
