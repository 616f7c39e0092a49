package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/credrotate/internal/errors"
)

func TestTwoPhaseDriver_CommitPath(t *testing.T) {
	t.Parallel()

	d := &TwoPhaseDriver{}
	require.NoError(t, d.BeginTransaction())
	assert.Equal(t, PhasePreparing, d.Phase())

	require.NoError(t, d.PreparePhase())
	assert.Equal(t, PhasePrepared, d.Phase())

	require.NoError(t, d.CommitPhase())
	assert.Equal(t, PhaseCommitting, d.Phase())

	require.NoError(t, d.CompleteCommit())
	assert.Equal(t, PhaseCommitted, d.Phase())
	assert.True(t, d.Phase().IsTerminal())
}

func TestTwoPhaseDriver_AbortPath(t *testing.T) {
	t.Parallel()

	t.Run("abort_from_preparing", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		require.NoError(t, d.BeginTransaction())
		require.NoError(t, d.AbortTransaction("prepare failed"))
		assert.Equal(t, PhaseAborting, d.Phase())
		require.NoError(t, d.CompleteAbort())
		assert.Equal(t, PhaseAborted, d.Phase())
	})

	t.Run("abort_from_prepared", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		require.NoError(t, d.BeginTransaction())
		require.NoError(t, d.PreparePhase())
		require.NoError(t, d.AbortTransaction("validation failed"))
		assert.Equal(t, PhaseAborting, d.Phase())
	})

	t.Run("abort_is_idempotent", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		require.NoError(t, d.BeginTransaction())
		require.NoError(t, d.AbortTransaction("first"))
		require.NoError(t, d.AbortTransaction("second"))
		assert.Equal(t, PhaseAborting, d.Phase())
	})

	t.Run("abort_after_commit_fails", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		require.NoError(t, d.BeginTransaction())
		require.NoError(t, d.PreparePhase())
		require.NoError(t, d.CommitPhase())
		require.NoError(t, d.CompleteCommit())

		err := d.AbortTransaction("too late")
		require.Error(t, err)
		assert.True(t, dserrors.IsKind(err, dserrors.KindInvalidStateTransition))
	})
}

func TestTwoPhaseDriver_Ordering(t *testing.T) {
	t.Parallel()

	t.Run("double_begin", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		require.NoError(t, d.BeginTransaction())
		assert.Error(t, d.BeginTransaction())
	})

	t.Run("not_begun", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		assert.Error(t, d.PreparePhase())
		assert.Error(t, d.CommitPhase())
		assert.Error(t, d.AbortTransaction("nothing started"))
	})

	t.Run("commit_before_prepare", func(t *testing.T) {
		t.Parallel()

		d := &TwoPhaseDriver{}
		require.NoError(t, d.BeginTransaction())
		err := d.CommitPhase()
		require.Error(t, err)
		assert.True(t, dserrors.IsKind(err, dserrors.KindInvalidStateTransition))
	})
}
