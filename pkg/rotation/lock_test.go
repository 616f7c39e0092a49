package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/credrotate/internal/errors"
)

func TestOptimisticLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	lock := NewOptimisticLock("db-pass", 3)
	assert.False(t, lock.IsLocked)

	require.NoError(t, lock.AcquireLock("tx-1"))
	assert.True(t, lock.IsLocked)
	assert.Equal(t, "tx-1", lock.Holder)
	require.NotNil(t, lock.AcquiredAt)

	err := lock.AcquireLock("tx-2")
	require.Error(t, err)
	assert.True(t, dserrors.IsKind(err, dserrors.KindConcurrentRotation))
	assert.Equal(t, "tx-1", lock.Holder, "losing acquire must not steal the lock")

	lock.ReleaseLock()
	assert.False(t, lock.IsLocked)
	assert.Empty(t, lock.Holder)
	assert.Nil(t, lock.AcquiredAt)

	// Release is idempotent.
	lock.ReleaseLock()
	assert.False(t, lock.IsLocked)
}

func TestOptimisticLock_CompareAndSwap(t *testing.T) {
	t.Parallel()

	t.Run("matching_version_advances", func(t *testing.T) {
		t.Parallel()

		lock := NewOptimisticLock("db-pass", 3)
		require.NoError(t, lock.CompareAndSwap(3, 4))
		require.NotNil(t, lock.NewVersion)
		assert.Equal(t, uint32(4), *lock.NewVersion)
		assert.Equal(t, uint32(4), lock.ExpectedVersion)

		// Swaps chain: the advanced version is the new expectation.
		require.NoError(t, lock.CompareAndSwap(4, 5))
		assert.Equal(t, uint32(5), lock.ExpectedVersion)
	})

	t.Run("stale_version_conflicts", func(t *testing.T) {
		t.Parallel()

		lock := NewOptimisticLock("db-pass", 3)
		err := lock.CompareAndSwap(2, 4)
		require.Error(t, err)
		assert.True(t, dserrors.IsKind(err, dserrors.KindConcurrentRotation))
		assert.Equal(t, uint32(3), lock.ExpectedVersion, "failed swap must not advance")
		assert.Nil(t, lock.NewVersion)
	})
}
