package rotation

import (
	"time"

	dserrors "github.com/systmms/credrotate/internal/errors"
)

// OptimisticLock is the per-credential version record used to detect
// concurrent rotations. It is a value, not a mutex: the in-memory CAS is
// advisory, and atomicity comes from persisting the lock through the storage
// provider's conditional write (UPDATE ... WHERE version = expected_version).
// It is not safe for concurrent use by itself.
type OptimisticLock struct {
	CredentialID    string     `json:"credential_id"`
	ExpectedVersion uint32     `json:"expected_version"`
	NewVersion      *uint32    `json:"new_version,omitempty"`
	AcquiredAt      *time.Time `json:"acquired_at,omitempty"`
	Holder          string     `json:"holder,omitempty"`
	IsLocked        bool       `json:"is_locked"`
}

// NewOptimisticLock creates an unlocked record for the credential at its
// current version.
func NewOptimisticLock(credentialID string, expectedVersion uint32) *OptimisticLock {
	return &OptimisticLock{
		CredentialID:    credentialID,
		ExpectedVersion: expectedVersion,
	}
}

// AcquireLock marks the lock held by the given holder. Fails with
// ConcurrentRotation if already held.
func (l *OptimisticLock) AcquireLock(holder string) error {
	if l.IsLocked {
		return dserrors.ConcurrentRotation(l.CredentialID)
	}
	now := time.Now()
	l.IsLocked = true
	l.Holder = holder
	l.AcquiredAt = &now
	return nil
}

// ReleaseLock clears the hold. Idempotent.
func (l *OptimisticLock) ReleaseLock() {
	l.IsLocked = false
	l.Holder = ""
	l.AcquiredAt = nil
}

// CompareAndSwap records the version advance. Fails with ConcurrentRotation
// when currentVersion no longer matches; on success ExpectedVersion advances
// to newVersion so further swaps chain.
func (l *OptimisticLock) CompareAndSwap(currentVersion, newVersion uint32) error {
	if currentVersion != l.ExpectedVersion {
		return dserrors.ConcurrentRotation(l.CredentialID)
	}
	l.NewVersion = &newVersion
	l.ExpectedVersion = newVersion
	return nil
}
