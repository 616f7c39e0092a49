package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryProvider is an in-memory Provider with real conditional-write
// semantics. It backs the tests and the demo CLI; production deployments
// plug in an external provider.
type MemoryProvider struct {
	mu       sync.Mutex
	records  map[string]*Record
	versions map[string]map[uint32]*VersionRecord
	locks    map[string]*LockRecord
}

// NewMemoryProvider creates an empty in-memory store.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		records:  make(map[string]*Record),
		versions: make(map[string]map[uint32]*VersionRecord),
		locks:    make(map[string]*LockRecord),
	}
}

// Seed installs a credential at version 1 with the given data. Used to set
// up tests and demos.
func (m *MemoryProvider) Seed(credentialID string, data []byte, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[credentialID] = &Record{
		ID:             credentialID,
		CurrentVersion: 1,
		Metadata:       metadata,
	}
	m.versions[credentialID] = map[uint32]*VersionRecord{
		1: {
			CredentialID: credentialID,
			Version:      1,
			Data:         data,
			Metadata:     metadata,
			CreatedAt:    time.Now(),
		},
	}
}

// Load implements Provider.
func (m *MemoryProvider) Load(ctx context.Context, credentialID string) (*Record, *VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return nil, nil, fmt.Errorf("load %q: %w", credentialID, ErrNotFound)
	}
	ver, ok := m.versions[credentialID][rec.CurrentVersion]
	if !ok {
		return nil, nil, fmt.Errorf("load %q version %d: %w", credentialID, rec.CurrentVersion, ErrNotFound)
	}

	recCopy := *rec
	verCopy := *ver
	return &recCopy, &verCopy, nil
}

// StoreNewVersion implements Provider.
func (m *MemoryProvider) StoreNewVersion(ctx context.Context, credentialID string, expectedVersion uint32, data []byte, metadata map[string]string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return 0, fmt.Errorf("store %q: %w", credentialID, ErrNotFound)
	}
	if rec.CurrentVersion != expectedVersion {
		return 0, fmt.Errorf("store %q expected version %d, current %d: %w",
			credentialID, expectedVersion, rec.CurrentVersion, ErrVersionConflict)
	}

	newVersion := rec.CurrentVersion + 1
	if _, exists := m.versions[credentialID][newVersion]; exists {
		return 0, fmt.Errorf("store %q version %d already written: %w",
			credentialID, newVersion, ErrVersionConflict)
	}

	m.versions[credentialID][newVersion] = &VersionRecord{
		CredentialID: credentialID,
		Version:      newVersion,
		Data:         data,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	return newVersion, nil
}

// CommitPointer implements Provider.
func (m *MemoryProvider) CommitPointer(ctx context.Context, credentialID string, fromVersion, toVersion uint32, gracePeriodEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[credentialID]
	if !ok {
		return fmt.Errorf("commit %q: %w", credentialID, ErrNotFound)
	}
	if rec.CurrentVersion != fromVersion {
		return fmt.Errorf("commit %q expected version %d, current %d: %w",
			credentialID, fromVersion, rec.CurrentVersion, ErrVersionConflict)
	}
	if _, ok := m.versions[credentialID][toVersion]; !ok {
		return fmt.Errorf("commit %q target version %d: %w", credentialID, toVersion, ErrNotFound)
	}

	rec.CurrentVersion = toVersion
	if old, ok := m.versions[credentialID][fromVersion]; ok {
		end := gracePeriodEnd
		old.GracePeriodEnd = &end
	}
	return nil
}

// DeleteVersion implements Provider.
func (m *MemoryProvider) DeleteVersion(ctx context.Context, credentialID string, version uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.versions[credentialID], version)
	return nil
}

// SaveLock implements Provider.
func (m *MemoryProvider) SaveLock(ctx context.Context, lock *LockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[lock.CredentialID]
	if !ok {
		return fmt.Errorf("save lock %q: %w", lock.CredentialID, ErrNotFound)
	}

	existing := m.locks[lock.CredentialID]
	if lock.Locked {
		// Acquisition path: the credential must still be at the expected
		// version and nobody else may hold the lock.
		if rec.CurrentVersion != lock.ExpectedVersion {
			return fmt.Errorf("save lock %q expected version %d, current %d: %w",
				lock.CredentialID, lock.ExpectedVersion, rec.CurrentVersion, ErrVersionConflict)
		}
		if existing != nil && existing.Locked && existing.Holder != lock.Holder {
			return fmt.Errorf("save lock %q held by %q: %w",
				lock.CredentialID, existing.Holder, ErrVersionConflict)
		}
	} else if existing != nil && existing.Locked && existing.Holder != lock.Holder {
		// Only the holder may release.
		return fmt.Errorf("release lock %q held by %q: %w",
			lock.CredentialID, existing.Holder, ErrVersionConflict)
	}

	lockCopy := *lock
	m.locks[lock.CredentialID] = &lockCopy
	rec.Lock = &lockCopy
	return nil
}

// LoadLock implements Provider.
func (m *MemoryProvider) LoadLock(ctx context.Context, credentialID string) (*LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[credentialID]
	if !ok {
		return nil, nil
	}
	lockCopy := *lock
	return &lockCopy, nil
}

// VersionExists reports whether a version record is present. Test helper.
func (m *MemoryProvider) VersionExists(credentialID string, version uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.versions[credentialID][version]
	return ok
}

// VersionCount returns the number of stored versions. Test helper.
func (m *MemoryProvider) VersionCount(credentialID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.versions[credentialID])
}

// CurrentVersion returns the current pointer. Test helper.
func (m *MemoryProvider) CurrentVersion(credentialID string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[credentialID]; ok {
		return rec.CurrentVersion
	}
	return 0
}

// Version returns a copy of a stored version record, or nil.
func (m *MemoryProvider) Version(credentialID string, version uint32) *VersionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	ver, ok := m.versions[credentialID][version]
	if !ok {
		return nil
	}
	verCopy := *ver
	return &verCopy
}
