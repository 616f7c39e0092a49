// Package storage defines the provider interface the rotation core consumes.
//
// Real providers (filesystem, Kubernetes Secrets, cloud KV stores) live
// outside this module; the core only requires that every mutation is a
// conditional write keyed on the credential's current version. The
// optimistic lock produced by the core rides on that compare-and-swap.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a credential or version does not exist.
var ErrNotFound = errors.New("credential not found")

// ErrVersionConflict is returned when a conditional write loses the race:
// the expected version no longer matches the current one.
var ErrVersionConflict = errors.New("version conflict")

// Record is the per-credential record: identity, the pointer to the current
// version, and the serialized rotation policy. Policy bytes are opaque to
// the provider.
type Record struct {
	ID             string            `json:"id"`
	CurrentVersion uint32            `json:"current_version"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Policy         []byte            `json:"policy,omitempty"`
	Lock           *LockRecord       `json:"lock,omitempty"`
}

// VersionRecord is one stored credential version. Data is already encrypted
// by the layer above; the core never reads it.
type VersionRecord struct {
	CredentialID   string            `json:"credential_id"`
	Version        uint32            `json:"version"`
	Data           []byte            `json:"data"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	GracePeriodEnd *time.Time        `json:"grace_period_end,omitempty"`
}

// LockRecord is the persisted form of the core's optimistic lock. The
// provider treats it as data; the conditional semantics of SaveLock are what
// make the lock authoritative.
type LockRecord struct {
	CredentialID    string     `json:"credential_id"`
	ExpectedVersion uint32     `json:"expected_version"`
	NewVersion      *uint32    `json:"new_version,omitempty"`
	AcquiredAt      *time.Time `json:"acquired_at,omitempty"`
	Holder          string     `json:"holder,omitempty"`
	Locked          bool       `json:"locked"`
}

// Provider is the storage interface the rotation core consumes.
type Provider interface {
	// Load returns the credential record, the current version record, and
	// the current version number. Fails with ErrNotFound when the
	// credential does not exist.
	Load(ctx context.Context, credentialID string) (*Record, *VersionRecord, error)

	// StoreNewVersion writes a new, non-current version. Conditional:
	// fails with ErrVersionConflict when expectedVersion does not match
	// the record's current version. Returns the new version number.
	StoreNewVersion(ctx context.Context, credentialID string, expectedVersion uint32, data []byte, metadata map[string]string) (uint32, error)

	// CommitPointer atomically swaps the current pointer from fromVersion
	// to toVersion and stamps the old version's grace period end. Same
	// conflict semantics as StoreNewVersion.
	CommitPointer(ctx context.Context, credentialID string, fromVersion, toVersion uint32, gracePeriodEnd time.Time) error

	// DeleteVersion removes a stored version. Idempotent: deleting a
	// version that does not exist is not an error.
	DeleteVersion(ctx context.Context, credentialID string, version uint32) error

	// SaveLock persists the lock record. Conditional: fails with
	// ErrVersionConflict when the lock's expected version does not match
	// the record, or when acquiring a lock another holder already holds.
	SaveLock(ctx context.Context, lock *LockRecord) error

	// LoadLock returns the persisted lock record, or nil when no lock has
	// ever been saved for the credential.
	LoadLock(ctx context.Context, credentialID string) (*LockRecord, error)
}
