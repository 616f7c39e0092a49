// Package rotation implements the credential rotation core: the transactional
// state machine that replaces one credential version with another while the
// old version stays usable, the optimistic lock that detects concurrent
// rotations, and the manager that drives a complete rotation against a
// storage provider.
//
// # Architecture
//
// A rotation is modeled as a Transaction that walks a fixed state machine:
//
//	Pending → Creating → Validating → Committing → Committed
//
// with RolledBack reachable from any pre-commit state. The Manager owns the
// whole walk for one attempt:
//
//  1. Snapshot the current version from storage.
//  2. Acquire an optimistic lock keyed on that version.
//  3. Ask the credential plugin to mint a new credential and persist it as
//     a new, non-current version.
//  4. Probe the new credential through the validation framework.
//  5. Atomically swap the current pointer, start the grace period, release
//     the lock, and hand old-version cleanup to the janitor.
//
// Concurrency control is optimistic: the lock is a value persisted through
// the storage provider's conditional writes, not an in-process mutex. Two
// rotations racing on the same credential resolve at the storage layer, and
// the loser fails with a ConcurrentRotation error and needs no rollback,
// since nothing it did was committed.
//
// # Plugins
//
// Credential-type behavior lives behind small capability interfaces:
// Rotatable mints and cleans up credential instances, Testable probes them
// against the real service, and TokenRefresher covers OAuth-style renewal.
// The core never inspects credential bytes.
//
// # Usage
//
//	mgr := rotation.NewManager(store, plugin, rotation.ManagerConfig{
//		GracePeriod: 7 * 24 * time.Hour,
//	}, sink, logger)
//
//	tx, err := mgr.Rotate(ctx, "prod/db/password", rotation.Options{})
//	if err != nil {
//		return err
//	}
//	fmt.Println(tx.State) // committed
package rotation
