package rotation

import (
	"context"
	"errors"
	"time"

	dserrors "github.com/systmms/credrotate/internal/errors"
	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/internal/validation"
	"github.com/systmms/credrotate/pkg/storage"
)

// ManagerConfig tunes the rotation manager.
type ManagerConfig struct {
	// GracePeriod is how long the old version stays usable after commit.
	GracePeriod time.Duration

	// MaxValidationRetries caps retries of transient validation failures.
	MaxValidationRetries int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration

	// RollbackStrategy applies when Options does not override it.
	RollbackStrategy RollbackStrategy
}

// DefaultManagerConfig returns the defaults: 24h grace, 3 retries with 1s
// initial backoff, automatic rollback.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		GracePeriod:          24 * time.Hour,
		MaxValidationRetries: 3,
		RetryBackoff:         time.Second,
		RollbackStrategy:     RollbackAutomatic,
	}
}

// Options shape one rotation attempt.
type Options struct {
	// Enable2PC tracks two-phase-commit phases alongside the state machine.
	Enable2PC bool

	// Manual marks the rotation as operator-triggered. An emergency manual
	// rotation commits with a zero grace period.
	Manual *ManualRotation

	// RollbackStrategy overrides the manager's configured strategy.
	RollbackStrategy RollbackStrategy

	// GracePeriod overrides the configured grace period.
	GracePeriod *time.Duration
}

// Manager drives complete rotations against a storage provider and one
// credential plugin. A Manager is safe for concurrent use; concurrent
// rotations of the same credential resolve through the persisted lock.
type Manager struct {
	store   storage.Provider
	plugin  Rotatable
	config  ManagerConfig
	sink    Sink
	logger  *logging.Logger
	janitor *Janitor

	now func() time.Time
}

// NewManager creates a manager. sink may be nil to discard events.
func NewManager(store storage.Provider, plugin Rotatable, config ManagerConfig, sink Sink, logger *logging.Logger) *Manager {
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}
	if config.MaxValidationRetries <= 0 {
		config.MaxValidationRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	if config.RollbackStrategy == "" {
		config.RollbackStrategy = RollbackAutomatic
	}
	if sink == nil {
		sink = NopSink{}
	}

	cleaner, _ := plugin.(OldVersionCleaner)
	return &Manager{
		store:   store,
		plugin:  plugin,
		config:  config,
		sink:    sink,
		logger:  logger.With(plugin.Name()),
		janitor: NewJanitor(store, cleaner, logger),
		now:     time.Now,
	}
}

// Janitor returns the grace-period cleanup worker. Run it alongside the
// manager, or call Sweep directly in tests and one-shot tools.
func (m *Manager) Janitor() *Janitor {
	return m.janitor
}

// Rotate performs one complete rotation of the credential and returns the
// transaction in its final state. The returned transaction is non-nil
// whenever one was created, including on failure.
//
// A ConcurrentRotation error means another rotation holds the credential;
// the attempt was abandoned before anything was written and needs no
// rollback.
func (m *Manager) Rotate(ctx context.Context, credentialID string, opts Options) (*Transaction, error) {
	record, current, err := m.store.Load(ctx, credentialID)
	if err != nil {
		return nil, dserrors.Storage(err)
	}

	var tx *Transaction
	if opts.Manual != nil {
		tx = NewManualTransaction(credentialID, record.CurrentVersion, *opts.Manual)
	} else {
		tx = NewTransaction(credentialID, record.CurrentVersion)
	}
	strategy := m.config.RollbackStrategy
	if opts.RollbackStrategy != "" {
		strategy = opts.RollbackStrategy
	}
	tx.SetRollbackStrategy(strategy)

	if err := m.acquireLock(ctx, tx); err != nil {
		m.sink.OnError(tx, err)
		m.logger.Warn("rotation of %s abandoned: %v", credentialID, err)
		return tx, err
	}

	if opts.Enable2PC {
		tx.TwoPhase = &TwoPhaseDriver{}
		if err := tx.TwoPhase.BeginTransaction(); err != nil {
			return tx, m.fail(ctx, tx, err)
		}
		// Prepare pairs with begin: everything up to the pointer swap is
		// the reversible prepare work.
		if err := tx.TwoPhase.PreparePhase(); err != nil {
			return tx, m.fail(ctx, tx, err)
		}
		tx.SyncPhase()
	}

	oldCred := Credential{
		ID:       credentialID,
		Version:  record.CurrentVersion,
		Data:     current.Data,
		Metadata: current.Metadata,
	}

	// Creating: mint the replacement and store it as a non-current version.
	if err := m.transition(tx, StateCreating); err != nil {
		return tx, m.fail(ctx, tx, err)
	}
	minted, err := m.plugin.Rotate(ctx, oldCred)
	if err != nil {
		return tx, m.fail(ctx, tx, dserrors.TransactionFailed("minting new credential: "+err.Error()))
	}
	newVersion, err := m.store.StoreNewVersion(ctx, credentialID, record.CurrentVersion, minted.Data, minted.Metadata)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return tx, m.fail(ctx, tx, dserrors.ConcurrentRotation(credentialID))
		}
		return tx, m.fail(ctx, tx, dserrors.Storage(err))
	}
	tx.SetNewVersion(newVersion)
	// Advisory; the persisted lock keeps its acquisition version until
	// release, because the stored pointer has not moved yet.
	if err := tx.Lock.CompareAndSwap(record.CurrentVersion, newVersion); err != nil {
		return tx, m.fail(ctx, tx, err)
	}

	// Validating: probe the new credential before it becomes current.
	if err := m.transition(tx, StateValidating); err != nil {
		return tx, m.fail(ctx, tx, err)
	}
	newCred := Credential{ID: credentialID, Version: newVersion, Data: minted.Data, Metadata: minted.Metadata}
	if err := m.validate(ctx, tx, newCred); err != nil {
		return tx, m.fail(ctx, tx, err)
	}

	// Committing: swap the pointer and start the grace period.
	if err := m.transition(tx, StateCommitting); err != nil {
		return tx, m.fail(ctx, tx, err)
	}
	if tx.TwoPhase != nil {
		if err := tx.TwoPhase.CommitPhase(); err != nil {
			return tx, m.fail(ctx, tx, err)
		}
		tx.SyncPhase()
	}

	graceEnd := m.now().Add(m.gracePeriod(opts))
	if err := m.store.CommitPointer(ctx, credentialID, record.CurrentVersion, newVersion, graceEnd); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return tx, m.fail(ctx, tx, dserrors.ConcurrentRotation(credentialID))
		}
		return tx, m.fail(ctx, tx, dserrors.Storage(err))
	}
	tx.SetGracePeriodEnd(graceEnd)

	if err := m.transition(tx, StateCommitted); err != nil {
		// The pointer already moved; surface the inconsistency instead of
		// trying to unwind a committed swap.
		return tx, err
	}
	if tx.TwoPhase != nil {
		if err := tx.TwoPhase.CompleteCommit(); err != nil {
			return tx, err
		}
		tx.SyncPhase()
	}

	m.releaseLock(ctx, tx)
	m.janitor.Schedule(CleanupJob{
		CredentialID: credentialID,
		Version:      record.CurrentVersion,
		Due:          graceEnd,
		Old:          &oldCred,
	})
	m.sink.OnCompleted(tx)
	m.logger.Info("rotated %s from v%d to v%d", credentialID, record.CurrentVersion, newVersion)
	return tx, nil
}

// ResolveStuck completes the rollback of a transaction parked pre-terminal
// by the manual or none rollback strategy: the orphan version is deleted,
// the lock released, and the transaction moved to RolledBack.
func (m *Manager) ResolveStuck(ctx context.Context, tx *Transaction) error {
	if tx.IsComplete() {
		return dserrors.TransactionFailed("transaction " + tx.ID + " already terminal")
	}
	reason := tx.ErrorMessage
	if reason == "" {
		reason = "resolved by operator"
	}
	return m.rollback(ctx, tx, reason)
}

// RefreshIfNeeded renews a token credential in place when its plugin
// supports refresh and the lifetime threshold has been crossed. Returns
// true when a refresh happened. Refresh bypasses the rotation transaction:
// the renewed token replaces the current version with no grace period.
func (m *Manager) RefreshIfNeeded(ctx context.Context, credentialID string, threshold float64, mode validation.RefreshMode) (bool, error) {
	refresher, ok := m.plugin.(TokenRefresher)
	if !ok {
		return false, nil
	}

	record, current, err := m.store.Load(ctx, credentialID)
	if err != nil {
		return false, dserrors.Storage(err)
	}
	cred := Credential{ID: credentialID, Version: record.CurrentVersion, Data: current.Data, Metadata: current.Metadata}

	issuedAt, expiresAt, err := refresher.GetExpiration(ctx, cred)
	if err != nil {
		return false, dserrors.TransactionFailed("reading token expiration: " + err.Error())
	}
	if !ShouldRefreshToken(issuedAt, expiresAt, m.now(), threshold, mode) {
		return false, nil
	}

	minted, err := refresher.RefreshToken(ctx, cred)
	if err != nil {
		return false, dserrors.TransactionFailed("refreshing token: " + err.Error())
	}
	newVersion, err := m.store.StoreNewVersion(ctx, credentialID, record.CurrentVersion, minted.Data, minted.Metadata)
	if err != nil {
		return false, dserrors.Storage(err)
	}
	if err := m.store.CommitPointer(ctx, credentialID, record.CurrentVersion, newVersion, m.now()); err != nil {
		return false, dserrors.Storage(err)
	}
	m.logger.Info("refreshed token %s to v%d", credentialID, newVersion)
	return true, nil
}

func (m *Manager) gracePeriod(opts Options) time.Duration {
	if opts.Manual != nil && opts.Manual.Emergency {
		return 0
	}
	if opts.GracePeriod != nil {
		return *opts.GracePeriod
	}
	return m.config.GracePeriod
}

// acquireLock persists the lock through the provider's conditional write.
// Any conflict, whether a version mismatch or another holder, surfaces as
// ConcurrentRotation.
func (m *Manager) acquireLock(ctx context.Context, tx *Transaction) error {
	lock := NewOptimisticLock(tx.CredentialID, tx.OldVersion)
	if err := lock.AcquireLock(tx.ID); err != nil {
		return err
	}
	if err := m.store.SaveLock(ctx, toLockRecord(lock)); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return dserrors.ConcurrentRotation(tx.CredentialID)
		}
		return dserrors.Storage(err)
	}
	tx.Lock = lock
	return nil
}

// releaseLock clears the persisted lock. Failures are logged, not
// propagated: the lock is keyed on a version that no longer matches after
// commit, so a stale record cannot block the next rotation.
func (m *Manager) releaseLock(ctx context.Context, tx *Transaction) {
	if tx.Lock == nil {
		return
	}
	holder := tx.Lock.Holder
	tx.Lock.ReleaseLock()
	record := toLockRecord(tx.Lock)
	// The provider lets only the holder release; ReleaseLock already
	// cleared it from the in-memory value.
	record.Holder = holder
	if err := m.store.SaveLock(ctx, record); err != nil {
		m.logger.Warn("releasing lock on %s: %v", tx.CredentialID, err)
	}
}

func (m *Manager) transition(tx *Transaction, next State) error {
	from := tx.State
	if err := tx.TransitionTo(next); err != nil {
		return err
	}
	m.sink.OnTransition(tx, from, next)
	m.logger.Debug("transaction %s: %s -> %s", tx.ID, from, next)
	return nil
}

// validate probes the new credential, retrying transient failures with
// exponential backoff. Plugins without the Testable capability skip
// validation entirely.
func (m *Manager) validate(ctx context.Context, tx *Transaction, newCred Credential) error {
	testable, ok := m.plugin.(Testable)
	if !ok {
		m.logger.Debug("plugin %s has no test capability, skipping validation", m.plugin.Name())
		return nil
	}

	handler := validation.NewFailureHandler(m.config.MaxValidationRetries, true)
	timeout := TestTimeoutFor(m.plugin)

	for attempt := 0; ; attempt++ {
		vctx := &validation.Context{
			CredentialID: tx.CredentialID,
			Metadata:     newCred.Metadata,
			Timeout:      timeout,
			IsRetry:      attempt > 0,
			RetryAttempt: attempt,
		}
		outcome, err := vctx.Validate(ctx, func(probeCtx context.Context) (validation.Outcome, error) {
			return testable.Test(probeCtx, newCred)
		})

		if err == nil && outcome.Passed {
			record := ValidationRecord{
				Passed:   true,
				Message:  outcome.Message,
				Method:   outcome.Method,
				Duration: outcome.Duration,
			}
			tx.SetValidationResult(record)
			m.sink.OnValidation(tx, record)
			return nil
		}

		var message, method string
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			message = err.Error()
			method = "probe"
		} else {
			message = outcome.Message
			method = outcome.Method
		}

		record := ValidationRecord{
			Passed:   false,
			Message:  message,
			Method:   method,
			Duration: outcome.Duration,
		}
		tx.SetValidationResult(record)
		m.sink.OnValidation(tx, record)

		kind := validation.Classify(message)
		if handler.ShouldRetry(kind, attempt) {
			backoff := m.config.RetryBackoff << uint(attempt)
			m.logger.Warn("validation of %s failed (%s), retry %d in %v: %s",
				tx.CredentialID, kind, attempt+1, backoff, message)
			if err := m.wait(ctx, backoff); err != nil {
				return err
			}
			continue
		}

		m.logger.Error("validation of %s failed (%s) after %d attempt(s): %s",
			tx.CredentialID, kind, attempt+1, message)
		return dserrors.ValidationFailed(tx.CredentialID, message)
	}
}

// fail routes a pre-commit failure through the transaction's rollback
// strategy and returns the original error.
func (m *Manager) fail(ctx context.Context, tx *Transaction, cause error) error {
	switch tx.RollbackStrategy {
	case RollbackAutomatic:
		if err := m.rollback(ctx, tx, cause.Error()); err != nil {
			m.logger.Error("rollback of %s failed: %v", tx.CredentialID, err)
			return err
		}
	default:
		// Manual and none park the transaction pre-terminal with the lock
		// held, so the credential stays quarantined until an operator
		// resolves it through ResolveStuck.
		tx.SetErrorMessage(cause.Error())
		m.sink.OnError(tx, cause)
		m.logger.Warn("rotation of %s stuck in %s, strategy %s requires resolution: %v",
			tx.CredentialID, tx.State, tx.RollbackStrategy, cause)
	}
	return cause
}

// rollback undoes a pre-commit failure: the orphan new version is deleted,
// the lock released, and the transaction moved to RolledBack.
func (m *Manager) rollback(ctx context.Context, tx *Transaction, reason string) error {
	if tx.TwoPhase != nil && tx.TwoPhase.Begun() {
		if err := tx.TwoPhase.AbortTransaction(reason); err != nil {
			return dserrors.RollbackFailed("aborting two-phase transaction: " + err.Error())
		}
		tx.SyncPhase()
	}

	if tx.NewVersion != nil {
		if err := m.store.DeleteVersion(ctx, tx.CredentialID, *tx.NewVersion); err != nil {
			return dserrors.RollbackFailed("deleting orphan version: " + err.Error())
		}
	}

	from := tx.State
	if err := tx.RollbackTransaction(reason); err != nil {
		return err
	}
	m.sink.OnTransition(tx, from, StateRolledBack)

	if tx.TwoPhase != nil && tx.TwoPhase.Begun() {
		if err := tx.TwoPhase.CompleteAbort(); err != nil {
			return dserrors.RollbackFailed("completing abort: " + err.Error())
		}
		tx.SyncPhase()
	}

	m.releaseLock(ctx, tx)
	m.sink.OnCompleted(tx)
	m.logger.Warn("rolled back rotation of %s: %s", tx.CredentialID, reason)
	return nil
}

func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// toLockRecord converts the in-memory lock to its persisted form.
func toLockRecord(l *OptimisticLock) *storage.LockRecord {
	return &storage.LockRecord{
		CredentialID:    l.CredentialID,
		ExpectedVersion: l.ExpectedVersion,
		NewVersion:      l.NewVersion,
		AcquiredAt:      l.AcquiredAt,
		Holder:          l.Holder,
		Locked:          l.IsLocked,
	}
}
