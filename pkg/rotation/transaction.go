package rotation

import (
	"time"

	"github.com/google/uuid"

	dserrors "github.com/systmms/credrotate/internal/errors"
)

// RollbackStrategy controls what the manager does when a rotation fails
// before commit.
type RollbackStrategy string

const (
	// RollbackAutomatic rolls the rotation back without intervention.
	RollbackAutomatic RollbackStrategy = "automatic"

	// RollbackManual stops on failure and surfaces the transaction for an
	// operator; the transaction stays pre-terminal until resolved.
	RollbackManual RollbackStrategy = "manual"

	// RollbackNone leaves the transaction in its failed pre-terminal state
	// and reports it through the audit sink only.
	RollbackNone RollbackStrategy = "none"
)

// ManualRotation records why a human (or an incident) triggered a rotation
// outside its schedule.
type ManualRotation struct {
	Reason      string `json:"reason"`
	TriggeredBy string `json:"triggered_by"`
	Emergency   bool   `json:"emergency"`
	IncidentID  string `json:"incident_id,omitempty"`
}

// ValidationRecord is the validation outcome attached to a transaction.
type ValidationRecord struct {
	Passed    bool          `json:"passed"`
	Message   string        `json:"message"`
	Method    string        `json:"method"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Transaction is the durable record of one rotation attempt. It is created
// and mutated only by the manager, always on a single goroutine, so it
// carries no locking of its own.
type Transaction struct {
	ID           string `json:"id"`
	CredentialID string `json:"credential_id"`
	State        State  `json:"state"`

	OldVersion uint32  `json:"old_version"`
	NewVersion *uint32 `json:"new_version,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ValidationResult *ValidationRecord `json:"validation_result,omitempty"`
	BackupID         string            `json:"backup_id,omitempty"`
	GracePeriodEnd   *time.Time        `json:"grace_period_end,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`

	Manual           *ManualRotation  `json:"manual_rotation,omitempty"`
	RollbackStrategy RollbackStrategy `json:"rollback_strategy"`

	// TwoPhase is non-nil iff 2PC is in effect for this rotation. The
	// driver itself does not serialize; TransactionPhase mirrors its
	// phase onto the durable record.
	TwoPhase         *TwoPhaseDriver `json:"-"`
	TransactionPhase *Phase          `json:"transaction_phase,omitempty"`

	// Lock is non-nil iff optimistic concurrency control is in effect.
	Lock *OptimisticLock `json:"optimistic_lock,omitempty"`
}

// NewTransaction creates a pending transaction for the credential at the
// given current version.
func NewTransaction(credentialID string, oldVersion uint32) *Transaction {
	return &Transaction{
		ID:               uuid.NewString(),
		CredentialID:     credentialID,
		State:            StatePending,
		OldVersion:       oldVersion,
		StartedAt:        time.Now(),
		RollbackStrategy: RollbackAutomatic,
	}
}

// NewManualTransaction creates a pending transaction carrying a manual
// rotation record.
func NewManualTransaction(credentialID string, oldVersion uint32, manual ManualRotation) *Transaction {
	tx := NewTransaction(credentialID, oldVersion)
	tx.Manual = &manual
	return tx
}

// TransitionTo moves the transaction to a new state through the state
// machine. The first transition into a terminal state latches CompletedAt;
// it is never overwritten.
func (tx *Transaction) TransitionTo(next State) error {
	newState, err := Transition(tx.State, next)
	if err != nil {
		return err
	}
	tx.State = newState
	if newState.IsTerminal() && tx.CompletedAt == nil {
		now := time.Now()
		tx.CompletedAt = &now
	}
	return nil
}

// SetNewVersion records the version minted for the new credential.
func (tx *Transaction) SetNewVersion(version uint32) {
	tx.NewVersion = &version
}

// SetValidationResult attaches the validation outcome.
func (tx *Transaction) SetValidationResult(record ValidationRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	tx.ValidationResult = &record
}

// SetBackupID records the backup taken before the swap.
func (tx *Transaction) SetBackupID(id string) {
	tx.BackupID = id
}

// SetGracePeriodEnd records when the old version stops being usable.
func (tx *Transaction) SetGracePeriodEnd(end time.Time) {
	tx.GracePeriodEnd = &end
}

// SetErrorMessage records the failure that put the transaction on its
// rollback path.
func (tx *Transaction) SetErrorMessage(msg string) {
	tx.ErrorMessage = msg
}

// SyncPhase copies the 2PC driver's current phase onto the serialized
// record. Call after every phase change; a no-op without a begun driver.
func (tx *Transaction) SyncPhase() {
	if tx.TwoPhase == nil || !tx.TwoPhase.Begun() {
		tx.TransactionPhase = nil
		return
	}
	phase := tx.TwoPhase.Phase()
	tx.TransactionPhase = &phase
}

// SetRollbackStrategy overrides the failure-handling strategy.
func (tx *Transaction) SetRollbackStrategy(strategy RollbackStrategy) {
	tx.RollbackStrategy = strategy
}

// RollbackTransaction records the reason and moves the transaction to
// RolledBack. Fails if the transaction is already terminal.
func (tx *Transaction) RollbackTransaction(reason string) error {
	if tx.State.IsTerminal() {
		return dserrors.InvalidStateTransition(tx.State.String(), StateRolledBack.String())
	}
	tx.ErrorMessage = reason
	return tx.TransitionTo(StateRolledBack)
}

// IsComplete reports whether the transaction reached a terminal state.
func (tx *Transaction) IsComplete() bool {
	return tx.State.IsTerminal()
}

// IsSuccessful reports whether the rotation committed.
func (tx *Transaction) IsSuccessful() bool {
	return tx.State == StateCommitted
}

// IsFailed reports whether the rotation was rolled back.
func (tx *Transaction) IsFailed() bool {
	return tx.State == StateRolledBack
}

// Duration returns how long the attempt has run, or took if complete.
func (tx *Transaction) Duration() time.Duration {
	if tx.CompletedAt != nil {
		return tx.CompletedAt.Sub(tx.StartedAt)
	}
	return time.Since(tx.StartedAt)
}
