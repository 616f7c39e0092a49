// Package errors defines the typed failure kinds produced by the rotation
// core. Every error carries its retry disposition so callers never have to
// parse messages to decide what to do next.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a rotation failure category.
type Kind string

const (
	// KindConcurrentRotation indicates another rotation holds the credential.
	// The attempt was abandoned before anything was committed.
	KindConcurrentRotation Kind = "concurrent_rotation"

	// KindInvalidStateTransition indicates a request that violates the
	// rotation state machine.
	KindInvalidStateTransition Kind = "invalid_state_transition"

	// KindValidationFailed indicates the new credential failed its probe.
	KindValidationFailed Kind = "validation_failed"

	// KindTimeout indicates an operation exceeded its wall-clock budget.
	KindTimeout Kind = "timeout"

	// KindTransactionFailed indicates the rotation transaction could not
	// make progress (2PC phase error, mid-flight storage failure).
	KindTransactionFailed Kind = "transaction_failed"

	// KindRollbackFailed indicates the rollback path itself failed.
	KindRollbackFailed Kind = "rollback_failed"

	// KindStorageError wraps a failure from the storage provider.
	KindStorageError Kind = "storage_error"
)

// RotationError is the error type returned by the rotation core.
type RotationError struct {
	Kind Kind

	// CredentialID is set for ConcurrentRotation and ValidationFailed.
	CredentialID string

	// From and To are set for InvalidStateTransition.
	From string
	To   string

	// Operation and TimeoutSecs are set for Timeout.
	Operation   string
	TimeoutSecs int

	// Reason is set for ValidationFailed, TransactionFailed, RollbackFailed.
	Reason string

	// Err is the underlying cause for StorageError.
	Err error
}

func (e *RotationError) Error() string {
	switch e.Kind {
	case KindConcurrentRotation:
		return fmt.Sprintf("concurrent rotation in progress for credential '%s'", e.CredentialID)
	case KindInvalidStateTransition:
		return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
	case KindValidationFailed:
		return fmt.Sprintf("validation failed for credential '%s': %s", e.CredentialID, e.Reason)
	case KindTimeout:
		return fmt.Sprintf("operation '%s' timed out after %ds", e.Operation, e.TimeoutSecs)
	case KindTransactionFailed:
		return fmt.Sprintf("rotation transaction failed: %s", e.Reason)
	case KindRollbackFailed:
		return fmt.Sprintf("rollback failed: %s", e.Reason)
	case KindStorageError:
		return fmt.Sprintf("storage error: %v", e.Err)
	default:
		return fmt.Sprintf("rotation error (%s)", e.Kind)
	}
}

func (e *RotationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the whole operation.
// ConcurrentRotation is retryable with backoff because nothing was committed;
// timeouts and transient storage failures are retryable because the condition
// is expected to clear.
func (e *RotationError) Retryable() bool {
	switch e.Kind {
	case KindConcurrentRotation, KindTimeout:
		return true
	case KindStorageError:
		return TransientIO(e.Err)
	default:
		return false
	}
}

// Transient reports whether the failure is expected to resolve on its own.
// Unlike Retryable it excludes ConcurrentRotation, which resolves only when
// the competing rotation finishes.
func (e *RotationError) Transient() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindStorageError:
		return TransientIO(e.Err)
	default:
		return false
	}
}

// ConcurrentRotation builds the conflict error for a credential.
func ConcurrentRotation(credentialID string) *RotationError {
	return &RotationError{Kind: KindConcurrentRotation, CredentialID: credentialID}
}

// InvalidStateTransition builds the error for a forbidden transition.
func InvalidStateTransition(from, to string) *RotationError {
	return &RotationError{Kind: KindInvalidStateTransition, From: from, To: to}
}

// ValidationFailed builds the error for a failed credential probe.
func ValidationFailed(credentialID, reason string) *RotationError {
	return &RotationError{Kind: KindValidationFailed, CredentialID: credentialID, Reason: reason}
}

// Timeout builds the error for an operation that exceeded its deadline.
func Timeout(operation string, timeoutSecs int) *RotationError {
	return &RotationError{Kind: KindTimeout, Operation: operation, TimeoutSecs: timeoutSecs}
}

// TransactionFailed builds the error for a rotation that could not progress.
func TransactionFailed(reason string) *RotationError {
	return &RotationError{Kind: KindTransactionFailed, Reason: reason}
}

// RollbackFailed builds the error for a failed rollback path.
func RollbackFailed(reason string) *RotationError {
	return &RotationError{Kind: KindRollbackFailed, Reason: reason}
}

// Storage wraps a storage provider failure.
func Storage(err error) *RotationError {
	return &RotationError{Kind: KindStorageError, Err: err}
}

// IsKind reports whether err is a RotationError of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *RotationError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// AsRotationError extracts a RotationError from err, or nil.
func AsRotationError(err error) *RotationError {
	var re *RotationError
	if errors.As(err, &re) {
		return re
	}
	return nil
}

// transientPatterns are substrings that mark an I/O failure as likely to
// clear on retry.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"temporary failure",
	"connection reset",
	"connection refused",
	"broken pipe",
	"rate limit",
	"throttling",
	"too many requests",
	"service unavailable",
}

// TransientIO reports whether an underlying I/O error looks transient.
func TransientIO(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
