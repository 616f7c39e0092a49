package rotation

import (
	"sync"
	"time"

	dserrors "github.com/systmms/credrotate/internal/errors"
	"github.com/systmms/credrotate/internal/metrics"
)

// Sink receives rotation lifecycle events. Implementations must be safe for
// concurrent use; the manager calls them inline, so they should return
// quickly and never block on I/O.
type Sink interface {
	// OnTransition fires after every successful state change.
	OnTransition(tx *Transaction, from, to State)

	// OnValidation fires after each validation attempt, pass or fail.
	OnValidation(tx *Transaction, record ValidationRecord)

	// OnCompleted fires once when the transaction reaches a terminal state.
	OnCompleted(tx *Transaction)

	// OnError fires for failures that leave the transaction pre-terminal:
	// lock conflicts and manual/none rollback strategies.
	OnError(tx *Transaction, err error)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnTransition(*Transaction, State, State) {}

func (NopSink) OnValidation(*Transaction, ValidationRecord) {}

func (NopSink) OnCompleted(*Transaction) {}

func (NopSink) OnError(*Transaction, error) {}

// AuditEvent is one entry in the in-memory audit trail.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	TransactionID string    `json:"transaction_id"`
	CredentialID  string    `json:"credential_id"`
	Event         string    `json:"event"`
	From          State     `json:"from,omitempty"`
	To            State     `json:"to,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// MemorySink keeps a bounded in-memory audit trail plus per-credential
// outcome counts. Oldest events are dropped once the bound is reached.
type MemorySink struct {
	mu       sync.Mutex
	maxSize  int
	events   []AuditEvent
	statuses map[string]map[State]int
}

// NewMemorySink creates a sink bounded to maxSize events. A non-positive
// bound defaults to 1000.
func NewMemorySink(maxSize int) *MemorySink {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemorySink{
		maxSize:  maxSize,
		statuses: make(map[string]map[State]int),
	}
}

func (s *MemorySink) append(ev AuditEvent) {
	ev.Timestamp = time.Now()
	s.events = append(s.events, ev)
	if len(s.events) > s.maxSize {
		s.events = s.events[len(s.events)-s.maxSize:]
	}
}

// OnTransition records the state change.
func (s *MemorySink) OnTransition(tx *Transaction, from, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(AuditEvent{
		TransactionID: tx.ID,
		CredentialID:  tx.CredentialID,
		Event:         "transition",
		From:          from,
		To:            to,
	})
}

// OnValidation records the probe outcome.
func (s *MemorySink) OnValidation(tx *Transaction, record ValidationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail := record.Message
	if record.Passed {
		detail = "passed"
	}
	s.append(AuditEvent{
		TransactionID: tx.ID,
		CredentialID:  tx.CredentialID,
		Event:         "validation",
		Detail:        detail,
	})
}

// OnCompleted records the terminal outcome and bumps the per-credential
// status count.
func (s *MemorySink) OnCompleted(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(AuditEvent{
		TransactionID: tx.ID,
		CredentialID:  tx.CredentialID,
		Event:         "completed",
		To:            tx.State,
		Detail:        tx.ErrorMessage,
	})
	if s.statuses[tx.CredentialID] == nil {
		s.statuses[tx.CredentialID] = make(map[State]int)
	}
	s.statuses[tx.CredentialID][tx.State]++
}

// OnError records a failure that left the transaction pre-terminal.
func (s *MemorySink) OnError(tx *Transaction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(AuditEvent{
		TransactionID: tx.ID,
		CredentialID:  tx.CredentialID,
		Event:         "error",
		Detail:        err.Error(),
	})
}

// Events returns a copy of the recorded trail, oldest first.
func (s *MemorySink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// StatusCounts returns how many transactions per credential ended in each
// terminal state.
func (s *MemorySink) StatusCounts(credentialID string) map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[State]int, len(s.statuses[credentialID]))
	for state, n := range s.statuses[credentialID] {
		out[state] = n
	}
	return out
}

// MetricsSink mirrors lifecycle events into Prometheus counters. Wrap it in
// a MultiSink alongside a real audit sink.
type MetricsSink struct {
	recorder *metrics.Recorder
}

// NewMetricsSink creates the Prometheus sink.
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{recorder: metrics.NewRecorder()}
}

// OnTransition counts rotation starts and rollbacks.
func (s *MetricsSink) OnTransition(tx *Transaction, from, to State) {
	switch {
	case from == StatePending && to == StateCreating:
		trigger := "scheduled"
		if tx.Manual != nil {
			trigger = "manual"
		}
		s.recorder.RecordRotationStarted(tx.CredentialID, trigger)
	case to == StateRolledBack:
		s.recorder.RecordRollback(tx.CredentialID, string(tx.RollbackStrategy))
	}
}

// OnValidation counts probe outcomes.
func (s *MetricsSink) OnValidation(tx *Transaction, record ValidationRecord) {
	outcome := "failure"
	if record.Passed {
		outcome = "success"
	}
	s.recorder.RecordValidationAttempt(tx.CredentialID, outcome)
}

// OnCompleted counts terminal outcomes with duration.
func (s *MetricsSink) OnCompleted(tx *Transaction) {
	s.recorder.RecordRotationCompleted(tx.CredentialID, tx.State.String(), tx.Duration().Seconds())
}

// OnError counts abandoned lock conflicts.
func (s *MetricsSink) OnError(tx *Transaction, err error) {
	if dserrors.IsKind(err, dserrors.KindConcurrentRotation) {
		s.recorder.RecordLockConflict(tx.CredentialID)
	}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnTransition(tx *Transaction, from, to State) {
	for _, s := range m {
		s.OnTransition(tx, from, to)
	}
}

func (m MultiSink) OnValidation(tx *Transaction, record ValidationRecord) {
	for _, s := range m {
		s.OnValidation(tx, record)
	}
}

func (m MultiSink) OnCompleted(tx *Transaction) {
	for _, s := range m {
		s.OnCompleted(tx)
	}
}

func (m MultiSink) OnError(tx *Transaction, err error) {
	for _, s := range m {
		s.OnError(tx, err)
	}
}
