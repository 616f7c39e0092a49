// Package metrics exposes Prometheus instrumentation for the rotation
// engine. Registration is lazy and guarded, so libraries embedding the
// engine pay nothing unless they call Init.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rotationStartedTotal   *prometheus.CounterVec
	rotationCompletedTotal *prometheus.CounterVec
	rotationDuration       *prometheus.HistogramVec
	rollbackTotal          *prometheus.CounterVec
	validationAttemptTotal *prometheus.CounterVec
	lockConflictTotal      *prometheus.CounterVec

	registerOnce sync.Once
	registered   bool
)

// Recorder records rotation engine metrics. The zero value is usable; all
// methods are no-ops until Init has run.
type Recorder struct{}

// NewRecorder creates a metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Init registers all collectors with the default registry. Call once at
// startup when metrics are enabled; subsequent calls are no-ops.
func Init() {
	registerOnce.Do(func() {
		rotationStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrotate_rotation_started_total",
				Help: "Total number of rotation transactions started",
			},
			[]string{"credential", "trigger"},
		)

		rotationCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrotate_rotation_completed_total",
				Help: "Total number of rotation transactions reaching a terminal state",
			},
			[]string{"credential", "status"},
		)

		rotationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credrotate_rotation_duration_seconds",
				Help:    "Wall-clock duration of rotation transactions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120},
			},
			[]string{"credential"},
		)

		rollbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrotate_rollback_total",
				Help: "Total number of rollbacks by strategy",
			},
			[]string{"credential", "strategy"},
		)

		validationAttemptTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrotate_validation_attempts_total",
				Help: "Total number of new-credential validation attempts",
			},
			[]string{"credential", "outcome"},
		)

		lockConflictTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrotate_lock_conflict_total",
				Help: "Total number of rotations abandoned to a concurrent holder",
			},
			[]string{"credential"},
		)

		registered = true
	})
}

// RecordRotationStarted records a transaction entering the pipeline.
func (r *Recorder) RecordRotationStarted(credential, trigger string) {
	if !registered || rotationStartedTotal == nil {
		return
	}
	rotationStartedTotal.WithLabelValues(credential, trigger).Inc()
}

// RecordRotationCompleted records a transaction reaching a terminal state.
func (r *Recorder) RecordRotationCompleted(credential, status string, durationSeconds float64) {
	if !registered {
		return
	}

	if rotationCompletedTotal != nil {
		rotationCompletedTotal.WithLabelValues(credential, status).Inc()
	}

	if rotationDuration != nil {
		rotationDuration.WithLabelValues(credential).Observe(durationSeconds)
	}
}

// RecordRollback records a rollback by strategy.
func (r *Recorder) RecordRollback(credential, strategy string) {
	if !registered || rollbackTotal == nil {
		return
	}
	rollbackTotal.WithLabelValues(credential, strategy).Inc()
}

// RecordValidationAttempt records one validation probe result.
func (r *Recorder) RecordValidationAttempt(credential, outcome string) {
	if !registered || validationAttemptTotal == nil {
		return
	}
	validationAttemptTotal.WithLabelValues(credential, outcome).Inc()
}

// RecordLockConflict records a rotation abandoned because another holder
// owns the credential's lock.
func (r *Recorder) RecordLockConflict(credential string) {
	if !registered || lockConflictTotal == nil {
		return
	}
	lockConflictTotal.WithLabelValues(credential).Inc()
}

// Registered reports whether Init has run.
func Registered() bool {
	return registered
}
