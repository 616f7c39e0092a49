package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/internal/policy"
)

// CredentialExpiry describes one credential's lifetime for the expiry
// monitor.
type CredentialExpiry struct {
	CredentialID string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// ExpiryMonitor polls a batch of credentials and triggers rotation for any
// that have crossed their expiry threshold. One monitor serves many
// credentials.
type ExpiryMonitor struct {
	config policy.BeforeExpiryConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewExpiryMonitor creates a monitor with the given threshold config.
func NewExpiryMonitor(config policy.BeforeExpiryConfig, logger *logging.Logger) *ExpiryMonitor {
	return &ExpiryMonitor{
		config: config,
		logger: logger.With("expiry-monitor"),
		now:    time.Now,
	}
}

// TriggerTime computes when a credential becomes due:
//
//	min(created + threshold·(expires − created), expires − minimum)
//
// so the minimum-time floor wins when the percentage threshold would fire
// later. Arithmetic that does not produce a usable instant (inverted
// lifetimes, overflowed conversions) is absorbed: the trigger defaults to
// immediate and the anomaly is logged.
func (m *ExpiryMonitor) TriggerTime(cred CredentialExpiry) time.Time {
	lifetime := cred.ExpiresAt.Sub(cred.CreatedAt)
	if lifetime <= 0 {
		m.logger.Warn("credential %s has non-positive lifetime, triggering immediately", cred.CredentialID)
		return cred.CreatedAt
	}

	scaled := float64(lifetime) * m.config.ThresholdPercentage
	if math.IsNaN(scaled) || scaled > float64(math.MaxInt64) {
		m.logger.Warn("credential %s threshold arithmetic overflowed, triggering immediately", cred.CredentialID)
		return cred.CreatedAt
	}

	byThreshold := cred.CreatedAt.Add(time.Duration(scaled))
	byMinimum := cred.ExpiresAt.Add(-m.config.MinimumTimeBeforeExpiry)
	if byMinimum.Before(byThreshold) {
		return byMinimum
	}
	return byThreshold
}

// CheckCredentials returns the credentials whose trigger time has arrived.
func (m *ExpiryMonitor) CheckCredentials(batch []CredentialExpiry) []CredentialExpiry {
	now := m.now()
	var due []CredentialExpiry
	for _, cred := range batch {
		if !m.TriggerTime(cred).After(now) {
			due = append(due, cred)
		}
	}
	return due
}

// Run polls at the configured check interval until ctx is cancelled. The
// list function supplies the current batch on every poll; due credentials
// are rotated one at a time, and failures are logged and retried at the
// next check interval.
func (m *ExpiryMonitor) Run(ctx context.Context, list func() []CredentialExpiry, rotate RotateFunc) error {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("expiry monitor stopped")
			return nil
		case <-ticker.C:
		}

		for _, cred := range m.CheckCredentials(list()) {
			if err := rotate(ctx, cred.CredentialID); err != nil {
				m.logger.Error("expiry rotation of %s failed, retrying at next check: %v",
					cred.CredentialID, err)
			}
		}
	}
}
