// Package scheduler turns rotation policies into concrete trigger instants
// and runs the rotation loops. Each scheduler is a single cooperative task:
// a manager owns one task per credential, or one expiry monitor shared
// across many. Cancellation interrupts the wait, never an in-flight
// rotation.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/internal/policy"
)

// RotateFunc performs one rotation attempt for a credential. Errors are
// logged by the loop and never abort it.
type RotateFunc func(ctx context.Context, credentialID string) error

// jitterFraction is the spread applied around the interval when jitter is
// enabled: the delay is uniform in [0.9·I, 1.1·I].
const jitterFraction = 0.1

// Periodic drives interval-based rotation for one credential.
type Periodic struct {
	credentialID string
	config       policy.PeriodicConfig
	rotate       RotateFunc
	logger       *logging.Logger
	rng          *rand.Rand
	now          func() time.Time
}

// NewPeriodic creates a periodic scheduler for the credential.
func NewPeriodic(credentialID string, config policy.PeriodicConfig, rotate RotateFunc, logger *logging.Logger) *Periodic {
	return &Periodic{
		credentialID: credentialID,
		config:       config,
		rotate:       rotate,
		logger:       logger.With(credentialID),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
}

// nextDelay returns the delay until the next rotation: the configured
// interval, jittered by ±10% when enabled.
func (p *Periodic) nextDelay() time.Duration {
	if !p.config.EnableJitter {
		return p.config.Interval
	}
	// Uniform in [1-f, 1+f).
	factor := 1 - jitterFraction + 2*jitterFraction*p.rng.Float64()
	return time.Duration(float64(p.config.Interval) * factor)
}

// CalculateNextRotationTime returns the instant of the next rotation.
func (p *Periodic) CalculateNextRotationTime() time.Time {
	return p.now().Add(p.nextDelay())
}

// Run executes the rotation loop until ctx is cancelled: wait for the next
// instant, rotate, repeat. A failed rotation is logged and retried at the
// next interval. Returns nil on cancellation.
func (p *Periodic) Run(ctx context.Context) error {
	for {
		delay := p.nextDelay()
		p.logger.Debug("next rotation in %v", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Debug("rotation loop stopped")
			return nil
		case <-timer.C:
		}

		if err := p.rotate(ctx, p.credentialID); err != nil {
			p.logger.Error("rotation failed, retrying at next interval: %v", err)
		}
	}
}
