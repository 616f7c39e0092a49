package scheduler

import (
	"context"
	"time"

	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/internal/policy"
)

// Cron drives recurring rotation from a cron expression. Behaves like the
// periodic loop, with instants computed from the schedule instead of an
// interval.
type Cron struct {
	credentialID string
	pol          policy.Policy
	rotate       RotateFunc
	logger       *logging.Logger
	now          func() time.Time
}

// NewCron creates a cron scheduler. The policy must be a validated cron
// policy.
func NewCron(credentialID string, pol policy.Policy, rotate RotateFunc, logger *logging.Logger) *Cron {
	return &Cron{
		credentialID: credentialID,
		pol:          pol,
		rotate:       rotate,
		logger:       logger.With(credentialID),
		now:          time.Now,
	}
}

// NextRotationTime returns the next firing after the given instant.
func (c *Cron) NextRotationTime(after time.Time) (time.Time, error) {
	return c.pol.NextCron(after)
}

// Run executes the rotation loop until ctx is cancelled. Failures are
// logged and retried at the next firing.
func (c *Cron) Run(ctx context.Context) error {
	for {
		next, err := c.NextRotationTime(c.now())
		if err != nil {
			// Validated at construction; only reachable if the policy
			// was mutated underneath us.
			c.logger.Error("cron schedule unusable, stopping loop: %v", err)
			return err
		}

		timer := time.NewTimer(next.Sub(c.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Debug("cron rotation loop stopped")
			return nil
		case <-timer.C:
		}

		if err := c.rotate(ctx, c.credentialID); err != nil {
			c.logger.Error("cron rotation failed, retrying at next firing: %v", err)
		}
	}
}
