package scheduler

import (
	"context"
	"time"

	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/internal/policy"
)

// Scheduled drives a one-shot rotation at a fixed instant, with an optional
// advance notification.
type Scheduled struct {
	credentialID string
	config       policy.ScheduledConfig
	rotate       RotateFunc
	notify       func(credentialID string, at time.Time)
	logger       *logging.Logger
	now          func() time.Time
}

// NewScheduled creates a one-shot scheduler. notify may be nil.
func NewScheduled(credentialID string, config policy.ScheduledConfig, rotate RotateFunc, notify func(string, time.Time), logger *logging.Logger) *Scheduled {
	return &Scheduled{
		credentialID: credentialID,
		config:       config,
		rotate:       rotate,
		notify:       notify,
		logger:       logger.With(credentialID),
		now:          time.Now,
	}
}

// ScheduleAt returns the fixed rotation instant.
func (s *Scheduled) ScheduleAt() time.Time {
	return s.config.ScheduledAt
}

// NotificationTime returns the advance-notification instant, when
// configured.
func (s *Scheduled) NotificationTime() (time.Time, bool) {
	if s.config.NotifyBefore == nil {
		return time.Time{}, false
	}
	return s.config.ScheduledAt.Add(-*s.config.NotifyBefore), true
}

// ShouldNotifyNow reports whether the notification window has opened but
// the rotation instant has not yet arrived.
func (s *Scheduled) ShouldNotifyNow() bool {
	at, ok := s.NotificationTime()
	if !ok {
		return false
	}
	now := s.now()
	return !now.Before(at) && now.Before(s.config.ScheduledAt)
}

// ShouldRotateNow reports whether the rotation instant has arrived.
func (s *Scheduled) ShouldRotateNow() bool {
	return !s.now().Before(s.config.ScheduledAt)
}

// TimeUntilRotation returns the remaining wait; negative when past due.
func (s *Scheduled) TimeUntilRotation() time.Duration {
	return s.config.ScheduledAt.Sub(s.now())
}

// Run waits for the notification instant (if any), then the rotation
// instant, performs the single rotation, and returns. Cancellation during
// a wait returns nil without rotating.
func (s *Scheduled) Run(ctx context.Context) error {
	if at, ok := s.NotificationTime(); ok && s.now().Before(at) {
		if err := s.waitUntil(ctx, at); err != nil {
			return nil
		}
	}
	if s.notify != nil && s.ShouldNotifyNow() {
		s.notify(s.credentialID, s.config.ScheduledAt)
	}

	if s.now().Before(s.config.ScheduledAt) {
		if err := s.waitUntil(ctx, s.config.ScheduledAt); err != nil {
			return nil
		}
	}

	if err := s.rotate(ctx, s.credentialID); err != nil {
		s.logger.Error("scheduled rotation failed: %v", err)
		return err
	}
	return nil
}

func (s *Scheduled) waitUntil(ctx context.Context, at time.Time) error {
	timer := time.NewTimer(at.Sub(s.now()))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
