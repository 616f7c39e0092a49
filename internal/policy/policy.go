// Package policy models when a credential should rotate. A policy describes
// the trigger; the scheduler turns it into concrete instants.
package policy

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Type tags the policy variant.
type Type string

const (
	// TypePeriodic rotates on a fixed interval, optionally jittered.
	TypePeriodic Type = "periodic"

	// TypeBeforeExpiry rotates when a credential approaches its expiry.
	TypeBeforeExpiry Type = "before_expiry"

	// TypeScheduled rotates once at a fixed instant.
	TypeScheduled Type = "scheduled"

	// TypeCron rotates on a cron expression.
	TypeCron Type = "cron"

	// TypeManual never rotates on its own; the scheduler takes no action.
	TypeManual Type = "manual"
)

// PeriodicConfig configures interval-based rotation.
type PeriodicConfig struct {
	Interval     time.Duration `yaml:"interval"`
	GracePeriod  time.Duration `yaml:"grace_period"`
	EnableJitter bool          `yaml:"enable_jitter"`
}

// BeforeExpiryConfig configures expiry-driven rotation. ThresholdPercentage
// is the fraction of lifetime after which rotation fires;
// MinimumTimeBeforeExpiry is a floor respected even when the percentage
// threshold would fire later. CheckInterval is the poll cadence.
type BeforeExpiryConfig struct {
	ThresholdPercentage     float64       `yaml:"threshold_percentage"`
	MinimumTimeBeforeExpiry time.Duration `yaml:"minimum_time_before_expiry"`
	CheckInterval           time.Duration `yaml:"check_interval"`
}

// ScheduledConfig configures a one-shot rotation at a fixed instant.
type ScheduledConfig struct {
	ScheduledAt  time.Time      `yaml:"scheduled_at"`
	GracePeriod  time.Duration  `yaml:"grace_period"`
	NotifyBefore *time.Duration `yaml:"notify_before,omitempty"`
}

// CronConfig configures recurring rotation from a cron expression
// (standard five-field format).
type CronConfig struct {
	Expression  string        `yaml:"expression"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// Policy is the tagged rotation policy. Exactly one config field matching
// Type is non-nil; construct through the New* functions so the invariants
// hold.
type Policy struct {
	Type         Type                `yaml:"type"`
	Periodic     *PeriodicConfig     `yaml:"periodic,omitempty"`
	BeforeExpiry *BeforeExpiryConfig `yaml:"before_expiry,omitempty"`
	Scheduled    *ScheduledConfig    `yaml:"scheduled,omitempty"`
	Cron         *CronConfig         `yaml:"cron,omitempty"`
}

// cronParser accepts the standard five-field format.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NewPeriodic builds a periodic policy. The interval must be positive and
// the grace period non-negative.
func NewPeriodic(interval, gracePeriod time.Duration, enableJitter bool) (Policy, error) {
	if interval <= 0 {
		return Policy{}, fmt.Errorf("periodic policy: interval must be positive, got %v", interval)
	}
	if gracePeriod < 0 {
		return Policy{}, fmt.Errorf("periodic policy: grace period must not be negative, got %v", gracePeriod)
	}
	return Policy{
		Type: TypePeriodic,
		Periodic: &PeriodicConfig{
			Interval:     interval,
			GracePeriod:  gracePeriod,
			EnableJitter: enableJitter,
		},
	}, nil
}

// NewBeforeExpiry builds an expiry-driven policy. The threshold must lie in
// (0, 1] and the check interval must be positive.
func NewBeforeExpiry(threshold float64, minimumTimeBeforeExpiry, checkInterval time.Duration) (Policy, error) {
	if threshold <= 0 || threshold > 1 {
		return Policy{}, fmt.Errorf("before-expiry policy: threshold must be in (0,1], got %v", threshold)
	}
	if minimumTimeBeforeExpiry < 0 {
		return Policy{}, fmt.Errorf("before-expiry policy: minimum time before expiry must not be negative, got %v", minimumTimeBeforeExpiry)
	}
	if checkInterval <= 0 {
		return Policy{}, fmt.Errorf("before-expiry policy: check interval must be positive, got %v", checkInterval)
	}
	return Policy{
		Type: TypeBeforeExpiry,
		BeforeExpiry: &BeforeExpiryConfig{
			ThresholdPercentage:     threshold,
			MinimumTimeBeforeExpiry: minimumTimeBeforeExpiry,
			CheckInterval:           checkInterval,
		},
	}, nil
}

// NewScheduled builds a one-shot policy. A new schedule must lie in the
// future.
func NewScheduled(scheduledAt time.Time, gracePeriod time.Duration, notifyBefore *time.Duration) (Policy, error) {
	if !scheduledAt.After(time.Now()) {
		return Policy{}, fmt.Errorf("scheduled policy: scheduled_at %v is not in the future", scheduledAt)
	}
	if gracePeriod < 0 {
		return Policy{}, fmt.Errorf("scheduled policy: grace period must not be negative, got %v", gracePeriod)
	}
	if notifyBefore != nil && *notifyBefore <= 0 {
		return Policy{}, fmt.Errorf("scheduled policy: notify_before must be positive, got %v", *notifyBefore)
	}
	return Policy{
		Type: TypeScheduled,
		Scheduled: &ScheduledConfig{
			ScheduledAt:  scheduledAt,
			GracePeriod:  gracePeriod,
			NotifyBefore: notifyBefore,
		},
	}, nil
}

// NewCron builds a cron policy from a five-field expression.
func NewCron(expression string, gracePeriod time.Duration) (Policy, error) {
	if _, err := cronParser.Parse(expression); err != nil {
		return Policy{}, fmt.Errorf("cron policy: invalid expression %q: %w", expression, err)
	}
	if gracePeriod < 0 {
		return Policy{}, fmt.Errorf("cron policy: grace period must not be negative, got %v", gracePeriod)
	}
	return Policy{
		Type: TypeCron,
		Cron: &CronConfig{Expression: expression, GracePeriod: gracePeriod},
	}, nil
}

// NewManual builds a policy the scheduler ignores.
func NewManual() Policy {
	return Policy{Type: TypeManual}
}

// GracePeriod returns the variant's grace period, or zero for variants
// without one.
func (p Policy) GracePeriod() time.Duration {
	switch p.Type {
	case TypePeriodic:
		return p.Periodic.GracePeriod
	case TypeScheduled:
		return p.Scheduled.GracePeriod
	case TypeCron:
		return p.Cron.GracePeriod
	default:
		return 0
	}
}

// NextCron computes the next cron firing after the given instant.
func (p Policy) NextCron(after time.Time) (time.Time, error) {
	if p.Type != TypeCron || p.Cron == nil {
		return time.Time{}, fmt.Errorf("policy type %s has no cron schedule", p.Type)
	}
	schedule, err := cronParser.Parse(p.Cron.Expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron policy: invalid expression %q: %w", p.Cron.Expression, err)
	}
	return schedule.Next(after), nil
}

// Validate re-checks the invariants of a policy deserialized from config.
func (p Policy) Validate() error {
	switch p.Type {
	case TypePeriodic:
		if p.Periodic == nil {
			return fmt.Errorf("periodic policy: missing config")
		}
		_, err := NewPeriodic(p.Periodic.Interval, p.Periodic.GracePeriod, p.Periodic.EnableJitter)
		return err
	case TypeBeforeExpiry:
		if p.BeforeExpiry == nil {
			return fmt.Errorf("before-expiry policy: missing config")
		}
		_, err := NewBeforeExpiry(p.BeforeExpiry.ThresholdPercentage,
			p.BeforeExpiry.MinimumTimeBeforeExpiry, p.BeforeExpiry.CheckInterval)
		return err
	case TypeScheduled:
		if p.Scheduled == nil {
			return fmt.Errorf("scheduled policy: missing config")
		}
		// A stored schedule may already be past due; only the grace and
		// notify invariants apply after construction.
		if p.Scheduled.GracePeriod < 0 {
			return fmt.Errorf("scheduled policy: grace period must not be negative, got %v", p.Scheduled.GracePeriod)
		}
		if p.Scheduled.NotifyBefore != nil && *p.Scheduled.NotifyBefore <= 0 {
			return fmt.Errorf("scheduled policy: notify_before must be positive, got %v", *p.Scheduled.NotifyBefore)
		}
		return nil
	case TypeCron:
		if p.Cron == nil {
			return fmt.Errorf("cron policy: missing config")
		}
		_, err := NewCron(p.Cron.Expression, p.Cron.GracePeriod)
		return err
	case TypeManual:
		return nil
	default:
		return fmt.Errorf("unknown policy type %q", p.Type)
	}
}
