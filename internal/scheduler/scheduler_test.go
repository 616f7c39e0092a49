package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/internal/policy"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&discard{}, false)
}

type discard struct{}

func (d *discard) Write(p []byte) (int, error) { return len(p), nil }

func TestPeriodic_Jitter(t *testing.T) {
	t.Parallel()

	interval := 90 * 24 * time.Hour
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	p := NewPeriodic("db-pass", policy.PeriodicConfig{
		Interval:     interval,
		EnableJitter: true,
	}, nil, testLogger())
	p.now = func() time.Time { return base }
	p.rng = rand.New(rand.NewSource(42))

	low := base.Add(time.Duration(0.9 * float64(interval)))
	high := base.Add(time.Duration(1.1 * float64(interval)))

	seen := make(map[time.Time]struct{})
	for i := 0; i < 1000; i++ {
		next := p.CalculateNextRotationTime()
		assert.False(t, next.Before(low), "sample %d below 0.9·I: %v", i, next)
		assert.False(t, next.After(high), "sample %d above 1.1·I: %v", i, next)
		seen[next] = struct{}{}
	}

	// Strictly positive variance: the samples are not all identical.
	assert.Greater(t, len(seen), 1)
}

func TestPeriodic_NoJitter(t *testing.T) {
	t.Parallel()

	interval := time.Hour
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	p := NewPeriodic("db-pass", policy.PeriodicConfig{Interval: interval}, nil, testLogger())
	p.now = func() time.Time { return base }

	for i := 0; i < 1000; i++ {
		assert.Equal(t, base.Add(interval), p.CalculateNextRotationTime())
	}
}

func TestPeriodic_Run_RotatesAndSurvivesFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	rotate := func(ctx context.Context, credentialID string) error {
		assert.Equal(t, "db-pass", credentialID)
		if calls.Add(1) == 1 {
			return errors.New("transient blip")
		}
		return nil
	}

	p := NewPeriodic("db-pass", policy.PeriodicConfig{Interval: 5 * time.Millisecond}, rotate, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// The first rotation fails; the loop must keep going.
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

func TestPeriodic_Run_CancelDuringWait(t *testing.T) {
	t.Parallel()

	p := NewPeriodic("db-pass", policy.PeriodicConfig{Interval: time.Hour}, func(ctx context.Context, id string) error {
		t.Error("rotation must not fire")
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

func TestExpiryMonitor_TriggerTime(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	t.Run("threshold_wins", func(t *testing.T) {
		t.Parallel()
		m := NewExpiryMonitor(policy.BeforeExpiryConfig{
			ThresholdPercentage: 0.8,
			CheckInterval:       time.Minute,
		}, testLogger())

		trigger := m.TriggerTime(CredentialExpiry{
			CredentialID: "x",
			CreatedAt:    created,
			ExpiresAt:    created.Add(30 * day),
		})
		assert.Equal(t, created.Add(24*day), trigger)
	})

	t.Run("minimum_wins", func(t *testing.T) {
		t.Parallel()
		m := NewExpiryMonitor(policy.BeforeExpiryConfig{
			ThresholdPercentage:     0.9,
			MinimumTimeBeforeExpiry: 10 * day,
			CheckInterval:           time.Minute,
		}, testLogger())

		trigger := m.TriggerTime(CredentialExpiry{
			CredentialID: "x",
			CreatedAt:    created,
			ExpiresAt:    created.Add(30 * day),
		})
		// Threshold would fire at 27d; the 10d floor pulls it to 20d.
		assert.Equal(t, created.Add(20*day), trigger)
	})

	t.Run("inverted_lifetime_immediate", func(t *testing.T) {
		t.Parallel()
		m := NewExpiryMonitor(policy.BeforeExpiryConfig{
			ThresholdPercentage: 0.8,
			CheckInterval:       time.Minute,
		}, testLogger())

		trigger := m.TriggerTime(CredentialExpiry{
			CredentialID: "x",
			CreatedAt:    created,
			ExpiresAt:    created.Add(-time.Hour),
		})
		assert.Equal(t, created, trigger)
	})
}

func TestExpiryMonitor_CheckCredentials(t *testing.T) {
	t.Parallel()

	day := 24 * time.Hour
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	m := NewExpiryMonitor(policy.BeforeExpiryConfig{
		ThresholdPercentage:     0.8,
		MinimumTimeBeforeExpiry: time.Hour,
		CheckInterval:           time.Minute,
	}, testLogger())
	m.now = func() time.Time { return now }

	batch := []CredentialExpiry{
		{CredentialID: "old-and-near", CreatedAt: now.Add(-30 * day), ExpiresAt: now.Add(2 * day)},
		{CredentialID: "fresh", CreatedAt: now.Add(-5 * day), ExpiresAt: now.Add(25 * day)},
		{CredentialID: "aged", CreatedAt: now.Add(-25 * day), ExpiresAt: now.Add(5 * day)},
	}

	due := m.CheckCredentials(batch)
	require.Len(t, due, 2)
	assert.Equal(t, "old-and-near", due[0].CredentialID)
	assert.Equal(t, "aged", due[1].CredentialID)
}

func TestExpiryMonitor_Run(t *testing.T) {
	t.Parallel()

	var rotated atomic.Int32
	m := NewExpiryMonitor(policy.BeforeExpiryConfig{
		ThresholdPercentage: 0.8,
		CheckInterval:       5 * time.Millisecond,
	}, testLogger())

	list := func() []CredentialExpiry {
		return []CredentialExpiry{{
			CredentialID: "due",
			CreatedAt:    time.Now().Add(-2 * time.Hour),
			ExpiresAt:    time.Now().Add(-time.Hour),
		}}
	}
	rotate := func(ctx context.Context, id string) error {
		rotated.Add(1)
		return errors.New("still failing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, list, rotate) }()

	// Failures must not stop the polling loop.
	require.Eventually(t, func() bool { return rotated.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not exit after cancellation")
	}
}

func TestScheduled_Instants(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 9, 15, 2, 0, 0, 0, time.UTC)
	notify := 24 * time.Hour
	s := NewScheduled("tls-cert", policy.ScheduledConfig{
		ScheduledAt:  at,
		NotifyBefore: &notify,
	}, nil, nil, testLogger())

	assert.Equal(t, at, s.ScheduleAt())

	notifyAt, ok := s.NotificationTime()
	require.True(t, ok)
	assert.Equal(t, at.Add(-24*time.Hour), notifyAt)

	s.now = func() time.Time { return at.Add(-48 * time.Hour) }
	assert.False(t, s.ShouldNotifyNow())
	assert.False(t, s.ShouldRotateNow())
	assert.Equal(t, 48*time.Hour, s.TimeUntilRotation())

	s.now = func() time.Time { return at.Add(-time.Hour) }
	assert.True(t, s.ShouldNotifyNow())
	assert.False(t, s.ShouldRotateNow())

	s.now = func() time.Time { return at.Add(time.Minute) }
	assert.False(t, s.ShouldNotifyNow())
	assert.True(t, s.ShouldRotateNow())
	assert.Equal(t, -time.Minute, s.TimeUntilRotation())
}

func TestScheduled_NoNotifyConfigured(t *testing.T) {
	t.Parallel()

	s := NewScheduled("x", policy.ScheduledConfig{ScheduledAt: time.Now().Add(time.Hour)}, nil, nil, testLogger())
	_, ok := s.NotificationTime()
	assert.False(t, ok)
	assert.False(t, s.ShouldNotifyNow())
}

func TestScheduled_Run(t *testing.T) {
	t.Parallel()

	var rotated atomic.Int32
	var notified atomic.Int32

	at := time.Now().Add(20 * time.Millisecond)
	notify := 10 * time.Millisecond
	s := NewScheduled("tls-cert", policy.ScheduledConfig{
		ScheduledAt:  at,
		NotifyBefore: &notify,
	}, func(ctx context.Context, id string) error {
		rotated.Add(1)
		return nil
	}, func(id string, when time.Time) {
		notified.Add(1)
	}, testLogger())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, int32(1), rotated.Load())
	assert.Equal(t, int32(1), notified.Load())
}

func TestScheduled_Run_Cancelled(t *testing.T) {
	t.Parallel()

	s := NewScheduled("x", policy.ScheduledConfig{ScheduledAt: time.Now().Add(time.Hour)},
		func(ctx context.Context, id string) error {
			t.Error("rotation must not fire")
			return nil
		}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestCron_NextRotationTime(t *testing.T) {
	t.Parallel()

	pol, err := policy.NewCron("30 4 * * *", time.Hour)
	require.NoError(t, err)

	c := NewCron("db-pass", pol, nil, testLogger())
	after := time.Date(2026, 8, 29, 5, 0, 0, 0, time.UTC)
	next, err := c.NextRotationTime(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 4, 30, 0, 0, time.UTC), next)
}

func TestCron_Run_Cancelled(t *testing.T) {
	t.Parallel()

	pol, err := policy.NewCron("0 0 1 1 *", 0)
	require.NoError(t, err)

	c := NewCron("db-pass", pol, func(ctx context.Context, id string) error {
		t.Error("rotation must not fire")
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}
