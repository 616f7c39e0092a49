package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriodic(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		p, err := NewPeriodic(90*24*time.Hour, 7*24*time.Hour, true)
		require.NoError(t, err)
		assert.Equal(t, TypePeriodic, p.Type)
		require.NotNil(t, p.Periodic)
		assert.True(t, p.Periodic.EnableJitter)
		assert.Equal(t, 7*24*time.Hour, p.GracePeriod())
	})

	t.Run("rejects_zero_interval", func(t *testing.T) {
		t.Parallel()
		_, err := NewPeriodic(0, time.Hour, false)
		assert.Error(t, err)
	})

	t.Run("rejects_negative_grace", func(t *testing.T) {
		t.Parallel()
		_, err := NewPeriodic(time.Hour, -time.Minute, false)
		assert.Error(t, err)
	})
}

func TestNewBeforeExpiry(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		p, err := NewBeforeExpiry(0.8, time.Hour, 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, TypeBeforeExpiry, p.Type)
		assert.InDelta(t, 0.8, p.BeforeExpiry.ThresholdPercentage, 1e-9)
	})

	t.Run("threshold_bounds", func(t *testing.T) {
		t.Parallel()
		_, err := NewBeforeExpiry(0, time.Hour, time.Minute)
		assert.Error(t, err)
		_, err = NewBeforeExpiry(1.01, time.Hour, time.Minute)
		assert.Error(t, err)
		_, err = NewBeforeExpiry(1.0, time.Hour, time.Minute)
		assert.NoError(t, err)
	})

	t.Run("rejects_zero_check_interval", func(t *testing.T) {
		t.Parallel()
		_, err := NewBeforeExpiry(0.5, time.Hour, 0)
		assert.Error(t, err)
	})
}

func TestNewScheduled(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		notify := 24 * time.Hour
		at := time.Now().Add(72 * time.Hour)
		p, err := NewScheduled(at, time.Hour, &notify)
		require.NoError(t, err)
		assert.Equal(t, TypeScheduled, p.Type)
		assert.Equal(t, at, p.Scheduled.ScheduledAt)
	})

	t.Run("rejects_past_instant", func(t *testing.T) {
		t.Parallel()
		_, err := NewScheduled(time.Now().Add(-time.Minute), 0, nil)
		assert.Error(t, err)
	})

	t.Run("rejects_non_positive_notify", func(t *testing.T) {
		t.Parallel()
		zero := time.Duration(0)
		_, err := NewScheduled(time.Now().Add(time.Hour), 0, &zero)
		assert.Error(t, err)
	})
}

func TestNewCron(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		p, err := NewCron("0 3 * * 0", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, TypeCron, p.Type)

		after := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) // a Monday
		next, err := p.NextCron(after)
		require.NoError(t, err)
		assert.Equal(t, time.Sunday, next.Weekday())
		assert.Equal(t, 3, next.Hour())
	})

	t.Run("rejects_bad_expression", func(t *testing.T) {
		t.Parallel()
		_, err := NewCron("not a cron", 0)
		assert.Error(t, err)
	})
}

func TestManual(t *testing.T) {
	t.Parallel()

	p := NewManual()
	assert.Equal(t, TypeManual, p.Type)
	assert.Zero(t, p.GracePeriod())
	assert.NoError(t, p.Validate())
}

func TestPolicy_Validate_MissingConfig(t *testing.T) {
	t.Parallel()

	assert.Error(t, Policy{Type: TypePeriodic}.Validate())
	assert.Error(t, Policy{Type: TypeBeforeExpiry}.Validate())
	assert.Error(t, Policy{Type: TypeScheduled}.Validate())
	assert.Error(t, Policy{Type: TypeCron}.Validate())
	assert.Error(t, Policy{Type: "bogus"}.Validate())
}

func TestPolicy_Validate_AcceptsPastSchedule(t *testing.T) {
	t.Parallel()

	// A stored schedule that is already due must still deserialize.
	p := Policy{
		Type:      TypeScheduled,
		Scheduled: &ScheduledConfig{ScheduledAt: time.Now().Add(-time.Hour)},
	}
	assert.NoError(t, p.Validate())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("valid_file", func(t *testing.T) {
		t.Parallel()
		data := []byte(`
credentials:
  prod/db/password:
    type: periodic
    periodic:
      interval: 2160h
      grace_period: 168h
      enable_jitter: true
  prod/api/token:
    type: before_expiry
    before_expiry:
      threshold_percentage: 0.8
      minimum_time_before_expiry: 1h
      check_interval: 10m
  prod/tls/cert:
    type: cron
    cron:
      expression: "0 3 * * 0"
      grace_period: 24h
`)
		file, err := Load(data)
		require.NoError(t, err)
		require.Len(t, file.Credentials, 3)
		assert.Equal(t, TypePeriodic, file.Credentials["prod/db/password"].Type)
		assert.Equal(t, 90*24*time.Hour, file.Credentials["prod/db/password"].Periodic.Interval)
	})

	t.Run("invalid_policy_rejected", func(t *testing.T) {
		t.Parallel()
		data := []byte(`
credentials:
  bad:
    type: before_expiry
    before_expiry:
      threshold_percentage: 1.5
      check_interval: 1m
`)
		_, err := Load(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")
	})

	t.Run("bad_yaml_rejected", func(t *testing.T) {
		t.Parallel()
		_, err := Load([]byte("credentials: [not a map"))
		assert.Error(t, err)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	original, err := NewPeriodic(time.Hour, 10*time.Minute, true)
	require.NoError(t, err)

	data, err := Marshal(original)
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	_, err = Unmarshal([]byte("type: periodic\n"))
	assert.Error(t, err)
}
