package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableStatus(t *testing.T) {
	codes := map[int]struct{}{408: {}, 429: {}, 500: {}}

	t.Run("no status code is always retryable", func(t *testing.T) {
		assert.True(t, IsRetryableStatus(nil, codes))
	})

	t.Run("configured code is retryable", func(t *testing.T) {
		status := 500
		assert.True(t, IsRetryableStatus(&status, codes))
	})

	t.Run("unconfigured code is not retryable", func(t *testing.T) {
		status := 400
		assert.False(t, IsRetryableStatus(&status, codes))
	})
}

func TestRetryPolicy_NextAttemptAt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 300 * time.Second, JitterRatio: 0.2}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("grows exponentially within jitter bounds", func(t *testing.T) {
		for attempt := 1; attempt <= 4; attempt++ {
			expected := 2 * time.Second * time.Duration(1<<uint(attempt-1))
			got := policy.NextAttemptAt(now, attempt).Sub(now)

			lower := time.Duration(float64(expected) * 0.8)
			upper := time.Duration(float64(expected) * 1.2)
			assert.GreaterOrEqual(t, got, lower)
			assert.LessOrEqual(t, got, upper)
		}
	})

	t.Run("clamps to MaxDelay", func(t *testing.T) {
		got := policy.NextAttemptAt(now, 10).Sub(now)
		upper := time.Duration(float64(policy.MaxDelay) * 1.2)
		assert.LessOrEqual(t, got, upper)
	})

	t.Run("never produces a negative delay", func(t *testing.T) {
		zero := RetryPolicy{BaseDelay: 0, MaxDelay: 0, JitterRatio: 0.2}
		got := zero.NextAttemptAt(now, 1)
		assert.True(t, !got.Before(now))
	})
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, 300*time.Second, p.MaxDelay)
	assert.Equal(t, 0.2, p.JitterRatio)
}
