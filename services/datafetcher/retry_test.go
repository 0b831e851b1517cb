package datafetcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare_backend/services/vendor"
)

func TestWithRetryTransientBacksOff(t *testing.T) {
	var slept []time.Duration
	sleep := func(d time.Duration) { slept = append(slept, d) }

	calls := 0
	out, err := withRetry(RetryPolicy{Attempts: 3, BackoffBase: time.Second}, sleep, "op", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &vendor.TransientError{Op: "op", Err: errors.New("flaky")}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 3, calls)
	// Exponential: 1s after first failure, 2s after second
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestWithRetryPermanentFailsFast(t *testing.T) {
	calls := 0
	_, err := withRetry(RetryPolicy{Attempts: 3, BackoffBase: time.Second}, func(time.Duration) {}, "op", func() (int, error) {
		calls++
		return 0, &vendor.PermanentError{Op: "op", Err: errors.New("bad request")}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryAuthFailsFast(t *testing.T) {
	calls := 0
	_, err := withRetry(RetryPolicy{Attempts: 3, BackoffBase: time.Second}, func(time.Duration) {}, "op", func() (int, error) {
		calls++
		return 0, &vendor.AuthError{Msg: "expired"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := withRetry(RetryPolicy{Attempts: 3, BackoffBase: time.Millisecond}, func(time.Duration) {}, "op", func() (int, error) {
		calls++
		return 0, &vendor.TransientError{Op: "op", Err: errors.New("still flaky")}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, vendor.IsTransient(err))
}
