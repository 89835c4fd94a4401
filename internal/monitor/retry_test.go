package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("quota exceeded"), 429)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonTransientError(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		attempts++
		return Validationf("bad asin")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		ShouldRetry:    func(error) bool { return true },
	}

	retries := 0
	cfg.OnRetry = func(attempt int, err error) { retries = attempt }

	attempts := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		attempts++
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retries)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: time.Hour,
		ShouldRetry:    func(error) bool { return true },
	}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func(context.Context) error {
			attempts++
			return errors.New("slow failure")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestBackoffForIsCapped(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
	assert.Equal(t, time.Second, cfg.BackoffFor(0))
	assert.Equal(t, 2*time.Second, cfg.BackoffFor(1))
	assert.Equal(t, 4*time.Second, cfg.BackoffFor(2))
	assert.Equal(t, 4*time.Second, cfg.BackoffFor(6))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.True(t, IsTransient(Transient(errors.New("503"), 503)))

	wrapped := errors.Join(errors.New("outer"), Transient(errors.New("inner"), 0))
	assert.True(t, IsTransient(wrapped))
}
