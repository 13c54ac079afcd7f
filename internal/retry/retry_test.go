package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return apperrors.NewStorageError("copy", errors.New("connection reset"))
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoff_GivesUp(t *testing.T) {
	storageErr := apperrors.NewStorageError("ping", errors.New("refused"))
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		return storageErr
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.LastError, storageErr)
}

func TestWithExponentialBackoff_StopsOnFatalError(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewConfigError("bad bucket name", nil)
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoff_CustomPredicate(t *testing.T) {
	cfg := fastConfig(4)
	cfg.Retryable = func(error) bool { return true }

	calls := 0
	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("plain error")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 4, calls)
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	calls := 0
	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return apperrors.NewStorageError("upload", errors.New("timeout"))
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateDelay(cfg, 4))
}

func TestWithRetry(t *testing.T) {
	err := WithRetry(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		return apperrors.NewStorageError("send", errors.New("broken pipe"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.True(t, apperrors.IsRetryable(err))

	assert.NoError(t, WithRetry(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		return nil
	}))
}

func TestNewRetryConfig(t *testing.T) {
	cfg := NewRetryConfig(3, 250*time.Millisecond)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
