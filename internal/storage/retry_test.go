package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
)

func TestWithRetryRecoversFromSerializationFailure(t *testing.T) {
	attempts := 0
	err := storage.WithRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryUnwrapsDeadlockError(t *testing.T) {
	attempts := 0
	err := storage.WithRetry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		if attempts == 1 {
			// The storage layer wraps driver errors; retry must see through.
			return fmt.Errorf("storage: execute order: %w", &pgconn.PgError{Code: "40P01"})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryStopsOnNonRetriableError(t *testing.T) {
	want := &storage.InsufficientStockError{MedicineName: "Aspirin 100mg", Available: 1, Requested: 5}
	attempts := 0
	err := storage.WithRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return want
	})
	assert.Equal(t, 1, attempts, "business outcomes must not be retried")
	got, ok := storage.AsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := storage.WithRetry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.Equal(t, 3, attempts)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "40001", pgErr.Code)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := storage.WithRetry(ctx, 5, 10*time.Millisecond, func() error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, context.Canceled))
}
