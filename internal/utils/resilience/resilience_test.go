package resilience_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/utils/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := resilience.Retry(context.Background(), resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	lastErr := errors.New("still broken")
	attempts := 0
	err := resilience.Retry(context.Background(), resilience.RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	}, func(ctx context.Context) error {
		attempts++
		return lastErr
	})

	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 2, attempts)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
	}, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("failing")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	boom := errors.New("downstream down")
	fail := func(ctx context.Context) error { return boom }

	assert.ErrorIs(t, breaker.Execute(context.Background(), fail), boom)
	assert.ErrorIs(t, breaker.Execute(context.Background(), fail), boom)

	// Threshold reached: next call is rejected without running the op.
	called := false
	err := breaker.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, resilience.StateOpen, breaker.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	boom := errors.New("flaky")

	require.Error(t, breaker.Execute(context.Background(), func(ctx context.Context) error { return boom }))
	require.NoError(t, breaker.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	require.Error(t, breaker.Execute(context.Background(), func(ctx context.Context) error { return boom }))

	// Failures were not consecutive, so the circuit stays closed.
	assert.Equal(t, resilience.StateClosed, breaker.State())
}

func TestCircuitBreaker_HalfOpenProbeClosesCircuit(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     5 * time.Millisecond,
		HalfOpenMax:      1,
	})

	require.Error(t, breaker.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("down")
	}))
	require.Equal(t, resilience.StateOpen, breaker.State())

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, resilience.StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, resilience.StateClosed, breaker.State())
}

type mapCache struct {
	mu      sync.Mutex
	store   map[string][]byte
	getErr  error
	setErr  error
	setHits int
}

func newMapCache() *mapCache {
	return &mapCache{store: map[string][]byte{}}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.store[key], nil
}

func (c *mapCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.store[key] = data
	c.setHits++
	return nil
}

func TestCacheAside_LoadsAndFillsOnMiss(t *testing.T) {
	cache := newMapCache()
	loads := 0
	load := func(ctx context.Context) ([]byte, error) {
		loads++
		return []byte(`{"balance":"100.50"}`), nil
	}

	cfg := resilience.CacheAsideConfig{TTL: time.Minute}
	first, err := resilience.CacheAside(context.Background(), cfg, cache, "dashboard:v1:u1:main", load)
	require.NoError(t, err)
	second, err := resilience.CacheAside(context.Background(), cfg, cache, "dashboard:v1:u1:main", load)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, cache.setHits)
}

func TestCacheAside_DegradesWhenCacheBroken(t *testing.T) {
	cache := newMapCache()
	cache.getErr = errors.New("redis gone")
	cache.setErr = errors.New("redis gone")

	data, err := resilience.CacheAside(context.Background(), resilience.CacheAsideConfig{TTL: time.Minute}, cache, "k", func(ctx context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), data)
}
