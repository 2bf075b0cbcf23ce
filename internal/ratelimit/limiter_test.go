package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep-io/gatekeep/internal/cache"
)

func newTestLimiter(t *testing.T, attempts int, window time.Duration) *Limiter {
	t.Helper()
	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, "login", attempts, window)
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := newTestLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.NoError(t, limiter.Attempt(ctx, "10.0.0.1"), "attempt %d should be allowed", i+1)
	}
}

func TestLimiter_SixthAttemptBlocked(t *testing.T) {
	limiter := newTestLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
	}

	err := limiter.Attempt(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLimiter_OriginsAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
	require.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
	assert.ErrorIs(t, limiter.Attempt(ctx, "10.0.0.1"), ErrRateLimited)

	// A different origin is unaffected
	assert.NoError(t, limiter.Attempt(ctx, "10.0.0.2"))
}

func TestLimiter_ResetClearsCounter(t *testing.T) {
	limiter := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
	require.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
	require.ErrorIs(t, limiter.Attempt(ctx, "10.0.0.1"), ErrRateLimited)

	require.NoError(t, limiter.Reset(ctx, "10.0.0.1"))

	assert.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
}

func TestLimiter_WindowExpiryAllowsAgain(t *testing.T) {
	limiter := newTestLimiter(t, 1, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))

	time.Sleep(80 * time.Millisecond)

	assert.NoError(t, limiter.Attempt(ctx, "10.0.0.1"))
}

// failingStore always errors, simulating a cache outage.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("store down")
}
func (failingStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("store down")
}
func (failingStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Forget(ctx context.Context, key string) error {
	return errors.New("store down")
}

func TestLimiter_StoreOutageFailsOpen(t *testing.T) {
	limiter := New(failingStore{}, "login", 1, time.Minute)

	assert.NoError(t, limiter.Attempt(context.Background(), "10.0.0.1"))
}
