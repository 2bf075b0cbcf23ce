package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	err := store.Put(ctx, "key", "value", time.Minute)
	require.NoError(t, err)

	val, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_GetExpired(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "key", "value", -time.Second))

	_, err := store.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_Increment(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, err := store.Increment(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Counter value is readable as a string
	val, err := store.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "5", val)
}

func TestMemoryStore_IncrementResetsAfterExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	count, err := store.Increment(ctx, "counter", -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Entry expired immediately, so the next increment starts over
	count, err = store.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_Forget(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "key", "value", time.Minute))
	require.NoError(t, store.Forget(ctx, "key"))

	_, err := store.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Forgetting a missing key is not an error
	assert.NoError(t, store.Forget(ctx, "missing"))
}

func TestMemoryStore_Expire(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "key", "value", -time.Second))
	require.NoError(t, store.Expire(ctx, "key", time.Minute))

	val, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
