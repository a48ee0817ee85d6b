package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", val)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	store.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	removed, err := store.DeleteIfPresent(ctx, "k")
	require.NoError(t, err)
	require.False(t, removed, "expired entry must not count as deleted")
}

func TestMemoryCompareAndDelete(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	removed, err := store.CompareAndDelete(ctx, "k", "other")
	require.NoError(t, err)
	require.False(t, removed)

	removed, err = store.CompareAndDelete(ctx, "k", "v")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = store.CompareAndDelete(ctx, "k", "v")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestMemoryDeleteIfPresentSingleWinner(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removed, err := store.DeleteIfPresent(ctx, "k")
			require.NoError(t, err)
			if removed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins, "exactly one racer may observe the delete")
}

func TestMemoryDeleteByPrefix(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.SetWithTTL(ctx, "auth:refresh:u1:a", "u1", time.Minute))
	require.NoError(t, store.SetWithTTL(ctx, "auth:refresh:u1:b", "u1", time.Minute))
	require.NoError(t, store.SetWithTTL(ctx, "auth:refresh:u2:c", "u2", time.Minute))

	removed, err := store.DeleteByPrefix(ctx, "auth:refresh:u1:")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = store.Get(ctx, "auth:refresh:u1:a")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "auth:refresh:u2:c")
	require.NoError(t, err)
}
