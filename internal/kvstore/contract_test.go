package kvstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source shared by store tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// runStoreContract exercises the behavior every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T, clock *fakeClock) Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		v, ok, err := s.Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "selected_for:a", "https://github.com/x/y", time.Hour))
		v, ok, err := s.Get(ctx, "selected_for:a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "https://github.com/x/y", v)
	})

	t.Run("OverwriteLastWriterWins", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "k", "first", time.Hour))
		require.NoError(t, s.SetWithExpiry(ctx, "k", "second", time.Hour))
		v, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "k", "v", time.Minute))
		clock.Advance(59 * time.Second)
		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "entry should live until its TTL")

		clock.Advance(time.Second)
		_, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok, "entry should be gone once its TTL has passed")
	})

	t.Run("ZeroTTLNeverExpires", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "k", "v", 0))
		clock.Advance(24 * 365 * time.Hour)
		v, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", v)
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "selected_for:b", "1", time.Hour))
		require.NoError(t, s.SetWithExpiry(ctx, "selected_for:a", "2", time.Hour))
		require.NoError(t, s.SetWithExpiry(ctx, "selected_for:gone", "3", time.Minute))
		require.NoError(t, s.SetWithExpiry(ctx, "all_repos_cache", "[]", time.Hour))
		require.NoError(t, s.SetWithExpiry(ctx, "SELECTED_FOR:upper", "4", time.Hour))
		clock.Advance(2 * time.Minute)

		keys, err := s.KeysByPrefix(ctx, "selected_for:")
		require.NoError(t, err)
		assert.Equal(t, []string{"selected_for:a", "selected_for:b"}, keys)
	})

	t.Run("KeysByPrefixTreatsWildcardsLiterally", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "a%_b:1", "x", time.Hour))
		require.NoError(t, s.SetWithExpiry(ctx, "aXYb:2", "y", time.Hour))

		keys, err := s.KeysByPrefix(ctx, "a%_b:")
		require.NoError(t, err)
		assert.Equal(t, []string{"a%_b:1"}, keys)
	})

	t.Run("MultiGetAlignsWithKeys", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		ctx := context.Background()

		require.NoError(t, s.SetWithExpiry(ctx, "a", "1", time.Hour))
		require.NoError(t, s.SetWithExpiry(ctx, "c", "3", time.Hour))

		values, err := s.MultiGet(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "", "3"}, values)
	})

	t.Run("MultiGetEmpty", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		values, err := s.MultiGet(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("MultiGetManyKeys", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		ctx := context.Background()

		const n = 1200
		keys := make([]string, n)
		for i := range keys {
			keys[i] = fmt.Sprintf("selected_for:%04d", i)
			require.NoError(t, s.SetWithExpiry(ctx, keys[i], fmt.Sprintf("v%d", i%7), time.Hour))
		}

		values, err := s.MultiGet(ctx, keys)
		require.NoError(t, err)
		require.Len(t, values, n)
		for i, v := range values {
			assert.Equal(t, fmt.Sprintf("v%d", i%7), v)
		}
	})
}
