package kvstore

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const memoryShardCount = 32

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero => no TTL
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// MemoryStore implements Store in process memory.
// This is suitable for single-instance deployments and tests.
// Keys are spread over shards by xxhash to keep lock contention low.
type MemoryStore struct {
	shards [memoryShardCount]*memoryShard
	now    func() time.Time

	stopSweep chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now, stopSweep: make(chan struct{})}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	return s
}

// WithClock replaces the time source used for expiry. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return s.shards[xxhash.Sum64String(key)%memoryShardCount]
}

// Get returns the live value for key. Expired entries are dropped lazily.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	sh := s.shard(key)
	now := s.now()

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if e.expired(now) {
		sh.mu.Lock()
		if cur, still := sh.entries[key]; still && cur.expired(now) {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// SetWithExpiry stores value under key, replacing any previous entry.
func (s *MemoryStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	sh.entries[key] = memoryEntry{value: value, expiresAt: expiryFor(s.now(), ttl)}
	sh.mu.Unlock()
	return nil
}

// KeysByPrefix returns live keys with the prefix in lexical order.
func (s *MemoryStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	var keys []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			if strings.HasPrefix(k, prefix) && !e.expired(now) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	slices.Sort(keys)
	return keys, nil
}

// MultiGet resolves each key; absent or expired keys yield "".
func (s *MemoryStore) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	values := make([]string, len(keys))
	for i, k := range keys {
		v, _, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.expired(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartSweeper drops expired entries in the background until Close is called.
// Without it expired entries are only dropped when read.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	go RunCleanupLoop(s.stopSweep, interval, func() {
		if n := s.Sweep(); n > 0 {
			slog.Debug("memory store sweep", "removed", n)
		}
	})
}

// Close stops the sweeper, if any. Stored entries stay readable.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopSweep)
	})
	return nil
}
