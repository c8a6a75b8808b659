package selector

import (
	"context"
	"errors"
	"sync"
	"time"

	"reboosty/internal/kvstore"
)

var errStoreDown = errors.New("connection refused")

// recordingStore wraps a real store, counts calls per operation and can fail
// any operation on demand.
type recordingStore struct {
	kvstore.Store

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newRecordingStore(inner kvstore.Store) *recordingStore {
	return &recordingStore{
		Store: inner,
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (s *recordingStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.fail[op]
}

func (s *recordingStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *recordingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *recordingStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *recordingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.record("get"); err != nil {
		return "", false, err
	}
	return s.Store.Get(ctx, key)
}

func (s *recordingStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.record("set"); err != nil {
		return err
	}
	return s.Store.SetWithExpiry(ctx, key, value, ttl)
}

func (s *recordingStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.record("keys"); err != nil {
		return nil, err
	}
	return s.Store.KeysByPrefix(ctx, prefix)
}

func (s *recordingStore) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	if err := s.record("mget"); err != nil {
		return nil, err
	}
	return s.Store.MultiGet(ctx, keys)
}

// testClock is a manually advanced clock for the memory store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedRand always returns the same index, clamped to n.
type fixedRand int

func (f fixedRand) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

type recordedEvent struct {
	op  Operation
	res Resolution
}

type recordingHooks struct {
	mu       sync.Mutex
	events   []recordedEvent
	rebuilds []int
}

func (h *recordingHooks) Resolved(op Operation, res Resolution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{op: op, res: res})
}

func (h *recordingHooks) RegistryRebuilt(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rebuilds = append(h.rebuilds, size)
}
