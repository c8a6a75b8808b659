// Package kvstore provides the key-value store abstraction behind repo selection.
// Supports in-memory, Redis, SQLite, PostgreSQL and MongoDB backends. Only Redis,
// PostgreSQL and MongoDB share state between instances.
package kvstore

import (
	"context"
	"fmt"
	"time"
)

// Type constants for store backends
const (
	TypeMemory     = "memory"
	TypeRedis      = "redis"
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

// DefaultCleanupInterval is how often memory and SQL backends drop expired entries.
const DefaultCleanupInterval = 1 * time.Hour

// Store is the narrow capability the selector needs from a key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key.
	// Returns "", false, nil when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithExpiry stores value under key. A ttl <= 0 stores without expiry.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// KeysByPrefix lists the names of all live keys starting with prefix.
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	// MultiGet resolves keys to values in one round trip where the backend allows.
	// The result is index-aligned with keys; absent keys yield "".
	MultiGet(ctx context.Context, keys []string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Config holds store configuration
type Config struct {
	// Type specifies the backend: "memory", "redis", "sqlite", "postgresql" or "mongodb"
	Type string

	Redis      RedisConfig
	SQLite     SQLiteConfig
	PostgreSQL PostgreSQLConfig
	MongoDB    MongoDBConfig

	// CleanupInterval controls the expired-entry sweep of memory and SQL backends (default: 1h)
	CleanupInterval time.Duration
}

// New creates a Store based on the configuration and verifies the connection.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory, "":
		s := NewMemoryStore()
		s.StartSweeper(cfg.CleanupInterval)
		return s, nil
	case TypeRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case TypeSQLite:
		return NewSQLiteStore(cfg.SQLite, cfg.CleanupInterval)
	case TypePostgreSQL:
		return NewPostgreSQLStore(ctx, cfg.PostgreSQL, cfg.CleanupInterval)
	case TypeMongoDB:
		return NewMongoDBStore(ctx, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown store type: %s (valid: memory, redis, sqlite, postgresql, mongodb)", cfg.Type)
	}
}

// IsShared reports whether a backend type shares state across instances.
func IsShared(storeType string) bool {
	switch storeType {
	case TypeRedis, TypePostgreSQL, TypeMongoDB:
		return true
	default:
		return false
	}
}

// expiryFor converts a ttl into an absolute deadline; the zero time means no expiry.
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// RunCleanupLoop runs a cleanup function periodically until the stop channel is closed.
// It runs cleanup immediately on start, then at the given interval.
func RunCleanupLoop(stop <-chan struct{}, interval time.Duration, cleanupFn func()) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cleanupFn()

	for {
		select {
		case <-ticker.C:
			cleanupFn()
		case <-stop:
			return
		}
	}
}
