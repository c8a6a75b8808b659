//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reboosty/internal/kvstore"
)

// backend describes one shared store backend under test.
type backend struct {
	name  string
	reset func(t *testing.T)
	cfg   func() kvstore.Config
}

func backends() []backend {
	return []backend{
		{
			name: kvstore.TypeRedis,
			reset: func(t *testing.T) {
				require.NoError(t, redisClient.FlushDB(testCtx).Err())
			},
			cfg: func() kvstore.Config {
				return kvstore.Config{Type: kvstore.TypeRedis, Redis: kvstore.RedisConfig{URL: redisURL}}
			},
		},
		{
			name: kvstore.TypePostgreSQL,
			reset: func(t *testing.T) {
				_, err := pgPool.Exec(testCtx, "DROP TABLE IF EXISTS kv_entries")
				require.NoError(t, err)
			},
			cfg: func() kvstore.Config {
				return kvstore.Config{
					Type:            kvstore.TypePostgreSQL,
					PostgreSQL:      kvstore.PostgreSQLConfig{URL: pgURL, MaxConns: 4},
					CleanupInterval: time.Hour,
				}
			},
		},
		{
			name: kvstore.TypeMongoDB,
			reset: func(t *testing.T) {
				require.NoError(t, mongoDatabase.Collection("kv_entries").Drop(testCtx))
			},
			cfg: func() kvstore.Config {
				return kvstore.Config{
					Type:    kvstore.TypeMongoDB,
					MongoDB: kvstore.MongoDBConfig{URL: mongoURL, Database: mongoDatabaseName},
				}
			},
		},
	}
}

// openStore resets the backend and returns a fresh store closed at test end.
func openStore(t *testing.T, b backend) kvstore.Store {
	t.Helper()
	b.reset(t)

	store, err := kvstore.New(testCtx, b.cfg())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// forEachBackend runs fn as a subtest against every shared backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	t.Helper()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b)
		})
	}
}
