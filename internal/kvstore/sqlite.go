package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite has a default limit of 999 bindable parameters per query.
const maxSQLiteParams = 999

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	// Path is the database file path (default: data/reboosty.db)
	Path string
}

// SQLiteStore implements Store on an embedded SQLite database.
// Expiry is stored as unix milliseconds; 0 means the entry never expires.
type SQLiteStore struct {
	db          *sql.DB
	now         func() time.Time
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewSQLiteStore opens (or creates) the database file, creates the kv table and
// starts a background sweep of expired rows.
func NewSQLiteStore(cfg SQLiteConfig, cleanupInterval time.Duration) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = "data/reboosty.db"
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL mode allows concurrent reads while writing
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	store, err := newSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	go RunCleanupLoop(store.stopCleanup, cleanupInterval, store.cleanup)

	return store, nil
}

func newSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_entries table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_kv_entries_expires_at ON kv_entries(expires_at)"); err != nil {
		slog.Warn("failed to create index", "error", err)
	}

	return &SQLiteStore{
		db:          db,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}, nil
}

func (s *SQLiteStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

// Get returns the live value for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.nowMillis(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q from sqlite: %w", key, err)
	}
	return value, true, nil
}

// SetWithExpiry upserts key.
func (s *SQLiteStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if exp := expiryFor(s.now(), ttl); !exp.IsZero() {
		expiresAt = exp.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set %q in sqlite: %w", key, err)
	}
	return nil
}

// KeysByPrefix lists live keys with the prefix.
func (s *SQLiteStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_entries
		WHERE substr(key, 1, length(?)) = ? AND (expires_at = 0 OR expires_at > ?)
		ORDER BY key
	`, prefix, prefix, s.nowMillis())
	if err != nil {
		return nil, fmt.Errorf("failed to list sqlite keys with prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan sqlite key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sqlite keys: %w", err)
	}
	return keys, nil
}

// MultiGet resolves keys with chunked IN queries to stay within SQLite's parameter limit.
func (s *SQLiteStore) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	found := make(map[string]string, len(keys))
	now := s.nowMillis()

	chunkSize := maxSQLiteParams - 1 // one slot for the expiry bound
	for start := 0; start < len(keys); start += chunkSize {
		end := min(start+chunkSize, len(keys))
		chunk := keys[start:end]

		args := make([]interface{}, 0, len(chunk)+1)
		for _, k := range chunk {
			args = append(args, k)
		}
		args = append(args, now)

		query := fmt.Sprintf(
			`SELECT key, value FROM kv_entries WHERE key IN (%s) AND (expires_at = 0 OR expires_at > ?)`,
			strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ","),
		)
		if err := collectPairs(ctx, s.db, query, args, found); err != nil {
			return nil, fmt.Errorf("failed to mget %d keys from sqlite: %w", len(chunk), err)
		}
	}

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = found[k]
	}
	return values, nil
}

func collectPairs(ctx context.Context, db *sql.DB, query string, args []interface{}, into map[string]string) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		into[k] = v
	}
	return rows.Err()
}

func (s *SQLiteStore) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_entries WHERE expires_at != 0 AND expires_at <= ?", s.nowMillis())
	if err != nil {
		slog.Error("failed to cleanup expired kv entries", "error", err)
		return
	}
	if n, _ := result.RowsAffected(); n > 0 {
		slog.Info("cleaned up expired kv entries", "deleted", n)
	}
}

// Close stops the cleanup goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		err = s.db.Close()
	})
	return err
}
