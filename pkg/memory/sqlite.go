package memory

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scottdavis/metatool/pkg/errors"
)

// SQLiteStore implements Store using SQLite as the backend.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	initialized sync.Once
	initErr     error
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// If path is ":memory:", the database lives in memory and is dropped on Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	inMemory := path == ":memory:"
	connStr := path
	if !inMemory {
		connStr = path + "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}
	if inMemory {
		// each connection to :memory: opens its own database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := store.ensureInitialized(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	s.initialized.Do(func() {
		if s.path != ":memory:" {
			if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
				s.initErr = errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
				return
			}
		}

		query := `
        CREATE TABLE IF NOT EXISTS kv_store (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            expires_at INTEGER
        );

        CREATE INDEX IF NOT EXISTS idx_kv_store_expires_at
        ON kv_store(expires_at);
        `
		if _, err := s.db.Exec(query); err != nil {
			s.initErr = errors.WithFields(
				errors.Wrap(err, errors.Unknown, "failed to initialize database"),
				errors.Fields{"path": s.path},
			)
		}
	})
	return s.initErr
}

// Store upserts value at key.
func (s *SQLiteStore) Store(ctx context.Context, key string, value any, opts ...StoreOption) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	options := &StoreOptions{}
	for _, opt := range opts {
		opt(options)
	}

	data, err := encode(key, value)
	if err != nil {
		return err
	}

	var expiresAt sql.NullInt64
	if options.TTL > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(options.TTL).UnixNano(), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(data), expiresAt)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to store value in SQLite"),
			errors.Fields{"key": key},
		)
	}
	return nil
}

// Retrieve decodes the live value at key into dst.
func (s *SQLiteStore) Retrieve(ctx context.Context, key string, dst any) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().UnixNano()).Scan(&data)
	if err == sql.ErrNoRows {
		return notFound(key)
	}
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to retrieve value"),
			errors.Fields{"key": key},
		)
	}
	return decode(key, []byte(data), dst)
}

// List returns live keys in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_store WHERE expires_at IS NULL OR expires_at > ? ORDER BY rowid`,
		time.Now().UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list keys")
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "error iterating rows")
	}
	return keys, nil
}

// Clear removes every row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_store"); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to clear store")
	}
	return nil
}

// CleanExpired removes all expired entries from the store.
func (s *SQLiteStore) CleanExpired(ctx context.Context) (int64, error) {
	if err := s.ensureInitialized(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, errors.Unknown, "failed to clean expired entries")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.Unknown, "failed to get affected rows count")
	}
	return affected, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil && !strings.Contains(err.Error(), "already closed") {
		return errors.Wrap(err, errors.Unknown, "failed to close database connection")
	}
	return nil
}
