// Package sqlitestore provides a SQLite-backed storage.Store for
// persistent channels that outgrow the single-document file store:
// per-key writes, no whole-file rewrites, safe concurrent access from
// multiple connections.
package sqlitestore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pressly/goose/v3"

	"github.com/dshills/statebus/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists channel values in a SQLite database, one row per
// storage key. It implements storage.Store.
type Store struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the database at path and runs pending
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := s.db.QueryRow("SELECT value FROM channel_values WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %q: %w", key, err)
	}
	return data, true, nil
}

// Set stores data under key, replacing any existing row.
func (s *Store) Set(key string, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO channel_values (id, key, value, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		uuid.New().String(), key, data,
	)
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

// Delete removes the row for key. Deleting an absent key is not an
// error.
func (s *Store) Delete(key string) error {
	if err := s.check(); err != nil {
		return err
	}

	if _, err := s.db.Exec("DELETE FROM channel_values WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys.
func (s *Store) Keys() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT key FROM channel_values ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

// Close closes the database connection. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}
