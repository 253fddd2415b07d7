// Package cache stores compiled Lox bytecode in SQLite, keyed by the
// SHA-256 of the source text. The payload is the "LXBC" container produced
// by the bytecode package, so a cache hit skips compilation entirely.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound indicates no cached chunk exists for the requested source.
var ErrNotFound = errors.New("cached chunk not found")

// Store is a SQLite-backed chunk cache. A Store is safe for use from a
// single process; the busy timeout covers concurrent lox invocations
// sharing one cache file.
type Store struct {
	db      *sql.DB
	path    string
	session string // identifies which run wrote each row
	mu      sync.Mutex
}

// Open creates or opens a cache database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		session TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chunks table: %w", err)
	}

	return &Store{
		db:      db,
		path:    path,
		session: uuid.NewString(),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Session returns the identifier written with rows stored by this Store.
func (s *Store) Session() string { return s.session }

// Key returns the cache key for a source text.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached container for source, or ErrNotFound.
func (s *Store) Get(source string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow("SELECT data FROM chunks WHERE hash = ?", Key(source)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached chunk: %w", err)
	}
	return data, nil
}

// Put stores the container for source, replacing any previous entry.
func (s *Store) Put(source string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO chunks (hash, data, session, created_at) VALUES (?, ?, ?, ?)",
		Key(source), data, s.session, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing cached chunk: %w", err)
	}
	return nil
}

// Prune deletes entries older than the given age. Returns the number of
// rows removed.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := s.db.Exec("DELETE FROM chunks WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of cached chunks.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cached chunks: %w", err)
	}
	return n, nil
}
