package operational

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store provides the shared local database (transcripts and friends)
type Store struct {
	db *sql.DB
}

// Open creates or opens the local database. ":memory:" gives a throwaway
// database pinned to a single connection.
func Open(path string) (*Store, error) {
	if path == ":memory:" {
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		return &Store{db: db}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	return s, nil
}

// DB returns the underlying database connection for sub-stores
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
