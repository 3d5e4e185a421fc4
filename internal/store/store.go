package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// connParams are handed to the sqlite3 driver on every connection it opens,
// so a reconnect never comes back without them.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// Store is the trace journal. Runs and their events live in one SQLite
// database; see schema.sql.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating the file and its tables when
// missing. ":memory:" gives a private in-memory journal. Opening an
// existing journal leaves its contents alone.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + connParams.Encode()
}
