package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// dbCloser holds the DB handle for cleanup. Implements io.Closer.
type dbCloser struct {
	db *sql.DB
}

func (c *dbCloser) Close() error {
	return c.db.Close()
}

// Bootstrap initializes the on-disk database and returns a ready-to-use
// Store plus an io.Closer for the DB handle.
//
// Steps:
//  1. Create the state directory if missing.
//  2. Open/create cascadia.db with recommended pragmas.
//  3. Apply pending schema migrations.
//  4. Construct and return the Store.
func Bootstrap(stateDir string) (s *Store, closer io.Closer, err error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir %s: %w", stateDir, err)
	}

	dbPath := filepath.Join(stateDir, "cascadia.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open cascadia.db: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate cascadia.db: %w", err)
	}

	return New(db), &dbCloser{db: db}, nil
}
