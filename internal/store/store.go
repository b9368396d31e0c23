// Package store implements the persistence layer: SQLite access with
// migration-managed schema and the inventory / catalog / scenario repos.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store bundles the repos sharing one cascadia.db connection.
type Store struct {
	db *sql.DB

	Inventory *InventoryRepo
	Catalog   *CatalogRepo
	Scenario  *ScenarioRepo
}

// New wires the repos over an already-opened, migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		db:        db,
		Inventory: newInventoryRepo(db),
		Catalog:   newCatalogRepo(db),
		Scenario:  newScenarioRepo(db),
	}
}

// OpenDB opens (or creates) a SQLite database at path with recommended pragmas:
// WAL journal mode, synchronous=NORMAL, foreign_keys=ON, busy_timeout=5000.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	return db, nil
}
