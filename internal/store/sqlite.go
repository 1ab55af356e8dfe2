// Package store provides SQLite-based persistence for the OVC branch
// registry and merge-hint configuration.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Registry is the SQLite-backed branch registry.
type Registry struct {
	db *sql.DB
}

// Open creates a new registry connection.
func Open(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Initialize creates the registry schema.
func (r *Registry) Initialize() error {
	schema := `
	-- Branch records (soft-deleted rows keep merge provenance resolvable)
	CREATE TABLE IF NOT EXISTS branches (
		name TEXT PRIMARY KEY,
		parent TEXT,
		head_commit TEXT NOT NULL,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_by TEXT,
		locked BOOLEAN DEFAULT FALSE,
		lock_holder TEXT,
		deleted BOOLEAN DEFAULT FALSE
	);

	-- Per-field merge hints, one row per (node_kind, field)
	CREATE TABLE IF NOT EXISTS merge_hints (
		node_kind TEXT NOT NULL,
		field TEXT NOT NULL,
		strategy TEXT NOT NULL,
		identity_key TEXT,
		conflict_policy TEXT NOT NULL,
		preserve_order BOOLEAN DEFAULT FALSE,
		PRIMARY KEY (node_kind, field)
	);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize registry schema: %w", err)
	}
	return nil
}
