// Package store implements the persistence half of component E: a
// sqlite-backed append-only message log and a whole-document plan-state
// replacement, grounded on original_source/src/core/group_manager.py's
// per-group JSON files and adapted to the teacher's SQL session store
// (v2/session/store.go).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createMessagesSchemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id     VARCHAR(255) NOT NULL,
    id           VARCHAR(255) NOT NULL,
    role         VARCHAR(50) NOT NULL,
    content      TEXT NOT NULL,
    agent_name   VARCHAR(255),
    is_plan      BOOLEAN NOT NULL DEFAULT 0,
    plan_data    TEXT,
    tool_call_id VARCHAR(255),
    metadata     TEXT,
    created_at   TIMESTAMP NOT NULL
)`

const createMessagesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, seq)`

const createPlanStateSchemaSQL = `
CREATE TABLE IF NOT EXISTS plan_state (
    group_id           VARCHAR(255) PRIMARY KEY,
    plan_initialized   BOOLEAN NOT NULL DEFAULT 0,
    goal               TEXT NOT NULL DEFAULT '',
    deliverables       TEXT NOT NULL DEFAULT '',
    process_json       TEXT NOT NULL DEFAULT '[]',
    current_step_index INTEGER NOT NULL DEFAULT 0,
    updated_at         TIMESTAMP NOT NULL
)`

// Store is the sqlite-backed handle for one process's persisted groups.
// A single *sql.DB is shared by every group; sqlite serializes writers
// internally so no additional locking is needed here (v2/session/store.go
// relies on the same database-level-locking argument).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers beyond this

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		createMessagesSchemaSQL,
		createMessagesIndexSQL,
		createPlanStateSchemaSQL,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
