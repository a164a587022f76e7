// Package store implements the persistence contract: a single embedded
// SQLite database holding sessions, messages, memories, workspaces, jobs,
// and agents, reached through forward-only migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/monad-ai/monad-core/pkg/models"
)

// Store is the single persistence handle for the core. All components that
// need durable state go through it rather than opening their own database
// connection.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	jobEventsMu sync.Mutex
	jobEvents   []chan models.JobEvent
}

// Open opens (creating if necessary) the SQLite database at path and applies
// any pending migrations. Pass ":memory:" for an ephemeral store, as the
// tests do.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer: sqlite serializes writers anyway

	s := &Store{db: db, log: log}

	migrator, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	applied, err := migrator.Up(ctx, 0)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "count", len(applied), "ids", applied)
	}
	if err := s.syncTableDirectory(ctx); err != nil {
		log.Warn("sync table directory failed", "error", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthStatus is the result of a store health probe.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// Health reports whether the store can currently serve queries.
func (s *Store) Health(ctx context.Context) (HealthStatus, error) {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return HealthDown, err
	}
	if one != 1 {
		return HealthDegraded, nil
	}
	return HealthOK, nil
}

// syncTableDirectory refreshes the table_directory bookkeeping table used by
// the raw-SQL tool to describe what it is allowed to query, excluding the
// store's own internal tables.
func (s *Store) syncTableDirectory(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	internal := map[string]bool{"schema_migrations": true, "table_directory": true}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM table_directory`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO table_directory (name, is_internal) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, name, boolToInt(internal[name])); err != nil {
			return err
		}
	}
	return tx.Commit()
}
