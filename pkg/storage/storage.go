// Package storage owns the SQLite store for race data: raw feed
// records, the schema migration engine that normalizes them, and the
// compound search queries over the normalized tables.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the store and ensures the raw-record schema
// exists. It does NOT run the migration engine; callers that need the
// normalized tables run Migrate once after opening.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	d := &DB{sql: db}
	if err := d.ensureRawSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// ensureRawSchema creates the raw accumulation tables. The raw results
// table is only created while the store is still pre-migration: once
// the normalized races table exists, recreating an empty results table
// would just feed a pointless second migration pass.
func (d *DB) ensureRawSchema(ctx context.Context) error {
	_, err := d.sql.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS previews (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  date        TEXT NOT NULL,
  venue_code  TEXT NOT NULL,
  race_number INTEGER NOT NULL,
  data_json   TEXT NOT NULL,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  UNIQUE(date, venue_code, race_number)
);
CREATE INDEX IF NOT EXISTS idx_previews_date ON previews(date);
CREATE TABLE IF NOT EXISTS programs (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  date        TEXT NOT NULL,
  venue_code  TEXT NOT NULL,
  race_number INTEGER NOT NULL,
  data_json   TEXT NOT NULL,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  UNIQUE(date, venue_code, race_number)
);
CREATE INDEX IF NOT EXISTS idx_programs_date ON programs(date);
	`)
	if err != nil {
		return fmt.Errorf("create raw schema: %w", err)
	}

	migrated, err := d.tableExists(ctx, "races")
	if err != nil {
		return err
	}
	if migrated {
		return nil
	}

	_, err = d.sql.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS results (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  date        TEXT NOT NULL,
  venue_code  TEXT NOT NULL,
  race_number INTEGER NOT NULL,
  data_json   TEXT NOT NULL,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  UNIQUE(date, venue_code, race_number)
);
CREATE INDEX IF NOT EXISTS idx_results_date ON results(date);
	`)
	if err != nil {
		return fmt.Errorf("create raw results table: %w", err)
	}
	return nil
}

// Reset drops every table and recreates the raw schema. This is the
// only path that deletes normalized races.
func (d *DB) Reset(ctx context.Context) error {
	_, err := d.sql.ExecContext(ctx, `
DROP TABLE IF EXISTS race_participants;
DROP TABLE IF EXISTS races;
DROP TABLE IF EXISTS results;
DROP TABLE IF EXISTS programs;
DROP TABLE IF EXISTS previews;
	`)
	if err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	return d.ensureRawSchema(ctx)
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func (d *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (d *DB) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

func (d *DB) columnExists(ctx context.Context, table, column string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name=?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
