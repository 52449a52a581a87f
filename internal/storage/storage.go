// Package storage is the single file-backed relational store behind the
// bot: songs (the durable queue), balances (currency), aliases,
// commands, promotions, themes, bad_words, after_streams, scopes, and
// script_keys. It follows internal/database/database.go's conventions:
// WAL pragmas, a bounded connection pool tuned for SQLite, prepared
// statements, and idempotent migrations run at open time.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Storage wraps a *sql.DB with the bot's schema and prepared statements.
// Every exported method is its own critical section: it either commits a
// full database transaction or none at all, so a cancelled or failed
// call never leaves the schema half-migrated.
type Storage struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertSongStmt    *sql.Stmt
	getBalanceStmt    *sql.Stmt
	upsertBalanceStmt *sql.Stmt
}

// Open opens (or creates) a SQLite database at path and ensures all
// required tables and indices exist.
func Open(path string, logger *logrus.Logger) (*Storage, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	conn, err := sql.Open("sqlite3", path+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	// SQLite works better with a small, bounded pool than the default.
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			logger.WithError(err).WithField("pragma", p).Warn("storage: failed to set pragma")
		}
	}

	s := &Storage{conn: conn, logger: logger}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	if err := s.prepare(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: prepare statements: %w", err)
	}

	logger.WithField("path", path).Info("storage initialized")
	return s, nil
}

// DB exposes the underlying handle for packages (settings) that layer
// their own table on the same connection.
func (s *Storage) DB() *sql.DB { return s.conn }

// Close releases the underlying connection.
func (s *Storage) Close() error { return s.conn.Close() }

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS songs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id     TEXT NOT NULL,
			title        TEXT NOT NULL,
			artist       TEXT NOT NULL,
			album        TEXT NOT NULL DEFAULT '',
			duration     INTEGER NOT NULL DEFAULT 0,
			user         TEXT,
			added_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			promoted_at  DATETIME,
			promoted_by  TEXT,
			played       BOOLEAN NOT NULL DEFAULT FALSE,
			played_at    DATETIME,
			deleted      BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_songs_order ON songs(deleted, played, promoted_at, added_at);`,
		`CREATE INDEX IF NOT EXISTS idx_songs_track ON songs(track_id, played, deleted);`,

		`CREATE TABLE IF NOT EXISTS balances (
			channel    TEXT NOT NULL,
			user       TEXT NOT NULL,
			amount     INTEGER NOT NULL DEFAULT 0,
			watch_time INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (channel, user)
		);`,

		`CREATE TABLE IF NOT EXISTS aliases (
			channel  TEXT NOT NULL,
			name     TEXT NOT NULL,
			pattern  TEXT NOT NULL,
			template TEXT NOT NULL,
			disabled BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (channel, name)
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			channel   TEXT NOT NULL,
			name      TEXT NOT NULL,
			pattern   TEXT NOT NULL,
			template  TEXT NOT NULL,
			disabled  BOOLEAN NOT NULL DEFAULT FALSE,
			group_name TEXT,
			PRIMARY KEY (channel, name)
		);`,
		`CREATE TABLE IF NOT EXISTS promotions (
			channel   TEXT NOT NULL,
			name      TEXT NOT NULL,
			template  TEXT NOT NULL,
			frequency INTEGER NOT NULL,
			disabled  BOOLEAN NOT NULL DEFAULT FALSE,
			promoted_at DATETIME,
			PRIMARY KEY (channel, name)
		);`,
		`CREATE TABLE IF NOT EXISTS themes (
			channel   TEXT NOT NULL,
			name      TEXT NOT NULL,
			track_id  TEXT NOT NULL,
			start_secs INTEGER NOT NULL DEFAULT 0,
			end_secs   INTEGER,
			disabled  BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (channel, name)
		);`,
		`CREATE TABLE IF NOT EXISTS bad_words (
			word TEXT PRIMARY KEY,
			why  TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS after_streams (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			channel   TEXT NOT NULL,
			user      TEXT NOT NULL,
			message   TEXT NOT NULL,
			added_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS scopes (
			scope TEXT NOT NULL,
			role  TEXT NOT NULL,
			PRIMARY KEY (scope, role)
		);`,
		`CREATE TABLE IF NOT EXISTS script_keys (
			channel TEXT NOT NULL,
			key     TEXT NOT NULL,
			value   TEXT NOT NULL,
			PRIMARY KEY (channel, key)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Storage) prepare() error {
	var err error
	if s.insertSongStmt, err = s.conn.Prepare(
		`INSERT INTO songs (track_id, title, artist, album, duration, user) VALUES (?, ?, ?, ?, ?, ?)`,
	); err != nil {
		return err
	}
	if s.getBalanceStmt, err = s.conn.Prepare(
		`SELECT amount, watch_time FROM balances WHERE channel = ? AND user = ?`,
	); err != nil {
		return err
	}
	if s.upsertBalanceStmt, err = s.conn.Prepare(
		`INSERT INTO balances (channel, user, amount, watch_time) VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel, user) DO UPDATE SET
			amount = amount + excluded.amount,
			watch_time = watch_time + excluded.watch_time`,
	); err != nil {
		return err
	}
	return nil
}

// withTx runs f inside a database transaction, committing on success and
// rolling back on any error (including a panic, which is re-raised after
// rollback).
func (s *Storage) withTx(ctx context.Context, f func(*sql.Tx) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
