// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/studiosync/internal/logging"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER,
	ttl_ms     INTEGER NOT NULL DEFAULT 0,
	owner_id   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (collection, key)
);
CREATE INDEX IF NOT EXISTS records_owner ON records (collection, owner_id);
CREATE TABLE IF NOT EXISTS store_meta (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

type sqliteBackend struct {
	db *sql.DB
}

// openSQLite returns an opener for a SQLite database file.
func openSQLite(path string) opener {
	return func(ctx context.Context, _ *Schema) (backend, error) {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sqlite db: %w", err)
		}
		if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create sqlite tables: %w", err)
		}
		logging.Info().Str("path", path).Msg("Durable store opened")
		return &sqliteBackend{db: db}, nil
	}
}

func (s *sqliteBackend) name() string { return "sqlite" }

func (s *sqliteBackend) loadMeta(ctx context.Context) (*meta, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE name = 'schema'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema metadata: %w", err)
	}
	md := &meta{}
	if err := json.Unmarshal(raw, md); err != nil {
		return nil, fmt.Errorf("decode schema metadata: %w", err)
	}
	return md, nil
}

func (s *sqliteBackend) saveMeta(ctx context.Context, md *meta) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal schema metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO store_meta (name, value) VALUES ('schema', ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, raw)
	return err
}

const recordColumns = `collection, key, data, created_at, expires_at, ttl_ms, owner_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r         Record
		data      []byte
		createdAt int64
		expiresAt sql.NullInt64
		ttlMillis int64
	)
	if err := row.Scan(&r.Collection, &r.ID, &data, &createdAt, &expiresAt, &ttlMillis, &r.OwnerID); err != nil {
		return nil, err
	}
	r.Data = data
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64).UTC()
		r.ExpiresAt = &t
	}
	r.TTL = time.Duration(ttlMillis) * time.Millisecond
	return &r, nil
}

func (s *sqliteBackend) get(ctx context.Context, collection, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? AND key = ?`, collection, key)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *sqliteBackend) put(ctx context.Context, r *Record) error {
	var expiresAt sql.NullInt64
	if r.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: r.ExpiresAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET
		   data = excluded.data,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at,
		   ttl_ms = excluded.ttl_ms,
		   owner_id = excluded.owner_id`,
		r.Collection, r.ID, []byte(r.Data), r.CreatedAt.UnixMilli(), expiresAt, r.TTL.Milliseconds(), r.OwnerID)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", r.Collection, r.ID, err)
	}
	return nil
}

func (s *sqliteBackend) delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, collection, key)
	return err
}

func (s *sqliteBackend) list(ctx context.Context, collection, owner string) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE collection = ?`
	args := []any{collection}
	if owner != "" {
		query += ` AND owner_id = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteBackend) drop(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	return err
}

func (s *sqliteBackend) close() error {
	return s.db.Close()
}
