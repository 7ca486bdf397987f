// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
)

// DB is the durable store handle. Create one per process with New and
// share it; all methods are safe for concurrent use.
type DB struct {
	schema      Schema
	collections map[string]bool
	open        opener
	clock       func() time.Time
	onDegraded  func(error)

	startOnce sync.Once
	ready     chan struct{}
	openErr   error

	mu       sync.RWMutex
	be       backend
	closed   bool
	degraded bool
	reason   error
}

// Option configures a DB.
type Option func(*DB)

// WithBadger persists to a Badger directory.
func WithBadger(path string, syncWrites bool) Option {
	return func(db *DB) { db.open = openBadger(path, syncWrites) }
}

// WithSQLite persists to a SQLite file.
func WithSQLite(path string) Option {
	return func(db *DB) { db.open = openSQLite(path) }
}

// WithMemory keeps everything in memory. This is the default.
func WithMemory() Option {
	return func(db *DB) { db.open = openMemory }
}

// WithClock overrides time.Now for expiry decisions.
func WithClock(clock func() time.Time) Option {
	return func(db *DB) { db.clock = clock }
}

// WithDegradedHook is called once if the DB falls back to memory.
func WithDegradedHook(fn func(cause error)) Option {
	return func(db *DB) { db.onDegraded = fn }
}

func withOpener(o opener) Option {
	return func(db *DB) { db.open = o }
}

// New creates a DB for schema. Nothing is opened until Open or the first
// operation.
func New(schema Schema, opts ...Option) *DB {
	db := &DB{
		schema:      schema,
		collections: make(map[string]bool, len(schema.Collections)),
		open:        openMemory,
		clock:       time.Now,
		ready:       make(chan struct{}),
	}
	for _, c := range schema.Collections {
		db.collections[c.Name] = true
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Open initializes the store at the declared schema version. It may be
// called any number of times from any goroutine; every caller observes the
// same result. Backend failures do not fail Open: the DB degrades to
// memory instead. Only an invalid Schema or a closed DB is returned.
func (db *DB) Open(ctx context.Context) error {
	db.startOnce.Do(func() {
		initCtx := context.WithoutCancel(ctx)
		go func() {
			db.openErr = db.initialize(initCtx)
			close(db.ready)
		}()
	})

	select {
	case <-db.ready:
		return db.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (db *DB) initialize(ctx context.Context) error {
	if err := db.schema.validate(); err != nil {
		return err
	}

	be, err := db.open(ctx, &db.schema)
	if err != nil {
		db.fallBack(nil, err)
		return nil
	}

	if err := db.upgrade(ctx, be); err != nil {
		_ = be.close()
		db.fallBack(nil, err)
		return nil
	}

	db.mu.Lock()
	db.be = be
	db.mu.Unlock()
	return nil
}

// upgrade negotiates the stored schema version with the declared one.
func (db *DB) upgrade(ctx context.Context, be backend) error {
	stored, err := be.loadMeta(ctx)
	if err != nil {
		return err
	}
	declared := &meta{Version: db.schema.Version, Collections: db.schema.Collections}

	switch {
	case stored == nil:
		return be.saveMeta(ctx, declared)
	case stored.Version > db.schema.Version:
		return fmt.Errorf("%w: stored %d, declared %d", ErrVersionMismatch, stored.Version, db.schema.Version)
	case stored.Version == db.schema.Version:
		return nil
	}

	migrations := append([]Migration(nil), db.schema.Migrations...)
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	m := &Migrator{ctx: ctx, be: be, from: stored.Version}
	for _, mig := range migrations {
		if mig.Version <= stored.Version {
			continue
		}
		if err := mig.Apply(m); err != nil {
			return fmt.Errorf("migrate to version %d: %w", mig.Version, err)
		}
	}

	for _, c := range stored.Collections {
		if db.collections[c.Name] {
			continue
		}
		if err := be.drop(ctx, c.Name); err != nil {
			return fmt.Errorf("drop collection %s: %w", c.Name, err)
		}
	}

	logging.Info().
		Int("from_version", stored.Version).
		Int("to_version", db.schema.Version).
		Msg("Durable store schema upgraded")
	return be.saveMeta(ctx, declared)
}

// fallBack switches to the memory backend. from is the backend that failed,
// or nil while opening. Readable records of from are copied across.
func (db *DB) fallBack(from backend, cause error) {
	db.mu.Lock()
	if db.closed || db.be != from {
		db.mu.Unlock()
		return
	}

	mem := newMemoryBackend()
	copied := 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if from != nil {
		for _, c := range db.schema.Collections {
			recs, err := from.list(ctx, c.Name, "")
			if err != nil {
				continue
			}
			for _, r := range recs {
				_ = mem.put(ctx, r)
				copied++
			}
		}
		_ = from.close()
	}
	_ = mem.saveMeta(ctx, &meta{Version: db.schema.Version, Collections: db.schema.Collections})
	cancel()

	db.be = mem
	db.degraded = true
	db.reason = cause
	hook := db.onDegraded
	db.mu.Unlock()

	logging.Error().
		Err(cause).
		Int("records_copied", copied).
		Msg("Durable store unavailable, continuing in memory-only mode; changes will not survive a restart")
	metrics.SetStoreDegraded(true)
	if hook != nil {
		hook(cause)
	}
}

// acquire waits for readiness and returns the backend with mu read-locked.
func (db *DB) acquire(ctx context.Context) (backend, error) {
	if err := db.Open(ctx); err != nil {
		return nil, err
	}
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrClosed
	}
	return db.be, nil
}

func (db *DB) read(ctx context.Context, op string, fn func(backend) error) error {
	be, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = fn(be)
	db.mu.RUnlock()
	metrics.RecordStoreOperation(op, be.name(), time.Since(start), err)
	return err
}

// write runs fn and, if the persistent backend rejects it, degrades and
// runs fn again against memory.
func (db *DB) write(ctx context.Context, op string, fn func(backend) error) error {
	be, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = fn(be)
	db.mu.RUnlock()
	metrics.RecordStoreOperation(op, be.name(), time.Since(start), err)

	if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, isMemory := be.(*memoryBackend); isMemory {
		return err
	}

	db.fallBack(be, fmt.Errorf("%s failed on %s: %w", op, be.name(), err))

	be, err = db.acquire(ctx)
	if err != nil {
		return err
	}
	defer db.mu.RUnlock()
	return fn(be)
}

func (db *DB) checkTarget(collection, key string) error {
	if !db.collections[collection] {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

// Degraded reports whether the DB is running on the memory fallback.
func (db *DB) Degraded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.degraded
}

// DegradedReason returns the error that caused the fallback, or nil.
func (db *DB) DegradedReason() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.reason
}

// BackendName returns badger, sqlite or memory, or "" before Open.
func (db *DB) BackendName() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.be == nil {
		return ""
	}
	return db.be.name()
}

// Collections returns the declared collection names.
func (db *DB) Collections() []string {
	names := make([]string, 0, len(db.schema.Collections))
	for _, c := range db.schema.Collections {
		names = append(names, c.Name)
	}
	return names
}

// Now returns the DB clock's current time.
func (db *DB) Now() time.Time { return db.clock() }

// Close releases the backend. Later operations return ErrClosed.
func (db *DB) Close() error {
	db.startOnce.Do(func() {
		db.openErr = ErrClosed
		close(db.ready)
	})
	<-db.ready

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.be == nil {
		return nil
	}
	err := db.be.close()
	logging.Info().Str("backend", db.be.name()).Msg("Durable store closed")
	return err
}
