// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import "context"

// backend is a persistence engine under DB. Implementations are safe for
// concurrent use and treat a missing key as (nil, nil) from get.
type backend interface {
	name() string
	loadMeta(ctx context.Context) (*meta, error)
	saveMeta(ctx context.Context, m *meta) error
	get(ctx context.Context, collection, key string) (*Record, error)
	put(ctx context.Context, r *Record) error
	delete(ctx context.Context, collection, key string) error
	// list returns every record of collection in key order, restricted to
	// owner when owner is non-empty. Expired records are included.
	list(ctx context.Context, collection, owner string) ([]*Record, error)
	drop(ctx context.Context, collection string) error
	close() error
}

// opener creates a backend for a schema.
type opener func(ctx context.Context, schema *Schema) (backend, error)

func indexedCollections(schema *Schema) map[string]bool {
	idx := make(map[string]bool, len(schema.Collections))
	for _, c := range schema.Collections {
		if c.OwnerIndex {
			idx[c.Name] = true
		}
	}
	return idx
}

// Migrator gives a Migration access to the backend being upgraded.
type Migrator struct {
	ctx  context.Context
	be   backend
	from int
}

// From is the version the store is being upgraded from.
func (m *Migrator) From() int { return m.from }

// Records lists every record of collection, expired ones included.
func (m *Migrator) Records(collection string) ([]*Record, error) {
	return m.be.list(m.ctx, collection, "")
}

// Put writes r as is.
func (m *Migrator) Put(r *Record) error { return m.be.put(m.ctx, r) }

// Delete removes one record.
func (m *Migrator) Delete(collection, key string) error {
	return m.be.delete(m.ctx, collection, key)
}

// Drop removes every record of collection.
func (m *Migrator) Drop(collection string) error { return m.be.drop(m.ctx, collection) }

// Rename moves every record of from into to.
func (m *Migrator) Rename(from, to string) error {
	recs, err := m.be.list(m.ctx, from, "")
	if err != nil {
		return err
	}
	for _, r := range recs {
		r.Collection = to
		if err := m.be.put(m.ctx, r); err != nil {
			return err
		}
	}
	return m.be.drop(m.ctx, from)
}
