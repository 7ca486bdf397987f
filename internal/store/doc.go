// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package store provides the durable store: a versioned, multi-collection
// key/value store with per-record expiry and owner tagging.
//
// A DB is created with a Schema and a backend option and shared by every
// consumer in the process:
//
//	db := store.New(store.Schema{
//	    Version: 2,
//	    Collections: []store.Collection{
//	        {Name: "clientes", OwnerIndex: true},
//	        {Name: "offline_operations"},
//	    },
//	}, store.WithBadger("/data/studiosync", false))
//	defer db.Close()
//
//	err := db.SetItem(ctx, "clientes", "42", cliente, store.WithTTL(time.Hour), store.WithOwner(userID))
//	rec, err := db.GetItem(ctx, "clientes", "42")
//
// # Backends
//
//   - Badger (default): records under r\x00<collection>\x00<key>, an owner
//     index under o\x00<collection>\x00<owner>\x00<key>, schema metadata
//     under m\x00schema.
//   - SQLite (modernc.org/sqlite): one records table keyed by
//     (collection, key) with an (collection, owner_id) index.
//   - Memory: maps guarded by a mutex. Also used as the fallback.
//
// # Readiness
//
// Open is idempotent and concurrency safe. Every operation implicitly
// waits for the shared open result, so callers never need to sequence
// Open themselves.
//
// # Expiry
//
// A record whose ExpiresAt is in the past is logically absent. Reads purge
// it as a side effect; CleanExpired sweeps every collection and is run
// periodically by Sweeper.
//
// # Fallback
//
// If the persistent backend cannot be opened, its stored schema version is
// newer than the declared one, or a write fails, the DB switches to the
// memory backend for the remainder of the process. Readable records are
// copied across first. The condition is logged once, reflected by
// Degraded and reported through the hook installed with WithDegradedHook.
package store
