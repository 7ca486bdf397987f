// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/studiosync/internal/logging"
)

const badgerCloseTimeout = 10 * time.Second

var metaKey = []byte("m\x00schema")

func recordPrefix(collection string) []byte {
	return []byte("r\x00" + collection + "\x00")
}

func recordKey(collection, key string) []byte {
	return append(recordPrefix(collection), key...)
}

func ownerCollectionPrefix(collection string) []byte {
	return []byte("o\x00" + collection + "\x00")
}

func ownerPrefix(collection, owner string) []byte {
	return append(ownerCollectionPrefix(collection), owner+"\x00"...)
}

func ownerKey(collection, owner, key string) []byte {
	return append(ownerPrefix(collection, owner), key...)
}

type badgerBackend struct {
	db      *badger.DB
	indexed map[string]bool
}

// openBadger returns an opener for a Badger directory.
func openBadger(path string, syncWrites bool) opener {
	return func(_ context.Context, schema *Schema) (backend, error) {
		opts := badger.DefaultOptions(path)
		opts.SyncWrites = syncWrites
		opts.Compression = options.Snappy
		opts.MemTableSize = 16 << 20
		opts.ValueLogFileSize = 64 << 20
		opts.NumCompactors = 2
		opts.Logger = nil

		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open BadgerDB: %w", err)
		}
		logging.Info().Str("path", path).Bool("sync_writes", syncWrites).Msg("Durable store opened")
		return &badgerBackend{db: db, indexed: indexedCollections(schema)}, nil
	}
}

func (b *badgerBackend) name() string { return "badger" }

func (b *badgerBackend) loadMeta(ctx context.Context) (*meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var md *meta
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		md = &meta{}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, md) })
	})
	if err != nil {
		return nil, fmt.Errorf("read schema metadata: %w", err)
	}
	return md, nil
}

func (b *badgerBackend) saveMeta(ctx context.Context, md *meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal schema metadata: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error { return txn.Set(metaKey, data) })
}

func readRecord(txn *badger.Txn, key []byte) (*Record, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

func (b *badgerBackend) get(ctx context.Context, collection, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r *Record
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = readRecord(txn, recordKey(collection, key))
		return err
	})
	return r, err
}

func (b *badgerBackend) put(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	indexed := b.indexed[r.Collection]

	return b.db.Update(func(txn *badger.Txn) error {
		key := recordKey(r.Collection, r.ID)
		if indexed {
			old, err := readRecord(txn, key)
			if err != nil {
				return err
			}
			if old != nil && old.OwnerID != "" && old.OwnerID != r.OwnerID {
				if err := txn.Delete(ownerKey(r.Collection, old.OwnerID, r.ID)); err != nil {
					return err
				}
			}
		}

		// Native TTL is only a backstop; expiry is decided by ExpiresAt.
		e := badger.NewEntry(key, data)
		if r.TTL > 0 {
			e = e.WithTTL(r.TTL)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}

		if indexed && r.OwnerID != "" {
			ie := badger.NewEntry(ownerKey(r.Collection, r.OwnerID, r.ID), nil)
			if r.TTL > 0 {
				ie = ie.WithTTL(r.TTL)
			}
			return txn.SetEntry(ie)
		}
		return nil
	})
}

func (b *badgerBackend) delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		rk := recordKey(collection, key)
		old, err := readRecord(txn, rk)
		if err != nil || old == nil {
			return err
		}
		if old.OwnerID != "" && b.indexed[collection] {
			if err := txn.Delete(ownerKey(collection, old.OwnerID, key)); err != nil {
				return err
			}
		}
		return txn.Delete(rk)
	})
}

func (b *badgerBackend) list(ctx context.Context, collection, owner string) ([]*Record, error) {
	var out []*Record
	err := b.db.View(func(txn *badger.Txn) error {
		if owner != "" && b.indexed[collection] {
			return b.listByOwner(ctx, txn, collection, owner, &out)
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := recordPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				logging.Warn().Err(err).Str("collection", collection).Msg("Skipping unreadable record")
				continue
			}
			if owner != "" && r.OwnerID != owner {
				continue
			}
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return out, nil
}

func (b *badgerBackend) listByOwner(ctx context.Context, txn *badger.Txn, collection, owner string, out *[]*Record) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := ownerPrefix(collection, owner)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := string(bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix))
		r, err := readRecord(txn, recordKey(collection, id))
		if err != nil {
			return err
		}
		if r != nil {
			*out = append(*out, r)
		}
	}
	return nil
}

func (b *badgerBackend) drop(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.DropPrefix(recordPrefix(collection), ownerCollectionPrefix(collection))
}

func (b *badgerBackend) close() error {
	done := make(chan error, 1)
	go func() { done <- b.db.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		return nil
	case <-time.After(badgerCloseTimeout):
		logging.Warn().Dur("timeout", badgerCloseTimeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", badgerCloseTimeout)
	}
}
