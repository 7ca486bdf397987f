// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
)

type setOptions struct {
	ttl    time.Duration
	hasTTL bool
	owner  string
}

// SetOption configures SetItem.
type SetOption func(*setOptions)

// WithTTL expires the record d after it is written. d must be positive.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = d
		o.hasTTL = true
	}
}

// WithOwner tags the record with an owner for owner-scoped listing and
// invalidation.
func WithOwner(ownerID string) SetOption {
	return func(o *setOptions) { o.owner = ownerID }
}

type listOptions struct {
	owner string
}

// ListOption configures GetAllItems.
type ListOption func(*listOptions)

// OwnedBy restricts a listing to records tagged with ownerID.
func OwnedBy(ownerID string) ListOption {
	return func(o *listOptions) { o.owner = ownerID }
}

// SetItem upserts value under collection/key. value is stored as JSON;
// a json.RawMessage is stored verbatim.
func (db *DB) SetItem(ctx context.Context, collection, key string, value any, opts ...SetOption) error {
	if err := db.checkTarget(collection, key); err != nil {
		return err
	}
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasTTL && o.ttl <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTTL, o.ttl)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}

	now := db.clock()
	rec := &Record{
		Collection: collection,
		ID:         key,
		Data:       data,
		CreatedAt:  now,
		OwnerID:    o.owner,
	}
	if o.hasTTL {
		exp := now.Add(o.ttl)
		rec.ExpiresAt = &exp
		rec.TTL = o.ttl
	}

	return db.write(ctx, "set", func(be backend) error { return be.put(ctx, rec) })
}

// GetItem returns the record or nil when it is absent. An expired record is
// deleted and reported as absent.
func (db *DB) GetItem(ctx context.Context, collection, key string) (*Record, error) {
	if err := db.checkTarget(collection, key); err != nil {
		return nil, err
	}

	var rec *Record
	err := db.read(ctx, "get", func(be backend) error {
		var err error
		rec, err = be.get(ctx, collection, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Expired(db.clock()) {
		db.purge(ctx, collection, rec.ID)
		metrics.RecordExpiredPurged(collection, 1)
		return nil, nil
	}
	return rec, nil
}

// Get decodes the record at collection/key into T. ok is false when the
// record is absent or expired.
func Get[T any](ctx context.Context, db *DB, collection, key string) (value T, ok bool, err error) {
	rec, err := db.GetItem(ctx, collection, key)
	if err != nil || rec == nil {
		return value, false, err
	}
	if err := rec.Decode(&value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

// GetAllItems returns every live record of collection in key order.
// Expired records met along the way are deleted.
func (db *DB) GetAllItems(ctx context.Context, collection string, opts ...ListOption) ([]*Record, error) {
	if !db.collections[collection] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}

	var recs []*Record
	err := db.read(ctx, "list", func(be backend) error {
		var err error
		recs, err = be.list(ctx, collection, o.owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	now := db.clock()
	live := recs[:0]
	expired := 0
	for _, r := range recs {
		if r.Expired(now) {
			db.purge(ctx, collection, r.ID)
			expired++
			continue
		}
		live = append(live, r)
	}
	metrics.RecordExpiredPurged(collection, expired)
	return live, nil
}

// Count returns the number of live records in collection.
func (db *DB) Count(ctx context.Context, collection string) (int, error) {
	recs, err := db.GetAllItems(ctx, collection)
	return len(recs), err
}

// Touch restarts the record's expiry window and bumps CreatedAt. It
// reports false when there is no live record.
func (db *DB) Touch(ctx context.Context, collection, key string) (bool, error) {
	rec, err := db.GetItem(ctx, collection, key)
	if err != nil || rec == nil {
		return false, err
	}
	now := db.clock()
	rec.CreatedAt = now
	if rec.TTL > 0 {
		exp := now.Add(rec.TTL)
		rec.ExpiresAt = &exp
	}
	if err := db.write(ctx, "touch", func(be backend) error { return be.put(ctx, rec) }); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveItem deletes collection/key. Deleting a missing key is not an error.
func (db *DB) RemoveItem(ctx context.Context, collection, key string) error {
	if err := db.checkTarget(collection, key); err != nil {
		return err
	}
	return db.write(ctx, "delete", func(be backend) error { return be.delete(ctx, collection, key) })
}

// ClearCollection deletes every record of collection.
func (db *DB) ClearCollection(ctx context.Context, collection string) error {
	if !db.collections[collection] {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return db.write(ctx, "clear", func(be backend) error { return be.drop(ctx, collection) })
}

// RemoveByOwner deletes every record of collection owned by ownerID,
// expired or not, and returns how many were removed.
func (db *DB) RemoveByOwner(ctx context.Context, collection, ownerID string) (int, error) {
	if !db.collections[collection] {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if ownerID == "" {
		return 0, nil
	}

	var recs []*Record
	err := db.read(ctx, "list", func(be backend) error {
		var err error
		recs, err = be.list(ctx, collection, ownerID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list %s by owner: %w", collection, err)
	}

	removed := 0
	for _, r := range recs {
		if err := db.write(ctx, "delete", func(be backend) error { return be.delete(ctx, collection, r.ID) }); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// CleanExpired sweeps every declared collection and returns the number of
// records removed.
func (db *DB) CleanExpired(ctx context.Context) (int, error) {
	total := 0
	for _, c := range db.schema.Collections {
		var recs []*Record
		err := db.read(ctx, "list", func(be backend) error {
			var err error
			recs, err = be.list(ctx, c.Name, "")
			return err
		})
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", c.Name, err)
		}

		now := db.clock()
		removed := 0
		for _, r := range recs {
			if !r.Expired(now) {
				continue
			}
			if err := db.write(ctx, "delete", func(be backend) error { return be.delete(ctx, c.Name, r.ID) }); err != nil {
				return total, err
			}
			removed++
		}
		metrics.RecordExpiredPurged(c.Name, removed)
		total += removed
	}
	return total, nil
}

// purge deletes an expired record found during a read. Failures only
// delay the purge to the next read or sweep.
func (db *DB) purge(ctx context.Context, collection, key string) {
	if err := db.write(ctx, "delete", func(be backend) error { return be.delete(ctx, collection, key) }); err != nil {
		logging.Debug().Err(err).Str("collection", collection).Str("key", key).Msg("Expired record purge deferred")
	}
}
