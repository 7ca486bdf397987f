// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package readthrough serves records from the durable store when the
// network cannot, and refreshes the store whenever it can.
//
// Lookup order for Query:
//
//  1. Read the cached record (a storage error counts as a miss).
//  2. Offline with a cached value: return it without fetching.
//  3. Online: fetch with a hard timeout. Success is persisted and returned;
//     failure falls back to the cached value, or returns the fetch error.
//  4. Offline with nothing cached: ErrUnavailableOffline.
package readthrough

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/studiosync/internal/breaker"
	"github.com/tomtom215/studiosync/internal/connectivity"
	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
	"github.com/tomtom215/studiosync/internal/store"
)

// DefaultFetchTimeout bounds every fetch.
const DefaultFetchTimeout = 10 * time.Second

// ErrUnavailableOffline is returned when the device is offline and the key
// has never been cached.
var ErrUnavailableOffline = errors.New("data unavailable offline")

// Strategy names where a query result is cached.
type Strategy struct {
	Key        string
	Collection string

	// TTL expires the cached copy. Zero keeps it until replaced.
	TTL time.Duration

	// OwnerID tags the cached copy so InvalidateUser can remove it.
	OwnerID string
}

// Result carries a query value and where it came from.
type Result[T any] struct {
	Value     T
	FromCache bool

	// StoredAt is when the cached copy was written. Zero for fresh values.
	StoredAt time.Time
}

// Cache runs read-through queries against a store.
type Cache struct {
	db      *store.DB
	conn    connectivity.Observer
	breaker *breaker.Breaker
	timeout time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithBreaker routes fetches through b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *Cache) { c.breaker = b }
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Cache over db.
func New(db *store.DB, conn connectivity.Observer, opts ...Option) *Cache {
	c := &Cache{db: db, conn: conn, timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query resolves s through the cache. See the package documentation for the
// lookup order.
func Query[T any](ctx context.Context, c *Cache, fetch func(ctx context.Context) (T, error), s Strategy) (Result[T], error) {
	cached, hit := lookup[T](ctx, c, s)

	if !c.conn.Online() {
		if hit {
			metrics.RecordReadThrough(s.Collection, "offline_hit")
			return cached, nil
		}
		metrics.RecordReadThrough(s.Collection, "offline_miss")
		return Result[T]{}, fmt.Errorf("%s/%s: %w", s.Collection, s.Key, ErrUnavailableOffline)
	}

	value, err := c.fetch(ctx, func(ctx context.Context) (any, error) { return fetch(ctx) })
	if err != nil {
		if hit {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("collection", s.Collection).
				Str("key", s.Key).
				Time("stored_at", cached.StoredAt).
				Msg("Fetch failed, serving cached copy")
			metrics.RecordReadThrough(s.Collection, "stale")
			return cached, nil
		}
		metrics.RecordReadThrough(s.Collection, "error")
		return Result[T]{}, fmt.Errorf("fetch %s/%s: %w", s.Collection, s.Key, err)
	}

	typed, _ := value.(T)
	c.persist(ctx, s, typed)
	metrics.RecordReadThrough(s.Collection, "fetched")
	return Result[T]{Value: typed}, nil
}

func lookup[T any](ctx context.Context, c *Cache, s Strategy) (Result[T], bool) {
	rec, err := c.db.GetItem(ctx, s.Collection, s.Key)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("collection", s.Collection).
			Str("key", s.Key).
			Msg("Cache read failed, treating as miss")
		return Result[T]{}, false
	}
	if rec == nil {
		return Result[T]{}, false
	}

	var v T
	if err := rec.Decode(&v); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Cached record unreadable, treating as miss")
		return Result[T]{}, false
	}
	return Result[T]{Value: v, FromCache: true, StoredAt: rec.CreatedAt}, true
}

func (c *Cache) fetch(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.breaker == nil {
		return fn(ctx)
	}
	return breaker.Call(c.breaker, func() (any, error) { return fn(ctx) })
}

func (c *Cache) persist(ctx context.Context, s Strategy, value any) {
	var opts []store.SetOption
	if s.TTL > 0 {
		opts = append(opts, store.WithTTL(s.TTL))
	}
	if s.OwnerID != "" {
		opts = append(opts, store.WithOwner(s.OwnerID))
	}
	if err := c.db.SetItem(ctx, s.Collection, s.Key, value, opts...); err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("collection", s.Collection).
			Str("key", s.Key).
			Msg("Failed to cache fetched value")
	}
}

// Invalidate removes the cached copy for s.
func (c *Cache) Invalidate(ctx context.Context, s Strategy) error {
	if err := c.db.RemoveItem(ctx, s.Collection, s.Key); err != nil {
		return fmt.Errorf("invalidate %s/%s: %w", s.Collection, s.Key, err)
	}
	return nil
}

// InvalidateUser removes every cached record owned by ownerID from every
// collection. Call it when a session ends.
func (c *Cache) InvalidateUser(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, nil
	}

	total := 0
	var errs []error
	for _, name := range c.db.Collections() {
		n, err := c.db.RemoveByOwner(ctx, name, ownerID)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	logging.Ctx(ctx).Info().
		Str("owner_id", ownerID).
		Int("removed", total).
		Msg("Invalidated user cache")
	return total, errors.Join(errs...)
}
