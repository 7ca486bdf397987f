// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
)

// Defaults.
const (
	DefaultMaxBytes      = 50 << 20
	DefaultMaxItems      = 200
	DefaultMaxAge        = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultFetchTimeout  = 10 * time.Second
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("image cache is closed")

// Fetcher loads image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// Image is a cached image as handed to callers.
type Image struct {
	URL          string
	Data         []byte
	Size         int64
	Priority     Priority
	FetchedAt    time.Time
	AccessCount  int
	LastAccessed time.Time

	// Cached is false when the image was too large to keep.
	Cached bool
}

type entry struct {
	url          string
	data         []byte
	size         int64
	priority     Priority
	inserted     time.Time
	accessCount  int
	lastAccessed time.Time
	seq          uint64
	index        int
}

func (e *entry) image() Image {
	return Image{
		URL:          e.url,
		Data:         e.data,
		Size:         e.size,
		Priority:     e.priority,
		FetchedAt:    e.inserted,
		AccessCount:  e.accessCount,
		LastAccessed: e.lastAccessed,
		Cached:       true,
	}
}

// Config sizes a Cache.
type Config struct {
	MaxBytes     int64
	MaxItems     int
	MaxAge       time.Duration
	Strategy     Strategy
	FetchTimeout time.Duration

	PreloadConcurrency int
	PreloadDelay       time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Strategy == nil {
		c.Strategy = LRU
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.PreloadConcurrency <= 0 {
		c.PreloadConcurrency = DefaultPreloadConcurrency
	}
	if c.PreloadDelay < 0 {
		c.PreloadDelay = 0
	}
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithReleaseHook is called for every blob leaving the cache, whatever
// the reason. fn runs with the cache locked and must not call into it.
func WithReleaseHook(fn func(img Image, reason string)) Option {
	return func(c *Cache) { c.onRelease = fn }
}

// Cache is a bounded in-memory image cache shared by every screen.
type Cache struct {
	cfg       Config
	fetcher   Fetcher
	clock     func() time.Time
	onRelease func(Image, string)
	flight    singleflight.Group
	pool      *preloadPool

	mu        sync.Mutex
	entries   map[string]*entry
	heap      evictionHeap
	loading   map[string]struct{}
	bytes     int64
	seq       uint64
	hits      int64
	misses    int64
	evictions int64
	closed    bool
}

// New creates a Cache loading misses through fetcher.
func New(fetcher Fetcher, cfg Config, opts ...Option) *Cache {
	cfg.setDefaults()
	c := &Cache{
		cfg:     cfg,
		fetcher: fetcher,
		clock:   time.Now,
		entries: make(map[string]*entry),
		heap:    evictionHeap{strategy: cfg.Strategy},
		loading: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = newPreloadPool(cfg.PreloadConcurrency, cfg.PreloadDelay, c.preloadOne)
	return c
}

// Get returns the image for url, fetching it on a miss. Concurrent Gets
// for the same url share one fetch. p raises the resident priority when it
// is higher than the stored one.
func (c *Cache) Get(ctx context.Context, url string, p Priority) (Image, error) {
	if img, ok, err := c.lookup(url, p); err != nil || ok {
		return img, err
	}

	ch := c.flight.DoChan(url, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), url, p)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Image{}, res.Err
		}
		return res.Val.(Image), nil
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
}

// Contains reports whether url is resident and fresh, without touching
// its access bookkeeping.
func (c *Cache) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return ok && !c.staleLocked(e, c.clock())
}

func (c *Cache) lookup(url string, p Priority) (Image, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Image{}, false, ErrClosed
	}

	now := c.clock()
	e, ok := c.entries[url]
	if ok && c.staleLocked(e, now) {
		c.evictLocked(e, "expired")
		ok = false
	}
	if !ok {
		c.misses++
		metrics.RecordImageLookup(false)
		return Image{}, false, nil
	}

	e.accessCount++
	e.lastAccessed = now
	if p > e.priority {
		e.priority = p
	}
	c.heap.fix(e.index)
	c.hits++
	metrics.RecordImageLookup(true)
	return e.image(), true, nil
}

func (c *Cache) load(ctx context.Context, url string, p Priority) (Image, error) {
	c.mu.Lock()
	c.loading[url] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.loading, url)
		c.mu.Unlock()
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := c.fetcher.Fetch(fetchCtx, url)
	metrics.RecordImageFetch(time.Since(start))
	if err != nil {
		return Image{}, fmt.Errorf("fetch image %s: %w", url, err)
	}
	return c.insert(url, data, p)
}

// insert makes room by strategy and stores data. An image larger than the
// whole budget is returned without being cached.
func (c *Cache) insert(url string, data []byte, p Priority) (Image, error) {
	size := int64(len(data))
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Image{}, ErrClosed
	}
	if size > c.cfg.MaxBytes {
		logging.Debug().Str("url", url).Int64("size", size).Int64("max_bytes", c.cfg.MaxBytes).Msg("Image exceeds cache budget, not caching")
		return Image{URL: url, Data: data, Size: size, Priority: p, FetchedAt: now, LastAccessed: now, AccessCount: 1}, nil
	}

	if old, ok := c.entries[url]; ok {
		c.removeLocked(old)
		c.release(old, "replaced")
	}
	for len(c.entries)+1 > c.cfg.MaxItems || c.bytes+size > c.cfg.MaxBytes {
		victim := c.heap.peek()
		if victim == nil {
			break
		}
		c.evictLocked(victim, "capacity")
	}

	c.seq++
	e := &entry{
		url:          url,
		data:         data,
		size:         size,
		priority:     p,
		inserted:     now,
		accessCount:  1,
		lastAccessed: now,
		seq:          c.seq,
	}
	c.entries[url] = e
	c.heap.push(e)
	c.bytes += size
	metrics.SetImageCacheUsage(c.bytes, len(c.entries))
	return e.image(), nil
}

func (c *Cache) staleLocked(e *entry, now time.Time) bool {
	return now.Sub(e.inserted) >= c.cfg.MaxAge
}

func (c *Cache) removeLocked(e *entry) {
	c.heap.remove(e)
	delete(c.entries, e.url)
	c.bytes -= e.size
}

func (c *Cache) evictLocked(e *entry, reason string) {
	c.removeLocked(e)
	c.evictions++
	metrics.RecordImageEviction(reason)
	metrics.SetImageCacheUsage(c.bytes, len(c.entries))
	c.release(e, reason)
}

// release hands the blob to the release hook and drops the cache's
// reference to it.
func (c *Cache) release(e *entry, reason string) {
	if c.onRelease != nil {
		c.onRelease(e.image(), reason)
	}
	e.data = nil
}

// Sweep evicts every entry older than MaxAge and returns how many.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for _, e := range c.entries {
		if c.staleLocked(e, now) {
			c.evictLocked(e, "expired")
			removed++
		}
	}
	return removed
}

// Clear releases every resident image.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked("cleared")
}

func (c *Cache) clearLocked(reason string) {
	for _, e := range c.entries {
		c.release(e, reason)
	}
	c.entries = make(map[string]*entry)
	c.heap.clear()
	c.bytes = 0
	metrics.SetImageCacheUsage(0, 0)
}

// Close stops preloading and releases every resident image.
func (c *Cache) Close() {
	c.pool.close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.clearLocked("closed")
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Bytes     int64   `json:"bytes"`
	Items     int     `json:"items"`
	MaxBytes  int64   `json:"max_bytes"`
	MaxItems  int     `json:"max_items"`
	HitRate   float64 `json:"hit_rate"`
	Strategy  string  `json:"strategy"`
	Loading   int     `json:"loading"`
}

// Stats returns a snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Bytes:     c.bytes,
		Items:     len(c.entries),
		MaxBytes:  c.cfg.MaxBytes,
		MaxItems:  c.cfg.MaxItems,
		Strategy:  c.cfg.Strategy.Name(),
		Loading:   len(c.loading),
	}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total)
	}
	return st
}
