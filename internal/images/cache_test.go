// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sizedFetcher returns size bytes for every URL and counts calls.
type sizedFetcher struct {
	size  int
	calls atomic.Int64

	mu    sync.Mutex
	order []string
}

func (f *sizedFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.order = append(f.order, url)
	f.mu.Unlock()
	return make([]byte, f.size), nil
}

func (f *sizedFetcher) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func newTestCache(t *testing.T, f Fetcher, cfg Config, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c := New(f, cfg, append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(c.Close)
	return c, clock
}

func get(t *testing.T, c *Cache, url string, p Priority) Image {
	t.Helper()
	img, err := c.Get(context.Background(), url, p)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", url, err)
	}
	return img
}

func resident(c *Cache, urls ...string) []string {
	var out []string
	for _, u := range urls {
		if c.Contains(u) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetCachesAndCountsHits(t *testing.T) {
	f := &sizedFetcher{size: 10}
	c, _ := newTestCache(t, f, Config{})

	first := get(t, c, "a", PriorityNormal)
	second := get(t, c, "a", PriorityNormal)

	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}
	if !first.Cached || second.AccessCount != 2 || second.Size != 10 {
		t.Errorf("images = %+v / %+v", first, second)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.HitRate != 0.5 || st.Items != 1 || st.Bytes != 10 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestEvictionStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		// setup runs against a cache holding a, b, c inserted in that order
		// one second apart.
		setup func(t *testing.T, c *Cache, clock *fakeClock)
		want  []string
	}{
		{
			name:     "lru evicts least recently accessed",
			strategy: LRU,
			setup: func(t *testing.T, c *Cache, clock *fakeClock) {
				clock.Advance(time.Second)
				get(t, c, "a", PriorityNormal)
			},
			want: []string{"a", "c", "d"},
		},
		{
			name:     "lfu evicts least frequently accessed",
			strategy: LFU,
			setup: func(t *testing.T, c *Cache, clock *fakeClock) {
				get(t, c, "a", PriorityNormal)
				get(t, c, "c", PriorityNormal)
			},
			want: []string{"a", "c", "d"},
		},
		{
			name:     "fifo ignores access",
			strategy: FIFO,
			setup: func(t *testing.T, c *Cache, clock *fakeClock) {
				get(t, c, "a", PriorityNormal)
				get(t, c, "a", PriorityNormal)
			},
			want: []string{"b", "c", "d"},
		},
		{
			name:     "priority evicts lowest priority",
			strategy: PriorityFirst,
			setup:    func(*testing.T, *Cache, *fakeClock) {},
			want:     []string{"a", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &sizedFetcher{size: 1}
			c, clock := newTestCache(t, f, Config{MaxItems: 3, Strategy: tt.strategy})

			get(t, c, "a", PriorityHigh)
			clock.Advance(time.Second)
			get(t, c, "b", PriorityLow)
			clock.Advance(time.Second)
			get(t, c, "c", PriorityNormal)
			clock.Advance(time.Second)

			tt.setup(t, c, clock)
			get(t, c, "d", PriorityNormal)

			if got := resident(c, "a", "b", "c", "d"); !sameSet(got, tt.want) {
				t.Errorf("resident = %v, want %v", got, tt.want)
			}
			if c.Stats().Evictions != 1 {
				t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
			}
		})
	}
}

func TestPriorityTiesEvictOldestInsertion(t *testing.T) {
	c, _ := newTestCache(t, &sizedFetcher{size: 1}, Config{MaxItems: 2, Strategy: PriorityFirst})
	get(t, c, "a", PriorityNormal)
	get(t, c, "b", PriorityNormal)
	get(t, c, "c", PriorityNormal)

	if got := resident(c, "a", "b", "c"); !sameSet(got, []string{"b", "c"}) {
		t.Errorf("resident = %v", got)
	}
}

func TestByteBudget(t *testing.T) {
	var released []string
	f := &sizedFetcher{size: 40}
	c, _ := newTestCache(t, f, Config{MaxBytes: 100, MaxItems: 10}, WithReleaseHook(func(img Image, reason string) {
		released = append(released, img.URL+":"+reason)
	}))

	get(t, c, "a", PriorityNormal)
	get(t, c, "b", PriorityNormal)
	get(t, c, "c", PriorityNormal)

	st := c.Stats()
	if st.Items != 2 || st.Bytes != 80 {
		t.Errorf("Stats() = %+v, want 2 items / 80 bytes", st)
	}
	if len(released) != 1 || released[0] != "a:capacity" {
		t.Errorf("released = %v", released)
	}
}

func TestOversizedImageIsServedNotCached(t *testing.T) {
	f := &sizedFetcher{size: 200}
	c, _ := newTestCache(t, f, Config{MaxBytes: 100})

	img := get(t, c, "big", PriorityHigh)
	if img.Cached || len(img.Data) != 200 {
		t.Errorf("image = cached %v, %d bytes", img.Cached, len(img.Data))
	}
	if c.Contains("big") || c.Stats().Bytes != 0 {
		t.Error("oversized image must not be resident")
	}
}

func TestMaxAge(t *testing.T) {
	f := &sizedFetcher{size: 1}
	c, clock := newTestCache(t, f, Config{MaxAge: time.Minute})

	get(t, c, "a", PriorityNormal)
	get(t, c, "b", PriorityNormal)

	clock.Advance(2 * time.Minute)
	get(t, c, "a", PriorityNormal)
	if f.calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want refetch of stale image", f.calls.Load())
	}

	clock.Advance(30 * time.Second)
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1 (b)", n)
	}
	if !c.Contains("a") || c.Contains("b") {
		t.Errorf("resident after sweep = %v", resident(c, "a", "b"))
	}
}

func TestConcurrentGetsShareFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	f := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("img"), nil
	})
	c, _ := newTestCache(t, f, Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "shared", PriorityNormal)
			errs <- err
		}()
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
}

func TestFetchErrorIsReturned(t *testing.T) {
	boom := errors.New("offline")
	c, _ := newTestCache(t, FetcherFunc(func(context.Context, string) ([]byte, error) { return nil, boom }), Config{})
	if _, err := c.Get(context.Background(), "a", PriorityNormal); !errors.Is(err, boom) {
		t.Errorf("Get() error = %v, want %v", err, boom)
	}
	if c.Contains("a") {
		t.Error("failed fetch must not be cached")
	}
}

func TestClearAndCloseReleaseEverything(t *testing.T) {
	var released atomic.Int64
	clock := newFakeClock()
	c := New(&sizedFetcher{size: 5}, Config{}, WithClock(clock.Now), WithReleaseHook(func(Image, string) {
		released.Add(1)
	}))

	get(t, c, "a", PriorityNormal)
	get(t, c, "b", PriorityNormal)
	c.Clear()
	if released.Load() != 2 || c.Stats().Items != 0 || c.Stats().Bytes != 0 {
		t.Errorf("after Clear: released = %d, stats = %+v", released.Load(), c.Stats())
	}

	get(t, c, "c", PriorityNormal)
	c.Close()
	if released.Load() != 3 {
		t.Errorf("after Close: released = %d, want 3", released.Load())
	}
	if _, err := c.Get(context.Background(), "c", PriorityNormal); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
	c.Close()
}

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]Strategy{"": LRU, "LRU": LRU, "lfu": LFU, "fifo": FIFO, "priority": PriorityFirst} {
		got, err := ParseStrategy(name)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseStrategy("random"); err == nil {
		t.Error("ParseStrategy(random) expected error")
	}
	if p, err := ParsePriority("HIGH"); err != nil || p != PriorityHigh {
		t.Errorf("ParsePriority(HIGH) = %v, %v", p, err)
	}
}

func TestEntryExpiresAtExactlyMaxAge(t *testing.T) {
	f := &sizedFetcher{size: 1}
	c, clock := newTestCache(t, f, Config{MaxAge: time.Minute})

	get(t, c, "a", PriorityNormal)
	clock.Advance(time.Minute - time.Millisecond)
	if !c.Contains("a") {
		t.Fatal("image evicted before MaxAge")
	}
	clock.Advance(time.Millisecond)
	if c.Contains("a") {
		t.Error("image still served at MaxAge")
	}
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}
