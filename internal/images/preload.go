// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/studiosync/internal/logging"
)

// Preload defaults.
const (
	DefaultPreloadConcurrency = 3
	DefaultPreloadDelay       = 100 * time.Millisecond
)

// Direction is the scroll direction a preload anticipates.
type Direction int

// Directions.
const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Preload fetches urls in the background at priority p. URLs already
// resident, loading or queued are skipped. It returns how many were
// queued and never blocks on the fetches.
func (c *Cache) Preload(urls []string, p Priority) int {
	queued := 0
	for _, url := range urls {
		if url == "" || c.residentOrLoading(url) {
			continue
		}
		if c.pool.submit(preloadJob{url: url, priority: p}) {
			queued++
		}
	}
	return queued
}

// PreloadByDirection preloads up to count of urls, which are listed in
// page order, nearest the scroll edge first: the head of the list when
// scrolling down and the tail, reversed, when scrolling up.
func (c *Cache) PreloadByDirection(urls []string, d Direction, count int) int {
	if count <= 0 || len(urls) == 0 {
		return 0
	}
	if count > len(urls) {
		count = len(urls)
	}

	var picked []string
	switch d {
	case DirectionUp:
		picked = make([]string, 0, count)
		for i := len(urls) - 1; i >= len(urls)-count; i-- {
			picked = append(picked, urls[i])
		}
	default:
		picked = urls[:count]
	}
	return c.Preload(picked, PriorityNormal)
}

// Tune adjusts preload concurrency and the pacing delay between starts.
func (c *Cache) Tune(concurrency int, delay time.Duration) {
	c.pool.tune(concurrency, delay)
}

// PreloadSettings returns the current preload concurrency and delay.
func (c *Cache) PreloadSettings() (int, time.Duration) {
	return c.pool.settings()
}

func (c *Cache) residentOrLoading(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.loading[url]; ok {
		return true
	}
	e, ok := c.entries[url]
	return ok && !c.staleLocked(e, c.clock())
}

func (c *Cache) preloadOne(ctx context.Context, job preloadJob) {
	if _, err := c.Get(ctx, job.url, job.priority); err != nil && ctx.Err() == nil {
		logging.Debug().Err(err).Str("url", job.url).Msg("Image preload failed")
	}
}

type preloadJob struct {
	url      string
	priority Priority
}

// preloadPool runs queued jobs with bounded concurrency, pacing job
// starts with a rate limiter.
type preloadPool struct {
	run     func(context.Context, preloadJob)
	limiter *rate.Limiter
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	workers sync.WaitGroup

	mu          sync.Mutex
	queue       []preloadJob
	pending     map[string]struct{}
	active      int
	concurrency int
	delay       time.Duration
}

func newPreloadPool(concurrency int, delay time.Duration, run func(context.Context, preloadJob)) *preloadPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &preloadPool{
		run:         run,
		limiter:     rate.NewLimiter(limitFor(delay), 1),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		pending:     make(map[string]struct{}),
		concurrency: concurrency,
		delay:       delay,
	}
	go p.dispatch()
	return p
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func (p *preloadPool) submit(job preloadJob) bool {
	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	if _, dup := p.pending[job.url]; dup {
		p.mu.Unlock()
		return false
	}
	p.pending[job.url] = struct{}{}
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	p.signal()
	return true
}

func (p *preloadPool) tune(concurrency int, delay time.Duration) {
	if concurrency < 1 {
		concurrency = 1
	}
	if delay < 0 {
		delay = 0
	}
	p.mu.Lock()
	changed := p.concurrency != concurrency || p.delay != delay
	p.concurrency = concurrency
	p.delay = delay
	p.mu.Unlock()

	if changed {
		p.limiter.SetLimit(limitFor(delay))
		p.signal()
	}
}

func (p *preloadPool) settings() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.concurrency, p.delay
}

func (p *preloadPool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *preloadPool) dispatch() {
	defer close(p.done)
	for {
		for {
			job, ok := p.next()
			if !ok {
				break
			}
			if err := p.limiter.Wait(p.ctx); err != nil {
				p.finish(job)
				return
			}
			p.workers.Add(1)
			go func() {
				defer p.workers.Done()
				defer p.finish(job)
				p.run(p.ctx, job)
			}()
		}

		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
	}
}

// next claims a worker slot and the oldest queued job.
func (p *preloadPool) next() (preloadJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= p.concurrency || len(p.queue) == 0 {
		return preloadJob{}, false
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	p.active++
	return job, true
}

func (p *preloadPool) finish(job preloadJob) {
	p.mu.Lock()
	p.active--
	delete(p.pending, job.url)
	p.mu.Unlock()
	p.signal()
}

func (p *preloadPool) close() {
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()

	p.cancel()
	<-p.done
	p.workers.Wait()
}
