// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package prefetch watches scroll behavior and preloads the images the user
// is about to reach.
package prefetch

import (
	"math"
	"sync"
	"time"

	"github.com/tomtom215/studiosync/internal/images"
	"github.com/tomtom215/studiosync/internal/metrics"
)

// Sample is the rolling scroll measurement. Speed is in pixels per
// millisecond and Acceleration in pixels per millisecond squared.
type Sample struct {
	Direction     images.Direction
	Speed         float64
	Acceleration  float64
	LastPosition  float64
	LastTimestamp time.Time
}

// Strategy is a preload configuration chosen from the current Sample.
type Strategy struct {
	Name        string
	Concurrency int
	Delay       time.Duration
	Priority    images.Priority
}

// Strategies.
var (
	Aggressive   = Strategy{Name: "aggressive", Concurrency: 5, Delay: 0, Priority: images.PriorityHigh}
	Default      = Strategy{Name: "default", Concurrency: 3, Delay: 100 * time.Millisecond, Priority: images.PriorityNormal}
	Conservative = Strategy{Name: "conservative", Concurrency: 2, Delay: 300 * time.Millisecond, Priority: images.PriorityNormal}
)

// Config tunes the decision table and window size.
type Config struct {
	// FastSpeed selects Aggressive above it.
	FastSpeed float64
	// SlowSpeed selects Conservative below it.
	SlowSpeed float64
	// BaseRows is the window at or below one pixel per millisecond.
	BaseRows int
	// MaxRows caps the window.
	MaxRows int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{FastSpeed: 5, SlowSpeed: 1, BaseRows: 2, MaxRows: 8}
}

// Preloader is the part of the image cache the prefetcher drives.
type Preloader interface {
	Preload(urls []string, p images.Priority) int
	Tune(concurrency int, delay time.Duration)
}

// Viewport is the visible region of a scrolling grid, in pixels.
type Viewport struct {
	ScrollTop float64
	Height    float64
}

// Prefetcher turns scroll observations into preloads.
type Prefetcher struct {
	cache Preloader
	cfg   Config

	mu       sync.Mutex
	sample   Sample
	observed bool
}

// New creates a Prefetcher driving cache.
func New(cache Preloader, cfg Config) *Prefetcher {
	def := DefaultConfig()
	if cfg.FastSpeed <= 0 {
		cfg.FastSpeed = def.FastSpeed
	}
	if cfg.SlowSpeed <= 0 || cfg.SlowSpeed >= cfg.FastSpeed {
		cfg.SlowSpeed = math.Min(def.SlowSpeed, cfg.FastSpeed/2)
	}
	if cfg.BaseRows <= 0 {
		cfg.BaseRows = def.BaseRows
	}
	if cfg.MaxRows < cfg.BaseRows {
		cfg.MaxRows = cfg.BaseRows
	}
	return &Prefetcher{cache: cache, cfg: cfg}
}

// Observe records a scroll position report and returns the updated Sample.
// Reports at or before the previous timestamp only move the position.
func (p *Prefetcher) Observe(position float64, at time.Time) Sample {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.observed {
		p.observed = true
		p.sample = Sample{LastPosition: position, LastTimestamp: at}
		return p.sample
	}

	prev := p.sample
	dt := float64(at.Sub(prev.LastTimestamp)) / float64(time.Millisecond)
	if dt <= 0 {
		p.sample.LastPosition = position
		return p.sample
	}

	delta := position - prev.LastPosition
	speed := math.Abs(delta) / dt

	next := Sample{
		Direction:     prev.Direction,
		Speed:         speed,
		Acceleration:  (speed - prev.Speed) / dt,
		LastPosition:  position,
		LastTimestamp: at,
	}
	switch {
	case delta > 0:
		next.Direction = images.DirectionDown
	case delta < 0:
		next.Direction = images.DirectionUp
	}
	p.sample = next
	return next
}

// Sample returns the current measurement.
func (p *Prefetcher) Sample() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sample
}

// Strategy picks the preload configuration for the current Sample.
func (p *Prefetcher) Strategy() Strategy {
	s := p.Sample()
	switch {
	case s.Speed > p.cfg.FastSpeed:
		st := Aggressive
		if s.Acceleration > 0 {
			st.Concurrency++
		}
		return st
	case s.Speed < p.cfg.SlowSpeed:
		return Conservative
	default:
		return Default
	}
}

// rows sizes the window in proportion to speed.
func (p *Prefetcher) rows(speed float64) int {
	n := int(math.Ceil(float64(p.cfg.BaseRows) * math.Max(1, speed)))
	if n > p.cfg.MaxRows {
		n = p.cfg.MaxRows
	}
	return n
}

// PreloadByViewport preloads the rows just beyond the visible range of a
// grid of urls laid out columns wide. visible lists the visible indices;
// when empty the range is derived from vp and itemHeight. The window
// follows the scroll direction, or spans both sides when it is unknown.
// It returns how many URLs were queued.
func (p *Prefetcher) PreloadByViewport(urls []string, visible []int, vp Viewport, itemHeight float64, columns int) int {
	if len(urls) == 0 {
		return 0
	}
	if columns < 1 {
		columns = 1
	}

	firstRow, lastRow, ok := visibleRows(visible, vp, itemHeight, columns)
	if !ok {
		return 0
	}

	sample := p.Sample()
	st := p.Strategy()
	rows := p.rows(sample.Speed)

	var picked []string
	addRow := func(row int) {
		for col := 0; col < columns; col++ {
			i := row*columns + col
			if row >= 0 && i < len(urls) {
				picked = append(picked, urls[i])
			}
		}
	}

	switch sample.Direction {
	case images.DirectionDown:
		for r := lastRow + 1; r <= lastRow+rows; r++ {
			addRow(r)
		}
	case images.DirectionUp:
		for r := firstRow - 1; r >= firstRow-rows; r-- {
			addRow(r)
		}
	default:
		half := (rows + 1) / 2
		for d := 1; d <= half; d++ {
			addRow(lastRow + d)
			addRow(firstRow - d)
		}
	}

	p.cache.Tune(st.Concurrency, st.Delay)
	n := p.cache.Preload(picked, st.Priority)
	metrics.RecordPrefetch(st.Name, n)
	return n
}

func visibleRows(visible []int, vp Viewport, itemHeight float64, columns int) (first, last int, ok bool) {
	if len(visible) > 0 {
		lo, hi := visible[0], visible[0]
		for _, i := range visible[1:] {
			lo = min(lo, i)
			hi = max(hi, i)
		}
		return lo / columns, hi / columns, true
	}
	if itemHeight <= 0 || vp.Height <= 0 {
		return 0, 0, false
	}
	first = int(math.Floor(math.Max(0, vp.ScrollTop) / itemHeight))
	last = int(math.Ceil((math.Max(0, vp.ScrollTop)+vp.Height)/itemHeight)) - 1
	if last < first {
		last = first
	}
	return first, last, true
}
