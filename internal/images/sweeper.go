// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

import (
	"context"
	"time"

	"github.com/tomtom215/studiosync/internal/logging"
)

// Sweeper periodically evicts images older than the cache's MaxAge.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
}

// NewSweeper creates a Sweeper for c.
func NewSweeper(c *Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{cache: c, interval: interval}
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.cache.Sweep(); n > 0 {
				logging.Debug().Int("evicted", n).Msg("Swept expired images")
			}
		}
	}
}

func (s *Sweeper) String() string { return "image-sweeper" }
