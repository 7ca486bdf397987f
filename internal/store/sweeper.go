// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"context"
	"time"

	"github.com/tomtom215/studiosync/internal/logging"
)

// Sweeper runs CleanExpired on an interval. It implements suture.Service.
type Sweeper struct {
	db       *DB
	interval time.Duration
}

// NewSweeper creates a sweeper for db.
func NewSweeper(db *DB, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{db: db, interval: interval}
}

// Serve sweeps until ctx is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.db.CleanExpired(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Expired record sweep failed")
		return
	}
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("Expired records swept")
	}
}

func (s *Sweeper) String() string { return "store-sweeper" }
