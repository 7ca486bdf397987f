// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/studiosync/internal/logging"
)

// DefaultReplayInterval is the periodic replay cadence.
const DefaultReplayInterval = 30 * time.Second

// ReplayLoop replays the queue on a timer, on every transition to online,
// and whenever Kick is called.
type ReplayLoop struct {
	queue    *Queue
	interval time.Duration
	kick     chan struct{}

	// State - all protected by mu
	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	running     bool
	stopping    bool          // true while Stop() is waiting for goroutine
	stopDone    chan struct{} // closed when the goroutine exits
}

// NewReplayLoop creates a loop for q.
func NewReplayLoop(q *Queue, interval time.Duration) *ReplayLoop {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	return &ReplayLoop{
		queue:    q,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Start begins the loop. It runs until Stop is called or ctx is canceled.
func (l *ReplayLoop) Start(ctx context.Context) error {
	l.mu.Lock()

	for l.stopping {
		stopDone := l.stopDone
		l.mu.Unlock()
		<-stopDone
		l.mu.Lock()
	}

	if l.running {
		l.mu.Unlock()
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.stopDone = make(chan struct{})
	done := l.stopDone
	l.unsubscribe = l.queue.conn.Subscribe(func(online bool) {
		if online {
			l.Kick()
		}
	})

	l.mu.Unlock()

	go l.run(loopCtx, done)

	logging.Info().
		Dur("interval", l.interval).
		Int("max_retries", l.queue.policy.MaxAttempts).
		Msg("Queue replay loop started")
	return nil
}

// Stop stops the loop and waits for an in-flight pass to finish.
func (l *ReplayLoop) Stop() {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		return
	}

	l.unsubscribe()
	l.cancel()
	l.running = false
	l.stopping = true
	stopDone := l.stopDone
	l.mu.Unlock()

	<-stopDone

	l.mu.Lock()
	l.stopping = false
	l.mu.Unlock()

	logging.Info().Msg("Queue replay loop stopped")
}

// IsRunning reports whether the loop is active.
func (l *ReplayLoop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Kick requests a pass as soon as the loop is free.
func (l *ReplayLoop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

func (l *ReplayLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// Drain anything queued before a restart.
	l.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pass(ctx)
		case <-l.kick:
			l.pass(ctx)
		}
	}
}

func (l *ReplayLoop) pass(ctx context.Context) {
	_, err := l.queue.ReplayAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrReplayInProgress):
		l.queue.rerun.Store(true)
	case ctx.Err() != nil:
	default:
		logging.Error().Err(err).Msg("Queue replay failed")
	}
}
