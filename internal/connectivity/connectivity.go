// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package connectivity reports whether the backend is reachable and
// notifies subscribers on transitions.
package connectivity

import (
	"sort"
	"sync"

	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
)

// Observer is the connectivity contract consumed by the queue, the
// read-through cache and auto-save.
type Observer interface {
	// Online reports the current state.
	Online() bool

	// Subscribe registers fn for state transitions. fn is called with the
	// new state, never for repeated reports of the same state. The returned
	// function removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Manual is an Observer whose state is set explicitly. It is the base for
// Prober and is used directly by tests and by hosts that learn about
// connectivity from elsewhere.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   map[uint64]func(bool)
	nextID uint64
}

// NewManual creates a Manual observer in the given state.
func NewManual(online bool) *Manual {
	metrics.SetOnline(online)
	return &Manual{online: online, subs: make(map[uint64]func(bool))}
}

// Online reports the current state.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for transitions.
func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Set changes the state and, on a transition, calls every subscriber in
// subscription order from the calling goroutine.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.Unlock()

	metrics.SetOnline(online)
	logging.Info().Bool("online", online).Msg("Connectivity changed")
	for _, fn := range fns {
		fn(online)
	}
}
