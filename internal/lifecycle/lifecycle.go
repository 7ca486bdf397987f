// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package lifecycle carries host lifecycle events (page hide, hidden,
// focus loss) to components that must flush state before the host goes
// away.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
)

// Event is a lifecycle transition reported by the host.
type Event int

const (
	// PageHide means the host is about to unload.
	PageHide Event = iota + 1
	// Hidden means the host is no longer visible.
	Hidden
	// Blur means the host lost input focus.
	Blur
)

func (e Event) String() string {
	switch e {
	case PageHide:
		return "pagehide"
	case Hidden:
		return "hidden"
	case Blur:
		return "blur"
	default:
		return "unknown"
	}
}

// Source delivers lifecycle events.
type Source interface {
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Emitter is a Source fed by Emit.
type Emitter struct {
	mu     sync.Mutex
	subs   map[uint64]func(Event)
	nextID uint64
}

// NewEmitter creates an Emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[uint64]func(Event))}
}

// Subscribe registers fn.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Emit calls every subscriber with ev, in subscription order, and returns
// once they all returned.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ForwardSignals emits PageHide on e for each of sigs until ctx is done.
// The returned function stops forwarding.
func ForwardSignals(ctx context.Context, e *Emitter, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				e.Emit(PageHide)
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		cancel()
	}
}
