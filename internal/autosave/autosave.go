// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package autosave debounces edits to one entity and saves them through a
// caller-supplied function.
//
// Edits mark the coordinator dirty and restart a trailing-edge timer; the
// save runs once the edits stop. Lifecycle events (page hide, hidden,
// blur) save immediately. While offline, a configured OfflineSave hook
// keeps the edit locally (usually by enqueueing an UPDATE); without one
// the edit stays dirty until connectivity returns. A failed save keeps the
// edit dirty and the next save retries the latest data.
package autosave

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/tomtom215/studiosync/internal/connectivity"
	"github.com/tomtom215/studiosync/internal/lifecycle"
	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
)

// DefaultDebounce is the quiet period before a scheduled save.
const DefaultDebounce = 2 * time.Second

// ErrOffline is returned by SaveNow when offline with no OfflineSave hook.
var ErrOffline = errors.New("offline and no offline save configured")

// ErrClosed is returned by SaveNow after Close.
var ErrClosed = errors.New("autosave coordinator is closed")

// SaveFunc persists v and returns the value as stored.
type SaveFunc[T any] func(ctx context.Context, v T) (T, error)

// State is a snapshot of the coordinator.
type State[T any] struct {
	Data              T
	IsSaving          bool
	LastSaved         *time.Time
	HasUnsavedChanges bool
	SaveError         error

	// QueuedOffline is true when the last save went to the offline hook
	// rather than the save function.
	QueuedOffline bool
}

// Option configures a Coordinator.
type Option[T any] func(*Coordinator[T])

// WithDebounce overrides DefaultDebounce.
func WithDebounce[T any](d time.Duration) Option[T] {
	return func(c *Coordinator[T]) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithConnectivity gates saves on conn and retries dirty data when it
// comes back online.
func WithConnectivity[T any](conn connectivity.Observer) Option[T] {
	return func(c *Coordinator[T]) { c.conn = conn }
}

// WithLifecycle forces a save on every lifecycle event from src.
func WithLifecycle[T any](src lifecycle.Source) Option[T] {
	return func(c *Coordinator[T]) { c.lifecycle = src }
}

// WithOfflineSave keeps edits made while offline through fn.
func WithOfflineSave[T any](fn func(ctx context.Context, v T) error) Option[T] {
	return func(c *Coordinator[T]) { c.offlineSave = fn }
}

// WithEqual replaces reflect.DeepEqual for change detection.
func WithEqual[T any](fn func(a, b T) bool) Option[T] {
	return func(c *Coordinator[T]) { c.equal = fn }
}

// WithName labels log lines, e.g. "booking-form".
func WithName[T any](name string) Option[T] {
	return func(c *Coordinator[T]) { c.name = name }
}

// Coordinator owns the edit state of one entity.
type Coordinator[T any] struct {
	save        SaveFunc[T]
	offlineSave func(ctx context.Context, v T) error
	conn        connectivity.Observer
	lifecycle   lifecycle.Source
	equal       func(a, b T) bool
	debounce    time.Duration
	name        string

	// saveMu serializes saves so a forced save never races a timer save.
	saveMu sync.Mutex
	bg     sync.WaitGroup

	mu        sync.Mutex
	initial   T
	data      T
	saved     T
	saving    bool
	lastSaved *time.Time
	saveErr   error
	queued    bool
	timer     *time.Timer
	gen       uint64
	closed    bool
	listeners map[uint64]func(State[T])
	nextID    uint64
	unsub     []func()
}

// New creates a Coordinator starting at initial.
func New[T any](initial T, save SaveFunc[T], opts ...Option[T]) *Coordinator[T] {
	c := &Coordinator[T]{
		save:      save,
		equal:     func(a, b T) bool { return reflect.DeepEqual(a, b) },
		debounce:  DefaultDebounce,
		name:      "autosave",
		initial:   initial,
		data:      initial,
		saved:     initial,
		listeners: make(map[uint64]func(State[T])),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.lifecycle != nil {
		c.unsub = append(c.unsub, c.lifecycle.Subscribe(func(ev lifecycle.Event) {
			c.cancelTimer()
			_ = c.flush(context.Background(), ev.String())
		}))
	}
	if c.conn != nil {
		c.unsub = append(c.unsub, c.conn.Subscribe(func(online bool) {
			if online {
				c.retryInBackground()
			}
		}))
	}
	return c
}

// Update applies fn to the current data. A changed value marks the
// coordinator dirty and restarts the debounce timer.
func (c *Coordinator[T]) Update(fn func(T) T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	next := fn(c.data)
	if c.equal(next, c.data) {
		c.mu.Unlock()
		return
	}
	c.data = next
	if c.dirtyLocked() {
		c.scheduleLocked()
	} else {
		c.stopTimerLocked()
	}
	st := c.stateLocked()
	fns := c.listenersLocked()
	c.mu.Unlock()

	notify(fns, st)
}

// Set replaces the current data.
func (c *Coordinator[T]) Set(v T) {
	c.Update(func(T) T { return v })
}

// SaveNow cancels the pending timer and saves immediately. It returns the
// save error, ErrOffline when the edit could not go anywhere, or nil when
// there was nothing to save.
func (c *Coordinator[T]) SaveNow(ctx context.Context) error {
	c.cancelTimer()
	return c.flush(ctx, "manual")
}

// Discard reverts to the initial value and clears the dirty state.
func (c *Coordinator[T]) Discard() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.data = c.initial
	c.saved = c.initial
	c.saveErr = nil
	st := c.stateLocked()
	fns := c.listenersLocked()
	c.mu.Unlock()

	notify(fns, st)
}

// State returns a snapshot.
func (c *Coordinator[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// OnChange registers fn for every state change and returns a function
// removing it. fn runs outside the coordinator's lock.
func (c *Coordinator[T]) OnChange(fn func(State[T])) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close saves any dirty data, then detaches from connectivity and
// lifecycle sources. Later edits are ignored.
func (c *Coordinator[T]) Close(ctx context.Context) error {
	c.cancelTimer()
	err := c.flush(ctx, "close")

	c.mu.Lock()
	c.closed = true
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	for _, u := range unsub {
		u()
	}
	c.bg.Wait()

	if errors.Is(err, ErrOffline) {
		logging.Warn().Str("autosave", c.name).Msg("Closing with unsaved changes while offline")
	}
	return err
}

// flush saves the current data if it is dirty.
func (c *Coordinator[T]) flush(ctx context.Context, trigger string) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.dirtyLocked() {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.data
	offline := c.conn != nil && !c.conn.Online()
	if offline && c.offlineSave == nil {
		c.mu.Unlock()
		logging.Debug().Str("autosave", c.name).Str("trigger", trigger).Msg("Offline, keeping changes until reconnect")
		return ErrOffline
	}
	c.saving = true
	st := c.stateLocked()
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns, st)

	var (
		stored T
		err    error
	)
	if offline {
		err = c.offlineSave(ctx, snapshot)
		stored = snapshot
	} else {
		stored, err = c.save(ctx, snapshot)
	}
	metrics.RecordAutoSave(trigger, err)

	c.mu.Lock()
	c.saving = false
	if err != nil {
		c.saveErr = err
		logging.Warn().Err(err).Str("autosave", c.name).Str("trigger", trigger).Msg("Auto-save failed")
	} else {
		now := time.Now()
		c.lastSaved = &now
		c.saveErr = nil
		c.queued = offline
		c.saved = stored
		if c.equal(c.data, snapshot) {
			c.data = stored
		} else if c.dirtyLocked() {
			// Edited while saving.
			c.scheduleLocked()
		}
	}
	st = c.stateLocked()
	fns = c.listenersLocked()
	c.mu.Unlock()
	notify(fns, st)

	return err
}

func (c *Coordinator[T]) retryInBackground() {
	c.mu.Lock()
	if c.closed || !c.dirtyLocked() {
		c.mu.Unlock()
		return
	}
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		_ = c.flush(context.Background(), "reconnect")
	}()
}

func (c *Coordinator[T]) dirtyLocked() bool {
	return !c.equal(c.data, c.saved)
}

func (c *Coordinator[T]) scheduleLocked() {
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *Coordinator[T]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Coordinator[T]) cancelTimer() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}

// fire runs a debounced save unless the timer was superseded.
func (c *Coordinator[T]) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	_ = c.flush(context.Background(), "debounce")
}

func (c *Coordinator[T]) stateLocked() State[T] {
	st := State[T]{
		Data:              c.data,
		IsSaving:          c.saving,
		HasUnsavedChanges: c.dirtyLocked(),
		SaveError:         c.saveErr,
		QueuedOffline:     c.queued,
	}
	if c.lastSaved != nil {
		t := *c.lastSaved
		st.LastSaved = &t
	}
	return st
}

func (c *Coordinator[T]) listenersLocked() []func(State[T]) {
	if len(c.listeners) == 0 {
		return nil
	}
	fns := make([]func(State[T]), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify[T any](fns []func(State[T]), st State[T]) {
	for _, fn := range fns {
		fn(st)
	}
}
