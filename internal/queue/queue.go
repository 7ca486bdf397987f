// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/studiosync/internal/breaker"
	"github.com/tomtom215/studiosync/internal/connectivity"
	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
	"github.com/tomtom215/studiosync/internal/retry"
	"github.com/tomtom215/studiosync/internal/store"
	"github.com/tomtom215/studiosync/internal/validation"
)

// Defaults.
const (
	DefaultMaxRetries     = 3
	DefaultExecuteTimeout = 10 * time.Second
)

// Errors returned by the queue.
var (
	ErrReplayInProgress = errors.New("replay already in progress")
	ErrNoCollection     = errors.New("store schema does not declare " + Collection)
	ErrClosed           = errors.New("queue is closed")
)

// Queue persists operations while offline and replays them in order when
// the remote is reachable.
type Queue struct {
	db        *store.DB
	exec      RemoteExecutor
	conn      connectivity.Observer
	breaker   *breaker.Breaker
	policy    retry.Policy
	timeout   time.Duration
	reporters []Reporter
	autoKick  bool

	replaying atomic.Bool
	rerun     atomic.Bool
	closed    atomic.Bool
	detached  sync.WaitGroup

	mu          sync.Mutex
	lastPassAt  time.Time
	lastSummary Summary
	succeeded   int
	terminal    int
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets how many failed attempts drop an operation.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.policy.MaxAttempts = n
		}
	}
}

// WithBackoff sets the wait after the first failure and its cap.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(q *Queue) {
		q.policy.BaseDelay = base
		q.policy.MaxDelay = maxDelay
	}
}

// WithExecuteTimeout bounds each Execute call.
func WithExecuteTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithBreaker routes Execute calls through b. A rejection by an open
// breaker defers the operation without counting an attempt.
func WithBreaker(b *breaker.Breaker) Option {
	return func(q *Queue) { q.breaker = b }
}

// WithReporter adds a receiver for pass summaries.
func WithReporter(r Reporter) Option {
	return func(q *Queue) { q.reporters = append(q.reporters, r) }
}

// WithoutEnqueueReplay stops Enqueue from starting a replay while online.
func WithoutEnqueueReplay() Option {
	return func(q *Queue) { q.autoKick = false }
}

// New creates a Queue persisting into db. The db schema must declare
// Collection.
func New(db *store.DB, exec RemoteExecutor, conn connectivity.Observer, opts ...Option) (*Queue, error) {
	if !slices.Contains(db.Collections(), Collection) {
		return nil, ErrNoCollection
	}
	q := &Queue{
		db:       db,
		exec:     exec,
		conn:     conn,
		policy:   retry.Policy{MaxAttempts: DefaultMaxRetries, BaseDelay: time.Second, MaxDelay: retry.DefaultMaxDelay},
		timeout:  DefaultExecuteTimeout,
		autoKick: true,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue records an operation and returns its ID. While online it also
// starts a replay in the background.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, collection string, payload any, opts ...EnqueueOption) (string, error) {
	if q.closed.Load() {
		return "", ErrClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate operation id: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	op := Operation{
		ID:         id.String(),
		Kind:       kind,
		Collection: collection,
		Payload:    data,
		EnqueuedAt: q.db.Now(),
	}
	for _, opt := range opts {
		opt(&op)
	}
	if verr := validation.ValidateStruct(&op); verr != nil {
		return "", fmt.Errorf("invalid operation: %w", verr)
	}

	if err := q.db.SetItem(ctx, Collection, op.ID, op); err != nil {
		return "", fmt.Errorf("persist operation: %w", err)
	}
	metrics.RecordEnqueue(string(kind))

	logging.Ctx(ctx).Debug().
		Str("operation_id", op.ID).
		Str("kind", string(kind)).
		Str("collection", collection).
		Msg("Operation queued")

	if q.autoKick && q.conn.Online() {
		q.Trigger()
	}
	return op.ID, nil
}

// Trigger starts a replay in the background. When a pass is already
// running, another pass follows it.
func (q *Queue) Trigger() {
	if q.closed.Load() {
		return
	}
	q.detached.Add(1)
	go func() {
		defer q.detached.Done()
		q.replayRequested(context.Background())
	}()
}

// replayRequested runs a pass for a trigger rather than a direct caller.
func (q *Queue) replayRequested(ctx context.Context) {
	_, err := q.ReplayAll(ctx)
	switch {
	case errors.Is(err, ErrReplayInProgress):
		q.requestRerun()
	case err != nil:
		logging.Error().Err(err).Msg("Queue replay failed")
	}
}

// requestRerun asks the running pass for another one. The running pass may
// have finished before rerun was set, so a pass is started here if none runs.
func (q *Queue) requestRerun() {
	q.rerun.Store(true)
	if !q.replaying.Load() && q.rerun.Swap(false) {
		q.Trigger()
	}
}

// Pending returns queued operations oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Operation, error) {
	recs, err := q.db.GetAllItems(ctx, Collection)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}

	ops := make([]Operation, 0, len(recs))
	for _, r := range recs {
		var op Operation
		if err := r.Decode(&op); err != nil {
			logging.Error().Err(err).Str("operation_id", r.ID).Msg("Dropping unreadable queued operation")
			q.remove(ctx, r.ID)
			continue
		}
		ops = append(ops, op)
	}
	// UUIDv7 IDs sort in issue order even when the wall clock steps back.
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops, nil
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.db.Count(ctx, Collection)
}

// Stats returns a snapshot of the queue.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	ops, err := q.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}

	q.mu.Lock()
	st := Stats{
		Pending:        len(ops),
		Replaying:      q.replaying.Load(),
		LastPassAt:     q.lastPassAt,
		LastSummary:    q.lastSummary,
		TotalSucceeded: q.succeeded,
		TotalTerminal:  q.terminal,
	}
	q.mu.Unlock()

	for _, op := range ops {
		if op.Attempts > st.MaxAttempts {
			st.MaxAttempts = op.Attempts
		}
	}
	if len(ops) > 0 {
		st.OldestEnqueued = ops[0].EnqueuedAt
	}
	return st, nil
}

// Close stops new enqueues and triggers and waits for background replays.
func (q *Queue) Close() {
	q.closed.Store(true)
	q.detached.Wait()
}

func (q *Queue) remove(ctx context.Context, id string) {
	if err := q.db.RemoveItem(ctx, Collection, id); err != nil {
		logging.Error().Err(err).Str("operation_id", id).Msg("Failed to remove queued operation")
	}
}
