// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package queue

import (
	"context"
	"time"

	"github.com/tomtom215/studiosync/internal/breaker"
	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/metrics"
	"github.com/tomtom215/studiosync/internal/retry"
)

// replayResult is the outcome of executing a single operation.
type replayResult int

const (
	replayResultSuccess replayResult = iota
	replayResultFailed
	replayResultTerminal
	replayResultRejected
	replayResultCanceled
)

// ReplayAll executes every due operation. Operations are grouped by
// collection and run oldest first; once one operation of a collection
// fails or is not yet due, the rest of that collection waits for the next
// pass. Offline, it returns an empty Summary. A concurrent call returns
// ErrReplayInProgress.
func (q *Queue) ReplayAll(ctx context.Context) (Summary, error) {
	if !q.replaying.CompareAndSwap(false, true) {
		return Summary{}, ErrReplayInProgress
	}
	summary, err := q.replay(ctx)
	q.replaying.Store(false)

	if q.rerun.Swap(false) && err == nil {
		q.Trigger()
	}
	return summary, err
}

func (q *Queue) replay(ctx context.Context) (Summary, error) {
	if !q.conn.Online() {
		return Summary{}, nil
	}

	start := time.Now()
	ops, err := q.Pending(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, group := range groupByCollection(ops) {
		q.replayGroup(ctx, group, &summary)
	}
	summary.Duration = time.Since(start)

	q.finishPass(ctx, summary, len(ops))
	return summary, nil
}

func (q *Queue) replayGroup(ctx context.Context, group []Operation, summary *Summary) {
	for i := range group {
		op := group[i]
		if ctx.Err() != nil || !q.isReadyForRetry(op) {
			summary.Deferred += len(group) - i
			return
		}

		switch q.attempt(ctx, &op) {
		case replayResultSuccess:
			summary.Succeeded++
			continue
		case replayResultFailed:
			summary.Failed++
		case replayResultTerminal:
			summary.Terminal = append(summary.Terminal, TerminalFailure{Operation: op.WithoutAuth(), Error: op.LastError})
		case replayResultRejected, replayResultCanceled:
			summary.Deferred++
		}
		summary.Deferred += len(group) - i - 1
		return
	}
}

// isReadyForRetry reports whether the backoff since the last failed
// attempt has elapsed.
func (q *Queue) isReadyForRetry(op Operation) bool {
	if op.Attempts == 0 || op.LastAttemptAt.IsZero() {
		return true
	}
	return q.db.Now().Sub(op.LastAttemptAt) >= q.policy.Delay(op.Attempts)
}

func (q *Queue) attempt(ctx context.Context, op *Operation) replayResult {
	execCtx, cancel := context.WithTimeout(ctx, q.timeout)
	err := q.execute(execCtx, *op)
	cancel()

	if err == nil {
		q.remove(ctx, op.ID)
		return replayResultSuccess
	}
	if breaker.IsRejected(err) {
		return replayResultRejected
	}
	if ctx.Err() != nil {
		return replayResultCanceled
	}

	op.Attempts++
	op.LastAttemptAt = q.db.Now()
	op.LastError = err.Error()

	if retry.IsPermanent(err) || op.Attempts >= q.policy.MaxAttempts {
		logging.Warn().
			Err(err).
			Str("operation_id", op.ID).
			Str("collection", op.Collection).
			Int("attempts", op.Attempts).
			Int("max_retries", q.policy.MaxAttempts).
			Msg("Queued operation failed permanently, removing")
		q.remove(ctx, op.ID)
		return replayResultTerminal
	}

	logging.Debug().
		Err(err).
		Str("operation_id", op.ID).
		Int("attempt", op.Attempts).
		Dur("next_in", q.policy.Delay(op.Attempts)).
		Msg("Queued operation failed, will retry")
	if err := q.db.SetItem(ctx, Collection, op.ID, *op); err != nil {
		logging.Error().Err(err).Str("operation_id", op.ID).Msg("Failed to record attempt")
	}
	return replayResultFailed
}

func (q *Queue) execute(ctx context.Context, op Operation) error {
	if q.breaker == nil {
		return q.exec.Execute(ctx, op)
	}
	return q.breaker.Execute(func() error { return q.exec.Execute(ctx, op) })
}

func (q *Queue) finishPass(ctx context.Context, summary Summary, seen int) {
	metrics.RecordReplayPass(summary.Duration, summary.Succeeded, summary.Failed, len(summary.Terminal), summary.Deferred)
	metrics.SetQueuePending(seen - summary.Succeeded - len(summary.Terminal))

	q.mu.Lock()
	q.lastPassAt = time.Now()
	q.lastSummary = summary
	q.succeeded += summary.Succeeded
	q.terminal += len(summary.Terminal)
	q.mu.Unlock()

	if summary.Empty() {
		return
	}

	logging.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("deferred", summary.Deferred).
		Int("terminal", len(summary.Terminal)).
		Dur("duration", summary.Duration).
		Msg("Queue replay complete")

	for _, r := range q.reporters {
		r.Report(ctx, summary)
	}
}

// groupByCollection splits ops, already sorted oldest first, into
// per-collection groups ordered by each collection's oldest operation.
func groupByCollection(ops []Operation) [][]Operation {
	index := make(map[string]int)
	var groups [][]Operation
	for _, op := range ops {
		i, ok := index[op.Collection]
		if !ok {
			i = len(groups)
			index[op.Collection] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], op)
	}
	return groups
}
