// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package queue

import (
	"context"
	"time"
)

// TerminalFailure is an operation dropped after its last allowed attempt.
type TerminalFailure struct {
	Operation Operation `json:"operation"`
	Error     string    `json:"error"`
}

// Summary is the outcome of one replay pass.
type Summary struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Deferred  int               `json:"deferred"`
	Terminal  []TerminalFailure `json:"terminal,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Empty reports whether the pass touched nothing.
func (s Summary) Empty() bool {
	return s.Succeeded == 0 && s.Failed == 0 && s.Deferred == 0 && len(s.Terminal) == 0
}

// Reporter receives the summary of every replay pass that did work.
type Reporter interface {
	Report(ctx context.Context, s Summary)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, s Summary)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, s Summary) { f(ctx, s) }

// Stats describes the queue for inspection.
type Stats struct {
	Pending        int       `json:"pending"`
	Replaying      bool      `json:"replaying"`
	OldestEnqueued time.Time `json:"oldest_enqueued,omitempty"`
	MaxAttempts    int       `json:"max_attempts"`
	LastPassAt     time.Time `json:"last_pass_at,omitempty"`
	LastSummary    Summary   `json:"last_summary"`
	TotalSucceeded int       `json:"total_succeeded"`
	TotalTerminal  int       `json:"total_terminal"`
}
