// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package events

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/studiosync/internal/autosave"
	"github.com/tomtom215/studiosync/internal/queue"
)

// ReplayEvent is published on TopicQueueReplay after every pass that did work.
type ReplayEvent struct {
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Deferred   int   `json:"deferred"`
	Terminal   int   `json:"terminal"`
	DurationMS int64 `json:"duration_ms"`
}

// TerminalEvent is published on TopicQueueTerminal once per dropped operation.
type TerminalEvent struct {
	OperationID string     `json:"operation_id"`
	Kind        queue.Kind `json:"kind"`
	Collection  string     `json:"collection"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error"`
}

// DegradedEvent is published on TopicStoreDegraded.
type DegradedEvent struct {
	Cause string    `json:"cause"`
	At    time.Time `json:"at"`
}

// AutoSaveFailedEvent is published on TopicAutoSaveFailure.
type AutoSaveFailedEvent struct {
	Name  string    `json:"name"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// QueueReporter returns a queue.Reporter that publishes each summary and
// every terminal failure in it.
func (b *Bus) QueueReporter() queue.Reporter {
	return queue.ReporterFunc(func(_ context.Context, s queue.Summary) {
		b.publishOrLog(TopicQueueReplay, ReplayEvent{
			Succeeded:  s.Succeeded,
			Failed:     s.Failed,
			Deferred:   s.Deferred,
			Terminal:   len(s.Terminal),
			DurationMS: s.Duration.Milliseconds(),
		})
		for _, tf := range s.Terminal {
			b.publishOrLog(TopicQueueTerminal, TerminalEvent{
				OperationID: tf.Operation.ID,
				Kind:        tf.Operation.Kind,
				Collection:  tf.Operation.Collection,
				Attempts:    tf.Operation.Attempts,
				Error:       tf.Error,
			})
		}
	})
}

// StoreDegraded is a store degraded hook.
func (b *Bus) StoreDegraded(cause error) {
	ev := DegradedEvent{At: time.Now().UTC()}
	if cause != nil {
		ev.Cause = cause.Error()
	}
	b.publishOrLog(TopicStoreDegraded, ev)
}

// WatchAutoSave publishes an event each time c enters a failed save.
// The returned function stops watching.
func WatchAutoSave[T any](b *Bus, name string, c *autosave.Coordinator[T]) func() {
	var (
		mu      sync.Mutex
		lastErr error
	)
	return c.OnChange(func(st autosave.State[T]) {
		mu.Lock()
		defer mu.Unlock()
		if st.SaveError != nil && st.SaveError != lastErr {
			b.publishOrLog(TopicAutoSaveFailure, AutoSaveFailedEvent{
				Name:  name,
				Error: st.SaveError.Error(),
				At:    time.Now().UTC(),
			})
		}
		lastErr = st.SaveError
	})
}
