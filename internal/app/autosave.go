// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package app

import (
	"context"

	"github.com/tomtom215/studiosync/internal/autosave"
	"github.com/tomtom215/studiosync/internal/events"
	"github.com/tomtom215/studiosync/internal/queue"
)

// NewAutoSave returns a coordinator for one entity edited in collection.
// Saves go through save while online. Offline they become UPDATE
// operations in the queue, replayed on reconnect. Failed saves are
// published on the event bus.
func NewAutoSave[T any](a *App, collection, name string, initial T, save autosave.SaveFunc[T]) *autosave.Coordinator[T] {
	c := autosave.New(initial, save,
		autosave.WithName[T](name),
		autosave.WithDebounce[T](a.Config.AutoSave.Debounce),
		autosave.WithConnectivity[T](a.Conn),
		autosave.WithLifecycle[T](a.Lifecycle),
		autosave.WithOfflineSave(func(ctx context.Context, v T) error {
			_, err := a.Queue.Enqueue(ctx, queue.KindUpdate, collection, v)
			return err
		}),
	)
	events.WatchAutoSave(a.Events, name, c)
	return c
}
