// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package images is the process-wide in-memory image cache.
//
// The cache is bounded by total bytes and item count; when an insert would
// exceed either, entries are evicted by the configured Strategy until the
// new image fits. Images older than MaxAge are never served: a stale hit
// is evicted and refetched, and a Sweeper removes the rest periodically.
// Concurrent requests for one URL share a single fetch.
//
// Preload and PreloadByDirection queue background fetches on a small
// worker pool whose concurrency and pacing the prefetcher adjusts with
// Tune.
package images
