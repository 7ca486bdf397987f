// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package metrics holds the Prometheus instrumentation shared by the store,
// queue, image cache, prefetcher and circuit breakers.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Durable store

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiosync_store_operation_duration_seconds",
			Help:    "Duration of durable store operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 0.1ms to ~1.6s
		},
		[]string{"operation", "backend"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_store_errors_total",
			Help: "Total number of durable store backend errors",
		},
		[]string{"operation", "backend"},
	)

	StoreExpiredPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_store_expired_purged_total",
			Help: "Total number of expired records purged",
		},
		[]string{"collection"},
	)

	StoreDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiosync_store_degraded",
			Help: "1 when the durable store fell back to memory-only mode",
		},
	)

	// Read-through cache

	ReadThroughResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_readthrough_results_total",
			Help: "Read-through query outcomes",
		},
		[]string{"collection", "result"}, // network, cache_offline, cache_fallback, unavailable, error
	)

	// Offline queue

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_queue_enqueued_total",
			Help: "Total number of operations enqueued",
		},
		[]string{"kind"},
	)

	QueueReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_queue_replayed_total",
			Help: "Replayed operations by outcome",
		},
		[]string{"outcome"}, // succeeded, failed, terminal, deferred
	)

	QueuePasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiosync_queue_replay_passes_total",
			Help: "Total number of replay passes executed",
		},
	)

	QueuePassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studiosync_queue_replay_pass_duration_seconds",
			Help:    "Duration of a replay pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiosync_queue_pending_operations",
			Help: "Operations waiting for replay",
		},
	)

	// Auto-save

	AutoSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_autosave_saves_total",
			Help: "Auto-save attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// Image cache

	ImageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiosync_image_cache_hits_total",
			Help: "Image cache hits",
		},
	)

	ImageCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiosync_image_cache_misses_total",
			Help: "Image cache misses",
		},
	)

	ImageCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_image_cache_evictions_total",
			Help: "Image cache evictions by reason",
		},
		[]string{"reason"}, // capacity, expired, clear
	)

	ImageCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiosync_image_cache_bytes",
			Help: "Bytes currently resident in the image cache",
		},
	)

	ImageCacheItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiosync_image_cache_items",
			Help: "Items currently resident in the image cache",
		},
	)

	ImageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studiosync_image_fetch_duration_seconds",
			Help:    "Image fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Prefetcher

	PrefetchStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_prefetch_strategy_selected_total",
			Help: "Prefetch strategy selections",
		},
		[]string{"strategy"},
	)

	PrefetchSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiosync_prefetch_urls_submitted_total",
			Help: "URLs submitted to the image preloader",
		},
	)

	// Circuit breakers

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "studiosync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_circuit_breaker_requests_total",
			Help: "Requests through circuit breakers",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiosync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Connectivity

	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiosync_online",
			Help: "1 when the backend is considered reachable",
		},
	)

	// Admin API

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiosync_api_request_duration_seconds",
			Help:    "Admin API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordStoreOperation records a store operation and its error, if any.
func RecordStoreOperation(operation, backend string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation, backend).Inc()
	}
}

// RecordExpiredPurged adds n purged records for a collection.
func RecordExpiredPurged(collection string, n int) {
	if n > 0 {
		StoreExpiredPurged.WithLabelValues(collection).Add(float64(n))
	}
}

// SetStoreDegraded flips the degraded gauge.
func SetStoreDegraded(degraded bool) {
	StoreDegraded.Set(boolToFloat(degraded))
}

// RecordReadThrough records a read-through outcome.
func RecordReadThrough(collection, result string) {
	ReadThroughResults.WithLabelValues(collection, result).Inc()
}

// RecordEnqueue records an enqueued operation.
func RecordEnqueue(kind string) {
	QueueEnqueued.WithLabelValues(kind).Inc()
}

// RecordReplayPass records the counts of one replay pass.
func RecordReplayPass(duration time.Duration, succeeded, failed, terminal, deferred int) {
	QueuePasses.Inc()
	QueuePassDuration.Observe(duration.Seconds())
	QueueReplayed.WithLabelValues("succeeded").Add(float64(succeeded))
	QueueReplayed.WithLabelValues("failed").Add(float64(failed))
	QueueReplayed.WithLabelValues("terminal").Add(float64(terminal))
	QueueReplayed.WithLabelValues("deferred").Add(float64(deferred))
}

// SetQueuePending sets the pending gauge.
func SetQueuePending(n int) {
	QueuePending.Set(float64(n))
}

// RecordAutoSave records one auto-save attempt.
func RecordAutoSave(trigger string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	AutoSaves.WithLabelValues(trigger, outcome).Inc()
}

// RecordImageLookup records a cache hit or miss.
func RecordImageLookup(hit bool) {
	if hit {
		ImageCacheHits.Inc()
	} else {
		ImageCacheMisses.Inc()
	}
}

// RecordImageEviction records an eviction.
func RecordImageEviction(reason string) {
	ImageCacheEvictions.WithLabelValues(reason).Inc()
}

// SetImageCacheUsage updates the residency gauges.
func SetImageCacheUsage(bytes int64, items int) {
	ImageCacheBytes.Set(float64(bytes))
	ImageCacheItems.Set(float64(items))
}

// RecordImageFetch records a fetch latency.
func RecordImageFetch(duration time.Duration) {
	ImageFetchDuration.Observe(duration.Seconds())
}

// RecordPrefetch records a strategy selection and the URLs submitted under it.
func RecordPrefetch(strategy string, submitted int) {
	PrefetchStrategy.WithLabelValues(strategy).Inc()
	PrefetchSubmitted.Add(float64(submitted))
}

// SetOnline sets the connectivity gauge.
func SetOnline(online bool) {
	Online.Set(boolToFloat(online))
}

// RecordAPIRequest records one admin API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
