// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package config loads Studiosync configuration from defaults, an optional
// YAML file and environment variables (in increasing priority).
package config

import "time"

// Config is the root configuration.
type Config struct {
	Store        StoreConfig        `koanf:"store"`
	Queue        QueueConfig        `koanf:"queue"`
	AutoSave     AutoSaveConfig     `koanf:"autosave"`
	Images       ImagesConfig       `koanf:"images"`
	Prefetch     PrefetchConfig     `koanf:"prefetch"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Remote       RemoteConfig       `koanf:"remote"`
	Admin        AdminConfig        `koanf:"admin"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// StoreConfig configures the durable store.
type StoreConfig struct {
	// Driver is badger, sqlite or memory.
	Driver string `koanf:"driver"`

	// Path is the Badger directory or the SQLite file.
	Path string `koanf:"path"`

	// SyncWrites fsyncs every Badger commit.
	SyncWrites bool `koanf:"sync_writes"`

	// SweepInterval is how often expired records are purged.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// QueueConfig configures the offline operation queue.
type QueueConfig struct {
	MaxRetries     int           `koanf:"max_retries"`
	BaseDelay      time.Duration `koanf:"base_delay"`
	MaxDelay       time.Duration `koanf:"max_delay"`
	ReplayInterval time.Duration `koanf:"replay_interval"`
	ExecuteTimeout time.Duration `koanf:"execute_timeout"`
}

// AutoSaveConfig configures auto-save coordinators.
type AutoSaveConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// ImagesConfig configures the image memory cache.
type ImagesConfig struct {
	MaxBytes           int64         `koanf:"max_bytes"`
	MaxItems           int           `koanf:"max_items"`
	MaxAge             time.Duration `koanf:"max_age"`
	Strategy           string        `koanf:"strategy"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	FetchTimeout       time.Duration `koanf:"fetch_timeout"`
	PreloadConcurrency int           `koanf:"preload_concurrency"`
	PreloadDelay       time.Duration `koanf:"preload_delay"`
}

// PrefetchConfig configures the adaptive prefetcher.
type PrefetchConfig struct {
	// FastSpeed and SlowSpeed are in pixels per millisecond.
	FastSpeed float64 `koanf:"fast_speed"`
	SlowSpeed float64 `koanf:"slow_speed"`

	// BaseRows is how many rows beyond the viewport are prefetched at rest.
	BaseRows int `koanf:"base_rows"`

	// MaxRows caps the window under fast scroll.
	MaxRows int `koanf:"max_rows"`
}

// ConnectivityConfig configures online detection.
type ConnectivityConfig struct {
	// ProbeURL is polled to detect connectivity. Empty means the process
	// assumes it is online until told otherwise.
	ProbeURL      string        `koanf:"probe_url"`
	ProbeInterval time.Duration `koanf:"probe_interval"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout"`
}

// RemoteConfig configures the HTTP backend used for replay.
type RemoteConfig struct {
	BaseURL         string        `koanf:"base_url"`
	Token           string        `koanf:"token"`
	Timeout         time.Duration `koanf:"timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// AdminConfig configures the admin HTTP surface.
type AdminConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
