// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/studiosync/internal/logging"
)

// Validate checks the configuration for values the components cannot run with.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validatePrefetch(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "badger", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required when STORE_DRIVER=%s", c.Store.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be badger, sqlite or memory, got %q", c.Store.Driver)
	}
	if c.Store.SweepInterval <= 0 {
		return fmt.Errorf("STORE_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	q := c.Queue
	if q.MaxRetries < 1 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be at least 1, got %d", q.MaxRetries)
	}
	if q.BaseDelay <= 0 {
		return fmt.Errorf("QUEUE_BASE_DELAY must be positive")
	}
	if q.MaxDelay < q.BaseDelay {
		return fmt.Errorf("QUEUE_MAX_DELAY (%s) must not be less than QUEUE_BASE_DELAY (%s)", q.MaxDelay, q.BaseDelay)
	}
	if q.ReplayInterval <= 0 {
		return fmt.Errorf("QUEUE_REPLAY_INTERVAL must be positive")
	}
	if q.ExecuteTimeout <= 0 {
		return fmt.Errorf("QUEUE_EXECUTE_TIMEOUT must be positive")
	}
	if c.AutoSave.Debounce <= 0 {
		return fmt.Errorf("AUTOSAVE_DEBOUNCE must be positive")
	}
	return nil
}

func (c *Config) validateImages() error {
	im := c.Images
	if im.MaxBytes <= 0 {
		return fmt.Errorf("IMAGE_CACHE_MAX_BYTES must be positive")
	}
	if im.MaxItems <= 0 {
		return fmt.Errorf("IMAGE_CACHE_MAX_ITEMS must be positive")
	}
	if im.MaxAge <= 0 {
		return fmt.Errorf("IMAGE_CACHE_MAX_AGE must be positive")
	}
	switch strings.ToLower(im.Strategy) {
	case "lru", "lfu", "fifo", "priority":
	default:
		return fmt.Errorf("IMAGE_CACHE_STRATEGY must be lru, lfu, fifo or priority, got %q", im.Strategy)
	}
	if im.PreloadConcurrency < 1 {
		return fmt.Errorf("IMAGE_PRELOAD_CONCURRENCY must be at least 1")
	}
	if im.FetchTimeout <= 0 {
		return fmt.Errorf("IMAGE_FETCH_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validatePrefetch() error {
	p := c.Prefetch
	if p.SlowSpeed < 0 || p.FastSpeed <= p.SlowSpeed {
		return fmt.Errorf("PREFETCH_FAST_SPEED (%g) must exceed PREFETCH_SLOW_SPEED (%g)", p.FastSpeed, p.SlowSpeed)
	}
	if p.BaseRows < 0 || p.MaxRows < p.BaseRows {
		return fmt.Errorf("PREFETCH_MAX_ROWS (%d) must be at least PREFETCH_BASE_ROWS (%d)", p.MaxRows, p.BaseRows)
	}
	return nil
}

func (c *Config) validateRemote() error {
	if err := validateOptionalURL(c.Remote.BaseURL, "REMOTE_BASE_URL"); err != nil {
		return err
	}
	if err := validateOptionalURL(c.Connectivity.ProbeURL, "CONNECTIVITY_PROBE_URL"); err != nil {
		return err
	}
	if c.Connectivity.ProbeURL != "" && c.Connectivity.ProbeInterval <= 0 {
		return fmt.Errorf("CONNECTIVITY_PROBE_INTERVAL must be positive")
	}
	if c.Remote.BreakerFailures == 0 {
		return fmt.Errorf("REMOTE_BREAKER_FAILURES must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateOptionalURL(raw, name string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
