// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"studiosync.yaml",
	"studiosync.yml",
	"/etc/studiosync/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:        "badger",
			Path:          "data/studiosync",
			SweepInterval: 10 * time.Minute,
		},
		Queue: QueueConfig{
			MaxRetries:     3,
			BaseDelay:      time.Second,
			MaxDelay:       5 * time.Minute,
			ReplayInterval: 30 * time.Second,
			ExecuteTimeout: 10 * time.Second,
		},
		AutoSave: AutoSaveConfig{
			Debounce: 2 * time.Second,
		},
		Images: ImagesConfig{
			MaxBytes:           50 << 20,
			MaxItems:           200,
			MaxAge:             30 * time.Minute,
			Strategy:           "lru",
			SweepInterval:      5 * time.Minute,
			FetchTimeout:       10 * time.Second,
			PreloadConcurrency: 3,
			PreloadDelay:       100 * time.Millisecond,
		},
		Prefetch: PrefetchConfig{
			FastSpeed: 5,
			SlowSpeed: 1,
			BaseRows:  2,
			MaxRows:   8,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8787",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from three layers:
//  1. Default()
//  2. the first YAML file found (CONFIG_PATH, then DefaultConfigPaths)
//  3. environment variables listed in envMappings
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"store_driver":         "store.driver",
	"store_path":           "store.path",
	"store_sync_writes":    "store.sync_writes",
	"store_sweep_interval": "store.sweep_interval",

	"queue_max_retries":     "queue.max_retries",
	"queue_base_delay":      "queue.base_delay",
	"queue_max_delay":       "queue.max_delay",
	"queue_replay_interval": "queue.replay_interval",
	"queue_execute_timeout": "queue.execute_timeout",

	"autosave_debounce": "autosave.debounce",

	"image_cache_max_bytes":     "images.max_bytes",
	"image_cache_max_items":     "images.max_items",
	"image_cache_max_age":       "images.max_age",
	"image_cache_strategy":      "images.strategy",
	"image_cache_sweep":         "images.sweep_interval",
	"image_fetch_timeout":       "images.fetch_timeout",
	"image_preload_concurrency": "images.preload_concurrency",
	"image_preload_delay":       "images.preload_delay",

	"prefetch_fast_speed": "prefetch.fast_speed",
	"prefetch_slow_speed": "prefetch.slow_speed",
	"prefetch_base_rows":  "prefetch.base_rows",
	"prefetch_max_rows":   "prefetch.max_rows",

	"connectivity_probe_url":      "connectivity.probe_url",
	"connectivity_probe_interval": "connectivity.probe_interval",
	"connectivity_probe_timeout":  "connectivity.probe_timeout",

	"remote_base_url":         "remote.base_url",
	"remote_token":            "remote.token",
	"remote_timeout":          "remote.timeout",
	"remote_breaker_failures": "remote.breaker_failures",
	"remote_breaker_timeout":  "remote.breaker_timeout",

	"admin_enabled": "admin.enabled",
	"admin_addr":    "admin.addr",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped variables return "" and are ignored.
//
//	STORE_DRIVER         -> store.driver
//	IMAGE_CACHE_STRATEGY -> images.strategy
//	LOG_LEVEL            -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
