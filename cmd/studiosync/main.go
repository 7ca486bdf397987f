// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Command studiosync runs the offline-first sync daemon for a studio
// back-office: the durable store, the offline operation queue with its
// replay loop, the image cache, and the admin HTTP API.
//
// # Configuration
//
// Layers, highest priority first:
//   - environment variables (STORE_DRIVER, REMOTE_BASE_URL, ADMIN_ADDR, ...)
//   - a YAML file (CONFIG_PATH or studiosync.yaml)
//   - built-in defaults
//
// # Signals
//
// SIGINT and SIGTERM are delivered to auto-save coordinators as a page-hide
// event, so pending edits are flushed, and then stop the supervisor tree.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/studiosync/internal/app"
	"github.com/tomtom215/studiosync/internal/config"
	"github.com/tomtom215/studiosync/internal/lifecycle"
	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/store"
	"github.com/tomtom215/studiosync/internal/supervisor"
)

// collections are the record collections the back-office caches.
var collections = []store.Collection{
	{Name: "clients", OwnerIndex: true},
	{Name: "bookings", OwnerIndex: true},
	{Name: "sessions", OwnerIndex: true},
	{Name: "galleries", OwnerIndex: true},
	{Name: "invoices", OwnerIndex: true},
}

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("studiosync exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("store_driver", cfg.Store.Driver).
		Str("remote", cfg.Remote.BaseURL).
		Bool("admin", cfg.Admin.Enabled).
		Msg("Starting studiosync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, collections)
	if err != nil {
		return err
	}
	defer a.Close()

	stopForwarding := lifecycle.ForwardSignals(ctx, a.Lifecycle, syscall.SIGTERM, syscall.SIGINT)
	defer stopForwarding()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	a.Supervise(tree)
	errCh := tree.ServeBackground(ctx)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		err = <-errCh
	case err = <-errCh:
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop in time")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("studiosync stopped")
	return nil
}
