// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package app is the composition root: it builds every component once from
// a Config and hands the shared instances to whoever needs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/studiosync/internal/api"
	"github.com/tomtom215/studiosync/internal/breaker"
	"github.com/tomtom215/studiosync/internal/config"
	"github.com/tomtom215/studiosync/internal/connectivity"
	"github.com/tomtom215/studiosync/internal/events"
	"github.com/tomtom215/studiosync/internal/images"
	"github.com/tomtom215/studiosync/internal/lifecycle"
	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/prefetch"
	"github.com/tomtom215/studiosync/internal/queue"
	"github.com/tomtom215/studiosync/internal/readthrough"
	"github.com/tomtom215/studiosync/internal/remote"
	"github.com/tomtom215/studiosync/internal/retry"
	"github.com/tomtom215/studiosync/internal/store"
	"github.com/tomtom215/studiosync/internal/supervisor"
	"github.com/tomtom215/studiosync/internal/supervisor/services"
)

// SchemaVersion is the version of the store layout declared by Build.
// Bump it, with a migration, when collections are renamed.
const SchemaVersion = 1

// App holds the shared component instances.
type App struct {
	Config *config.Config

	Store       *store.DB
	Conn        connectivity.Observer
	Lifecycle   *lifecycle.Emitter
	Events      *events.Bus
	Queue       *queue.Queue
	ReplayLoop  *queue.ReplayLoop
	ReadThrough *readthrough.Cache
	Images      *images.Cache
	Prefetch    *prefetch.Prefetcher

	RemoteBreaker *breaker.Breaker
	FetchBreaker  *breaker.Breaker

	prober *connectivity.Prober
}

// Build opens the store with collections plus the queue's own collection
// and wires the rest of the components on top of it.
func Build(ctx context.Context, cfg *config.Config, collections []store.Collection) (*App, error) {
	a := &App{
		Config:    cfg,
		Events:    events.NewBus(),
		Lifecycle: lifecycle.NewEmitter(),
	}

	db, err := openStore(ctx, cfg.Store, collections, a.Events)
	if err != nil {
		_ = a.Events.Close()
		return nil, err
	}
	a.Store = db

	a.Conn, a.prober = newConnectivity(cfg)

	a.RemoteBreaker = breaker.New(breaker.Settings{
		Name:                "remote-executor",
		ConsecutiveFailures: cfg.Remote.BreakerFailures,
		Timeout:             cfg.Remote.BreakerTimeout,
	})
	a.FetchBreaker = breaker.New(breaker.Settings{
		Name:                "fetch-through",
		ConsecutiveFailures: cfg.Remote.BreakerFailures,
		Timeout:             cfg.Remote.BreakerTimeout,
	})

	exec := remote.NewExecutor(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)
	a.Queue, err = queue.New(db, exec, a.Conn,
		queue.WithMaxRetries(cfg.Queue.MaxRetries),
		queue.WithBackoff(cfg.Queue.BaseDelay, cfg.Queue.MaxDelay),
		queue.WithExecuteTimeout(cfg.Queue.ExecuteTimeout),
		queue.WithBreaker(a.RemoteBreaker),
		queue.WithReporter(a.Events.QueueReporter()),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create queue: %w", err)
	}
	a.ReplayLoop = queue.NewReplayLoop(a.Queue, cfg.Queue.ReplayInterval)

	a.ReadThrough = readthrough.New(db, a.Conn,
		readthrough.WithBreaker(a.FetchBreaker),
		readthrough.WithFetchTimeout(cfg.Remote.Timeout),
	)

	a.Images, err = newImageCache(cfg.Images)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Prefetch = prefetch.New(a.Images, prefetch.Config{
		FastSpeed: cfg.Prefetch.FastSpeed,
		SlowSpeed: cfg.Prefetch.SlowSpeed,
		BaseRows:  cfg.Prefetch.BaseRows,
		MaxRows:   cfg.Prefetch.MaxRows,
	})

	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, collections []store.Collection, bus *events.Bus) (*store.DB, error) {
	schema := store.Schema{
		Version:     SchemaVersion,
		Collections: append([]store.Collection{{Name: queue.Collection}}, collections...),
	}

	opts := []store.Option{store.WithDegradedHook(bus.StoreDegraded)}
	switch cfg.Driver {
	case "badger":
		opts = append(opts, store.WithBadger(cfg.Path, cfg.SyncWrites))
	case "sqlite":
		opts = append(opts, store.WithSQLite(cfg.Path))
	default:
		opts = append(opts, store.WithMemory())
	}

	db := store.New(schema, opts...)
	if err := db.Open(ctx); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logging.Info().
		Str("backend", db.BackendName()).
		Bool("degraded", db.Degraded()).
		Int("collections", len(schema.Collections)).
		Msg("Store opened")
	return db, nil
}

// newConnectivity probes ProbeURL when set. Without a remote backend there
// is nothing to replay to, so the queue stays offline and keeps operations.
func newConnectivity(cfg *config.Config) (connectivity.Observer, *connectivity.Prober) {
	switch {
	case cfg.Remote.BaseURL == "":
		logging.Warn().Msg("REMOTE_BASE_URL not set, queued operations will not be replayed")
		return connectivity.NewManual(false), nil
	case cfg.Connectivity.ProbeURL != "":
		p := connectivity.NewProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout)
		return p, p
	default:
		return connectivity.NewManual(true), nil
	}
}

func newImageCache(cfg config.ImagesConfig) (*images.Cache, error) {
	strategy, err := images.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("image cache: %w", err)
	}
	fetcher := images.NewHTTPFetcher(
		&http.Client{Timeout: cfg.FetchTimeout},
		retry.Policy{MaxAttempts: 2, BaseDelay: 250 * time.Millisecond},
		images.DefaultMaxFetchBytes,
	)
	return images.New(fetcher, images.Config{
		MaxBytes:           cfg.MaxBytes,
		MaxItems:           cfg.MaxItems,
		MaxAge:             cfg.MaxAge,
		Strategy:           strategy,
		FetchTimeout:       cfg.FetchTimeout,
		PreloadConcurrency: cfg.PreloadConcurrency,
		PreloadDelay:       cfg.PreloadDelay,
	}), nil
}

// Handler returns the admin API.
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Store:       a.Store,
		Queue:       a.Queue,
		ReadThrough: a.ReadThrough,
		Images:      a.Images,
		Conn:        a.Conn,
		Breakers:    []*breaker.Breaker{a.RemoteBreaker, a.FetchBreaker},
	})
}

// Supervise adds the background services to tree.
func (a *App) Supervise(tree *supervisor.Tree) {
	tree.AddStorageService(store.NewSweeper(a.Store, a.Config.Store.SweepInterval))

	tree.AddSyncService(services.NewStartStopService("queue-replay-loop", a.ReplayLoop))
	if a.prober != nil {
		tree.AddSyncService(a.prober)
	}

	tree.AddMediaService(images.NewSweeper(a.Images, a.Config.Images.SweepInterval))

	if a.Config.Admin.Enabled {
		srv := api.NewServer(a.Config.Admin.Addr, a.Handler())
		tree.AddAPIService(services.NewHTTPServerService("admin-http", srv, services.DefaultShutdownTimeout))
	}
}

// Close releases every component. The supervisor tree must have stopped.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.Images != nil {
		a.Images.Close()
	}
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	errs = append(errs, a.Events.Close())
	if err := errors.Join(errs...); err != nil {
		logging.Error().Err(err).Msg("Error during shutdown")
	}
}
