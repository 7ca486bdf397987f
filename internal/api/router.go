// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package api is the admin HTTP surface: health, Prometheus metrics,
// queue inspection and replay, image cache stats, and per-user cache
// invalidation.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/studiosync/internal/breaker"
	"github.com/tomtom215/studiosync/internal/connectivity"
	"github.com/tomtom215/studiosync/internal/images"
	"github.com/tomtom215/studiosync/internal/queue"
	"github.com/tomtom215/studiosync/internal/readthrough"
	"github.com/tomtom215/studiosync/internal/store"
)

// Deps are the components the admin API reports on and drives.
type Deps struct {
	Store       *store.DB
	Queue       *queue.Queue
	ReadThrough *readthrough.Cache
	Images      *images.Cache
	Conn        connectivity.Observer
	Breakers    []*breaker.Breaker
}

// Handler serves the admin API.
type Handler struct {
	deps Deps
}

// NewRouter returns the admin API routes.
func NewRouter(deps Deps) http.Handler {
	h := &Handler{deps: deps}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.QueueStats)
			r.Post("/", h.Enqueue)
			r.Post("/replay", h.Replay)
		})
		r.Get("/images/stats", h.ImageStats)
		r.Delete("/cache/users/{ownerID}", h.InvalidateUser)
	})

	return r
}

// NewServer returns an http.Server for the admin API.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
