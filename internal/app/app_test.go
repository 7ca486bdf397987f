// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/studiosync/internal/config"
	"github.com/tomtom215/studiosync/internal/queue"
	"github.com/tomtom215/studiosync/internal/store"
	"github.com/tomtom215/studiosync/internal/supervisor"
	"github.com/tomtom215/studiosync/internal/testinfra"
)

type booking struct {
	ID    string `json:"id"`
	Notes string `json:"notes"`
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Admin.Enabled = false
	return cfg
}

func build(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg, []store.Collection{{Name: "bookings", OwnerIndex: true}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestBuildWithoutRemoteStaysOffline(t *testing.T) {
	a := build(t, testConfig())

	if a.Conn.Online() {
		t.Error("online without a remote backend")
	}
	if got := a.Store.Collections(); len(got) != 2 {
		t.Errorf("collections = %v", got)
	}
	if a.Store.BackendName() != "memory" {
		t.Errorf("backend = %q", a.Store.BackendName())
	}
}

func TestBuildRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Images.Strategy = "random"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestAutoSaveQueuesOfflineEdits(t *testing.T) {
	a := build(t, testConfig())
	ctx := context.Background()

	c := NewAutoSave(a, "bookings", "booking-form", booking{ID: "b1"},
		func(context.Context, booking) (booking, error) {
			return booking{}, errors.New("save must not run offline")
		})
	defer func() { _ = c.Close(ctx) }()

	c.Update(func(b booking) booking {
		b.Notes = "bring tripod"
		return b
	})
	if err := c.SaveNow(ctx); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	if st := c.State(); !st.QueuedOffline || st.HasUnsavedChanges {
		t.Errorf("state = %+v", st)
	}

	ops, err := a.Queue.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Kind != queue.KindUpdate || ops[0].Collection != "bookings" {
		t.Fatalf("pending = %+v", ops)
	}
}

func TestHandlerServesHealth(t *testing.T) {
	a := build(t, testConfig())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSuperviseRunsAndStops(t *testing.T) {
	a := build(t, testConfig())

	tree := supervisor.NewTree(slog.New(slog.NewTextHandler(io.Discard, nil)), supervisor.TreeConfig{ShutdownTimeout: time.Second})
	a.Supervise(tree)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !a.ReplayLoop.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("replay loop not started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	if a.ReplayLoop.IsRunning() {
		t.Error("replay loop still running")
	}
}

func TestEnqueueOnlineReachesBackend(t *testing.T) {
	backend := testinfra.NewMockBackend(t)
	cfg := testConfig()
	cfg.Remote.BaseURL = backend.URL()
	cfg.Remote.Token = "studio-token"
	a := build(t, cfg)

	if !a.Conn.Online() {
		t.Fatal("expected online with a remote backend and no probe")
	}
	id, err := a.Queue.Enqueue(context.Background(), queue.KindCreate, "bookings", booking{ID: "b9"})
	if err != nil {
		t.Fatal(err)
	}

	if !backend.WaitForCaptures(1, 2*time.Second) {
		t.Fatal("operation never reached the backend")
	}
	got := backend.Captures()[0]
	if got.Method != http.MethodPost || got.Path != "/bookings" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
	if got.Headers.Get("Idempotency-Key") != id || got.Headers.Get("Authorization") != "Bearer studio-token" {
		t.Errorf("headers = %v", got.Headers)
	}
}
