// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualNotifiesOnTransitionsOnly(t *testing.T) {
	m := NewManual(false)

	var got []bool
	unsubscribe := m.Subscribe(func(online bool) { got = append(got, online) })

	m.Set(true)
	m.Set(true)
	m.Set(false)
	unsubscribe()
	unsubscribe()
	m.Set(true)

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("notifications = %v, want [true false]", got)
	}
	if !m.Online() {
		t.Error("Online() = false, want true")
	}
}

func TestManualSubscriberOrder(t *testing.T) {
	m := NewManual(false)
	var order []int
	for i := 0; i < 5; i++ {
		m.Subscribe(func(bool) { order = append(order, i) })
	}
	m.Set(true)
	for i, v := range order {
		if v != i {
			t.Fatalf("subscribers called in order %v", order)
		}
	}
}

func TestProberTracksServer(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := NewProber(srv.URL, time.Hour, time.Second)
	var transitions atomic.Int32
	p.Subscribe(func(bool) { transitions.Add(1) })

	ctx := context.Background()
	if !p.Probe(ctx) {
		t.Fatal("expected online for 204")
	}

	status.Store(http.StatusServiceUnavailable)
	if p.Probe(ctx) {
		t.Fatal("expected offline for 503")
	}

	status.Store(http.StatusUnauthorized)
	if !p.Probe(ctx) {
		t.Fatal("a 401 still proves the backend is reachable")
	}
	if transitions.Load() != 2 {
		t.Errorf("transitions = %d, want 2", transitions.Load())
	}
}

func TestProberUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProber(url, time.Hour, 200*time.Millisecond)
	if p.Probe(context.Background()) {
		t.Error("expected offline for a closed server")
	}
	if p.Online() {
		t.Error("Online() should reflect the failed probe")
	}
}

func TestProberServeStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(srv.URL, 10*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if !p.Online() {
		t.Error("cancellation must not flip the state to offline")
	}
}
