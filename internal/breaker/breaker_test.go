// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/studiosync/internal/metrics"
	"github.com/tomtom215/studiosync/internal/retry"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	b := New(Settings{Name: "test-trip", ConsecutiveFailures: 2, Timeout: 30 * time.Millisecond})
	boom := errors.New("503")

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d error = %v, want boom", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !IsRejected(err) || called {
		t.Fatalf("open breaker should reject without calling, err = %v, called = %v", err, called)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-trip")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}

	time.Sleep(50 * time.Millisecond)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe error = %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed after successful probe", b.State())
	}
}

func TestPermanentAndCanceledDoNotTrip(t *testing.T) {
	b := New(Settings{Name: "test-permanent", ConsecutiveFailures: 1})

	_ = b.Execute(func() error { return retry.Permanent(errors.New("422")) })
	_ = b.Execute(func() error { return context.Canceled })

	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed", b.State())
	}
}

func TestCallReturnsValue(t *testing.T) {
	b := New(Settings{Name: "test-call"})
	v, err := Call(b, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("Call() = %d, %v", v, err)
	}
	if b.Name() != "test-call" {
		t.Errorf("Name() = %q", b.Name())
	}
}
