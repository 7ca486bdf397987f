// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

//go:build unix

package lifecycle

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestForwardSignals(t *testing.T) {
	e := NewEmitter()
	events := make(chan Event, 1)
	e.Subscribe(func(ev Event) { events <- ev })

	stop := ForwardSignals(context.Background(), e, syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}
	select {
	case ev := <-events:
		if ev != PageHide {
			t.Errorf("event = %v, want pagehide", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not forwarded")
	}
}
