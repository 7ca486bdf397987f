// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type fakeComponent struct {
	startErr error
	started  atomic.Int32
	stopped  atomic.Int32
	running  atomic.Bool
}

func (f *fakeComponent) Start(context.Context) error {
	f.started.Add(1)
	if f.startErr != nil {
		return f.startErr
	}
	f.running.Store(true)
	return nil
}

func (f *fakeComponent) Stop() {
	f.stopped.Add(1)
	f.running.Store(false)
}

func (f *fakeComponent) IsRunning() bool { return f.running.Load() }

var _ suture.Service = (*StartStopService)(nil)

func TestStartStopServiceLifecycle(t *testing.T) {
	comp := &fakeComponent{}
	svc := NewStartStopService("queue-replay-loop", comp)
	if svc.String() != "queue-replay-loop" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !comp.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("component not started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	if comp.stopped.Load() != 1 || comp.IsRunning() {
		t.Errorf("stopped = %d, running = %v", comp.stopped.Load(), comp.IsRunning())
	}
}

func TestStartStopServiceStartFailure(t *testing.T) {
	boom := errors.New("boom")
	comp := &fakeComponent{startErr: boom}

	err := NewStartStopService("loop", comp).Serve(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Serve = %v, want %v", err, boom)
	}
	if comp.stopped.Load() != 0 {
		t.Error("Stop called after failed Start")
	}
}
