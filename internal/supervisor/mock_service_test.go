// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// mockService fails its first runs, then runs until canceled.
type mockService struct {
	name     string
	starts   atomic.Int32
	failures int32
}

func newMockService(name string, failures int) *mockService {
	return &mockService{name: name, failures: int32(failures)}
}

func (m *mockService) Serve(ctx context.Context) error {
	if n := m.starts.Add(1); n <= m.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }
