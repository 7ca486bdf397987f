// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package services adapts studiosync components to suture.Service.
package services

import (
	"context"
	"fmt"
)

// StartStopper is a component with its own background goroutine, such as
// queue.ReplayLoop.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// StartStopService runs a StartStopper under suture: Serve starts it,
// waits for ctx, then stops it and waits for its goroutine.
type StartStopService struct {
	component StartStopper
	name      string
}

// NewStartStopService wraps component. name identifies it in supervisor logs.
func NewStartStopService(name string, component StartStopper) *StartStopService {
	return &StartStopService{component: component, name: name}
}

// Serve implements suture.Service. A failed Start is returned so suture
// restarts the service with backoff.
func (s *StartStopService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()
	s.component.Stop()

	return ctx.Err()
}

func (s *StartStopService) String() string {
	return s.name
}
