// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/studiosync/internal/logging"
)

// Prober is an Observer that polls a URL. Any HTTP response below 500
// counts as online; transport errors and 5xx count as offline.
type Prober struct {
	*Manual
	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
}

// NewProber creates a prober that starts in the online state and probes
// url every interval once served.
func NewProber(url string, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		Manual:   NewManual(true),
		url:      url,
		interval: interval,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Probe performs one check and updates the state.
func (p *Prober) Probe(parent context.Context) bool {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	online := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, http.NoBody)
	if err == nil {
		var resp *http.Response
		resp, err = p.client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			online = resp.StatusCode < http.StatusInternalServerError
		}
	}
	if err != nil {
		logging.Debug().Err(err).Str("url", p.url).Msg("Connectivity probe failed")
	}

	// Shutting down is not an outage.
	if parent.Err() != nil {
		return p.Online()
	}
	p.Set(online)
	return online
}

// Serve probes immediately and then on every interval until ctx is done.
// It implements suture.Service.
func (p *Prober) Serve(ctx context.Context) error {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

func (p *Prober) String() string { return "connectivity-prober" }
