// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tomtom215/studiosync/internal/retry"
)

// DefaultMaxFetchBytes caps a single download.
const DefaultMaxFetchBytes = 256 << 20

// HTTPFetcher fetches images over HTTP, retrying transient failures.
type HTTPFetcher struct {
	httpClient *http.Client
	policy     retry.Policy
	maxBytes   int64
}

// NewHTTPFetcher creates an HTTPFetcher. Bodies longer than maxBytes are
// rejected; zero means DefaultMaxFetchBytes.
func NewHTTPFetcher(client *http.Client, policy retry.Policy, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	return &HTTPFetcher{httpClient: client, policy: policy, maxBytes: maxBytes}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return retry.DoValue(ctx, f.policy, func(ctx context.Context) ([]byte, error) {
		return f.fetchOnce(ctx, url)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("request failed with status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(statusErr)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("image larger than %d bytes", f.maxBytes))
	}
	return data, nil
}
