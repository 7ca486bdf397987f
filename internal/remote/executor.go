// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package remote replays queued operations against the studio backend's
// JSON API.
//
// Operation kinds map to methods on <base>/<collection>:
//
//	CREATE -> POST
//	UPDATE -> PATCH
//	DELETE -> DELETE
//
// The operation ID is sent as Idempotency-Key so a replay that times out
// after the server applied it is not applied twice.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/studiosync/internal/queue"
	"github.com/tomtom215/studiosync/internal/retry"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Executor is an HTTP queue.RemoteExecutor.
type Executor struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewExecutor creates an Executor. token, when set, is sent as a bearer
// token unless the operation carries its own "token" auth entry.
func NewExecutor(baseURL, token string, timeout time.Duration) *Executor {
	return &Executor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Execute sends op. Client errors other than 408 and 429 are permanent.
func (e *Executor) Execute(ctx context.Context, op queue.Operation) error {
	method, err := methodFor(op.Kind)
	if err != nil {
		return retry.Permanent(err)
	}

	endpoint := e.baseURL + "/" + url.PathEscape(op.Collection)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(op.Payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", op.ID)
	if token := e.tokenFor(op); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range op.Auth {
		if k != "token" {
			req.Header.Set("X-Studiosync-"+k, v)
		}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := fmt.Errorf("%s %s failed with status %d: %s", method, op.Collection, resp.StatusCode, strings.TrimSpace(string(body)))
	if isPermanentStatus(resp.StatusCode) {
		return retry.Permanent(statusErr)
	}
	return statusErr
}

func (e *Executor) tokenFor(op queue.Operation) string {
	if t := op.Auth["token"]; t != "" {
		return t
	}
	return e.token
}

func methodFor(kind queue.Kind) (string, error) {
	switch kind {
	case queue.KindCreate:
		return http.MethodPost, nil
	case queue.KindUpdate:
		return http.MethodPatch, nil
	case queue.KindDelete:
		return http.MethodDelete, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", kind)
	}
}

func isPermanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
