// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package testinfra provides test doubles shared across package tests.
package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Capture is one request received by a MockBackend.
type Capture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// MockBackend is an HTTP backend that records every request and answers
// with a per-path status, 200 by default.
type MockBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []Capture
	statuses map[string]int
}

// NewMockBackend starts a MockBackend closed at test cleanup.
func NewMockBackend(t *testing.T) *MockBackend {
	t.Helper()
	m := &MockBackend{statuses: make(map[string]int)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.captures = append(m.captures, Capture{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	status, ok := m.statuses[r.URL.Path]
	m.mu.Unlock()

	if !ok {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

// URL returns the backend base URL.
func (m *MockBackend) URL() string { return m.Server.URL }

// SetStatus makes requests to path answer status.
func (m *MockBackend) SetStatus(path string, status int) {
	m.mu.Lock()
	m.statuses[path] = status
	m.mu.Unlock()
}

// Captures returns a copy of the requests received so far.
func (m *MockBackend) Captures() []Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Capture(nil), m.captures...)
}

// WaitForCaptures waits until at least n requests arrived.
func (m *MockBackend) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		count := len(m.captures)
		m.mu.Unlock()
		if count >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
