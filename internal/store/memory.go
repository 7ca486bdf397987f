// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"context"
	"sort"
	"sync"
)

type memoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string]*Record
	meta *meta
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string]map[string]*Record)}
}

func openMemory(context.Context, *Schema) (backend, error) {
	return newMemoryBackend(), nil
}

func (m *memoryBackend) name() string { return "memory" }

func (m *memoryBackend) loadMeta(context.Context) (*meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.meta == nil {
		return nil, nil
	}
	cp := *m.meta
	return &cp, nil
}

func (m *memoryBackend) saveMeta(_ context.Context, md *meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *md
	m.meta = &cp
	return nil
}

func (m *memoryBackend) get(_ context.Context, collection, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.data[collection][key]; ok {
		return r.clone(), nil
	}
	return nil, nil
}

func (m *memoryBackend) put(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.data[r.Collection]
	if !ok {
		col = make(map[string]*Record)
		m.data[r.Collection] = col
	}
	col[r.ID] = r.clone()
	return nil
}

func (m *memoryBackend) delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], key)
	return nil
}

func (m *memoryBackend) list(_ context.Context, collection, owner string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.data[collection]))
	for _, r := range m.data[collection] {
		if owner != "" && r.OwnerID != owner {
			continue
		}
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryBackend) drop(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, collection)
	return nil
}

func (m *memoryBackend) close() error { return nil }
