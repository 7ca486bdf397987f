// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Record is one cached value inside a collection.
type Record struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	OwnerID    string          `json:"owner_id,omitempty"`

	// TTL is kept so Touch can restart the expiry window.
	TTL time.Duration `json:"ttl,omitempty"`
}

// Expired reports whether the record is logically absent at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Decode unmarshals the record data into v.
func (r *Record) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", r.Collection, r.ID, err)
	}
	return nil
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Data = append(json.RawMessage(nil), r.Data...)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// Collection declares one partition of the store.
type Collection struct {
	Name string `json:"name"`

	// OwnerIndex maintains a secondary index on OwnerID so owner-filtered
	// listing and RemoveByOwner do not scan the whole collection.
	OwnerIndex bool `json:"owner_index,omitempty"`
}

// Migration upgrades stored data to Version. It runs before collections
// that are no longer declared are dropped, so it can still read them.
type Migration struct {
	Version int
	Apply   func(m *Migrator) error
}

// Schema is the declared layout of a store.
type Schema struct {
	Version     int
	Collections []Collection
	Migrations  []Migration
}

// ErrInvalidSchema is returned by Open for a malformed Schema.
var ErrInvalidSchema = errors.New("invalid schema")

func (s *Schema) validate() error {
	if s.Version < 1 {
		return fmt.Errorf("%w: version must be at least 1, got %d", ErrInvalidSchema, s.Version)
	}
	if len(s.Collections) == 0 {
		return fmt.Errorf("%w: at least one collection is required", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if c.Name == "" || strings.ContainsRune(c.Name, 0) {
			return fmt.Errorf("%w: invalid collection name %q", ErrInvalidSchema, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate collection %q", ErrInvalidSchema, c.Name)
		}
		seen[c.Name] = true
	}
	for _, m := range s.Migrations {
		if m.Version < 2 || m.Version > s.Version || m.Apply == nil {
			return fmt.Errorf("%w: migration for version %d is out of range", ErrInvalidSchema, m.Version)
		}
	}
	return nil
}

// meta is what a backend persists about the schema it was last opened with.
type meta struct {
	Version     int          `json:"version"`
	Collections []Collection `json:"collections"`
}

// Errors returned by DB operations.
var (
	ErrEmptyKey          = errors.New("key cannot be empty")
	ErrUnknownCollection = errors.New("collection is not declared in the schema")
	ErrInvalidTTL        = errors.New("ttl must be positive")
	ErrClosed            = errors.New("store is closed")

	// ErrVersionMismatch means the persisted store was written by a newer
	// schema version than the one declared.
	ErrVersionMismatch = errors.New("stored schema version is newer than declared")
)
