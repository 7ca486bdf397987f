// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

import (
	"fmt"
	"strings"
)

// Priority ranks images for the Priority eviction strategy and the
// preload order.
type Priority int8

// Priorities, lowest first.
const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParsePriority parses low, normal or high.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// Strategy chooses the eviction victim. The set of strategies is closed:
// LRU, LFU, FIFO and PriorityFirst.
type Strategy interface {
	// Name is the configuration name.
	Name() string

	// evictsBefore reports whether a should be evicted before b.
	evictsBefore(a, b *entry) bool
}

// Eviction strategies.
var (
	LRU           Strategy = lruStrategy{}
	LFU           Strategy = lfuStrategy{}
	FIFO          Strategy = fifoStrategy{}
	PriorityFirst Strategy = priorityStrategy{}
)

// ParseStrategy maps lru, lfu, fifo or priority to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lru":
		return LRU, nil
	case "lfu":
		return LFU, nil
	case "fifo":
		return FIFO, nil
	case "priority":
		return PriorityFirst, nil
	default:
		return nil, fmt.Errorf("unknown eviction strategy %q", name)
	}
}

// Least recently accessed first.
type lruStrategy struct{}

func (lruStrategy) Name() string { return "lru" }

func (lruStrategy) evictsBefore(a, b *entry) bool {
	if !a.lastAccessed.Equal(b.lastAccessed) {
		return a.lastAccessed.Before(b.lastAccessed)
	}
	return a.seq < b.seq
}

// Fewest accesses first, least recent among equals.
type lfuStrategy struct{}

func (lfuStrategy) Name() string { return "lfu" }

func (lfuStrategy) evictsBefore(a, b *entry) bool {
	if a.accessCount != b.accessCount {
		return a.accessCount < b.accessCount
	}
	return lruStrategy{}.evictsBefore(a, b)
}

// Oldest insertion first.
type fifoStrategy struct{}

func (fifoStrategy) Name() string { return "fifo" }

func (fifoStrategy) evictsBefore(a, b *entry) bool {
	if !a.inserted.Equal(b.inserted) {
		return a.inserted.Before(b.inserted)
	}
	return a.seq < b.seq
}

// Lowest priority first, oldest insertion among equals.
type priorityStrategy struct{}

func (priorityStrategy) Name() string { return "priority" }

func (priorityStrategy) evictsBefore(a, b *entry) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}
