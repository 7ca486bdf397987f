// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package images

// evictionHeap is a min-heap of resident entries ordered by the cache's
// Strategy, so the next victim is always at the root. Callers hold the
// cache lock.
type evictionHeap struct {
	items    []*entry
	strategy Strategy
}

func (h *evictionHeap) Len() int { return len(h.items) }

func (h *evictionHeap) push(e *entry) {
	e.index = len(h.items)
	h.items = append(h.items, e)
	h.bubbleUp(e.index)
}

// peek returns the next victim without removing it.
func (h *evictionHeap) peek() *entry {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

func (h *evictionHeap) remove(e *entry) {
	if e.index < 0 || e.index >= len(h.items) || h.items[e.index] != e {
		return
	}
	h.removeAt(e.index)
}

func (h *evictionHeap) clear() {
	for _, e := range h.items {
		e.index = -1
	}
	h.items = h.items[:0]
}

func (h *evictionHeap) removeAt(i int) *entry {
	n := len(h.items) - 1
	e := h.items[i]
	e.index = -1

	if i == n {
		h.items = h.items[:n]
		return e
	}

	h.items[i] = h.items[n]
	h.items[i].index = i
	h.items = h.items[:n]
	h.fix(i)
	return e
}

// fix restores heap order after the entry at i changed.
func (h *evictionHeap) fix(i int) {
	if h.bubbleUp(i) {
		return
	}
	h.bubbleDown(i)
}

func (h *evictionHeap) less(i, j int) bool {
	return h.strategy.evictsBefore(h.items[i], h.items[j])
}

func (h *evictionHeap) bubbleUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (h *evictionHeap) bubbleDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			break
		}

		h.swap(i, smallest)
		i = smallest
	}
}

func (h *evictionHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
