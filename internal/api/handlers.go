// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/studiosync/internal/queue"
	"github.com/tomtom215/studiosync/internal/validation"
)

// maxEnqueueBody caps POST /v1/queue bodies.
const maxEnqueueBody = 1 << 20

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Status        string            `json:"status"`
	Online        bool              `json:"online"`
	StoreBackend  string            `json:"store_backend"`
	StoreDegraded bool              `json:"store_degraded"`
	Breakers      map[string]string `json:"breakers,omitempty"`
}

// Health reports "degraded" while the store runs on its memory fallback
// or any breaker is open. It always answers 200: the process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := HealthStatus{Status: "ok"}
	if h.deps.Conn != nil {
		st.Online = h.deps.Conn.Online()
	}
	if h.deps.Store != nil {
		st.StoreBackend = h.deps.Store.BackendName()
		st.StoreDegraded = h.deps.Store.Degraded()
		if st.StoreDegraded {
			st.Status = "degraded"
		}
	}
	if len(h.deps.Breakers) > 0 {
		st.Breakers = make(map[string]string, len(h.deps.Breakers))
		for _, b := range h.deps.Breakers {
			state := b.State()
			st.Breakers[b.Name()] = state
			if state == "open" {
				st.Status = "degraded"
			}
		}
	}
	newResponseWriter(w, r).OK(st)
}

// QueueStatus is the body of GET /v1/queue.
type QueueStatus struct {
	queue.Stats
	Operations []queue.Operation `json:"operations,omitempty"`
}

// QueueStats returns queue statistics. ?operations=true also lists the
// pending operations in replay order, without their auth context.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.deps.Queue == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeUnavailable, "queue is not configured")
		return
	}

	stats, err := h.deps.Queue.Stats(r.Context())
	if err != nil {
		rw.Internal(err)
		return
	}
	body := QueueStatus{Stats: stats}

	if r.URL.Query().Get("operations") == "true" {
		ops, err := h.deps.Queue.Pending(r.Context())
		if err != nil {
			rw.Internal(err)
			return
		}
		for i := range ops {
			ops[i] = ops[i].WithoutAuth()
		}
		body.Operations = ops
	}
	rw.OK(body)
}

// EnqueueRequest is the body of POST /v1/queue.
type EnqueueRequest struct {
	Kind       queue.Kind        `json:"kind" validate:"required,oneof=CREATE UPDATE DELETE"`
	Collection string            `json:"collection" validate:"required,collection"`
	Payload    json.RawMessage   `json:"payload"`
	Auth       map[string]string `json:"auth,omitempty"`
}

// Enqueue records an operation and answers 202 with its ID.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.deps.Queue == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeUnavailable, "queue is not configured")
		return
	}

	var req EnqueueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnqueueBody))
	if err := dec.Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.APIError(http.StatusBadRequest, verr.ToAPIError())
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("null")
	}

	var opts []queue.EnqueueOption
	if len(req.Auth) > 0 {
		opts = append(opts, queue.WithAuth(req.Auth))
	}
	id, err := h.deps.Queue.Enqueue(r.Context(), req.Kind, req.Collection, req.Payload, opts...)
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		rw.APIError(http.StatusBadRequest, verr.ToAPIError())
	case errors.Is(err, queue.ErrClosed):
		rw.Error(http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case err != nil:
		rw.Internal(err)
	default:
		rw.Accepted(map[string]string{"id": id})
	}
}

// Replay runs one replay pass and returns its summary. A pass already in
// progress answers 409.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.deps.Queue == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeUnavailable, "queue is not configured")
		return
	}

	summary, err := h.deps.Queue.ReplayAll(r.Context())
	switch {
	case errors.Is(err, queue.ErrReplayInProgress):
		rw.Error(http.StatusConflict, ErrCodeConflict, err.Error())
	case err != nil:
		rw.Internal(err)
	default:
		rw.OK(summary)
	}
}

// ImageStats returns image cache statistics.
func (h *Handler) ImageStats(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.deps.Images == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeUnavailable, "image cache is not configured")
		return
	}
	rw.OK(h.deps.Images.Stats())
}

// InvalidateUser drops every cached record owned by {ownerID}.
func (h *Handler) InvalidateUser(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.deps.ReadThrough == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeUnavailable, "read-through cache is not configured")
		return
	}

	owner := chi.URLParam(r, "ownerID")
	if owner == "" {
		rw.BadRequest("owner ID is required")
		return
	}
	n, err := h.deps.ReadThrough.InvalidateUser(r.Context(), owner)
	if err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(map[string]int{"removed": n})
}
