// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/studiosync/internal/logging"
	"github.com/tomtom215/studiosync/internal/validation"
)

// Response is the envelope of every admin API response.
type Response struct {
	Success bool                 `json:"success"`
	Data    any                  `json:"data,omitempty"`
	Error   *validation.APIError `json:"error,omitempty"`
	Meta    Meta                 `json:"meta"`
}

// Meta carries request metadata.
type Meta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// responseWriter writes enveloped JSON responses.
type responseWriter struct {
	w     http.ResponseWriter
	r     *http.Request
	start time.Time
}

func newResponseWriter(w http.ResponseWriter, r *http.Request) *responseWriter {
	return &responseWriter{w: w, r: r, start: time.Now()}
}

func (rw *responseWriter) meta() Meta {
	return Meta{
		RequestID:  chimiddleware.GetReqID(rw.r.Context()),
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(rw.start).Milliseconds(),
	}
}

func (rw *responseWriter) success(status int, data any) {
	rw.writeJSON(status, Response{Success: true, Data: data, Meta: rw.meta()})
}

func (rw *responseWriter) OK(data any)       { rw.success(http.StatusOK, data) }
func (rw *responseWriter) Accepted(data any) { rw.success(http.StatusAccepted, data) }

func (rw *responseWriter) Error(status int, code, message string) {
	rw.APIError(status, &validation.APIError{Code: code, Message: message})
}

func (rw *responseWriter) APIError(status int, apiErr *validation.APIError) {
	rw.writeJSON(status, Response{Success: false, Error: apiErr, Meta: rw.meta()})
}

func (rw *responseWriter) BadRequest(message string) {
	rw.Error(http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Internal logs err and writes a 500 without leaking it.
func (rw *responseWriter) Internal(err error) {
	logging.Ctx(rw.r.Context()).Error().Err(err).Str("path", rw.r.URL.Path).Msg("Admin API request failed")
	rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "internal error")
}

func (rw *responseWriter) writeJSON(status int, v any) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(status)
	if err := json.NewEncoder(rw.w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
