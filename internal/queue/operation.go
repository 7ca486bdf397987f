// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package queue

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Collection is the reserved store collection holding queued operations.
// Add it to the store schema before constructing a Queue.
const Collection = "offline_operations"

// Kind is the remote mutation an operation performs.
type Kind string

// Operation kinds.
const (
	KindCreate Kind = "CREATE"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// Operation is a mutation recorded while the remote could not be reached.
type Operation struct {
	ID         string            `json:"id" validate:"required,uuid"`
	Kind       Kind              `json:"kind" validate:"required,oneof=CREATE UPDATE DELETE"`
	Collection string            `json:"collection" validate:"required,collection,ne=offline_operations"`
	Payload    json.RawMessage   `json:"payload"`
	Auth       map[string]string `json:"auth,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`

	// Attempts counts failed replays only.
	Attempts      int       `json:"attempts" validate:"gte=0"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// WithoutAuth returns a copy of op with its credentials removed, for
// reporting outside the executor.
func (op Operation) WithoutAuth() Operation {
	op.Auth = nil
	return op
}

// RemoteExecutor applies an operation to the remote system. Returning an
// error marked with retry.Permanent fails the operation without further
// attempts.
type RemoteExecutor interface {
	Execute(ctx context.Context, op Operation) error
}

// ExecutorFunc adapts a function to RemoteExecutor.
type ExecutorFunc func(ctx context.Context, op Operation) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, op Operation) error { return f(ctx, op) }

// EnqueueOption configures Enqueue.
type EnqueueOption func(*Operation)

// WithAuth attaches credentials or session context the executor needs to
// replay the operation on behalf of the user who made it.
func WithAuth(auth map[string]string) EnqueueOption {
	return func(op *Operation) {
		if len(auth) == 0 {
			return
		}
		op.Auth = make(map[string]string, len(auth))
		for k, v := range auth {
			op.Auth[k] = v
		}
	}
}
