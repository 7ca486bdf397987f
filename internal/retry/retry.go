// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package retry provides a bounded retry combinator with exponential
// backoff, shared by the offline queue and the network call sites.
//
//	err := retry.Do(ctx, retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}, func(ctx context.Context) error {
//	    return client.Fetch(ctx, url)
//	})
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// DefaultMaxDelay caps Policy.Delay when MaxDelay is zero.
const DefaultMaxDelay = 5 * time.Minute

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, the first one included.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the wait after the first failure.
	BaseDelay time.Duration

	// MaxDelay caps the wait. Zero means DefaultMaxDelay.
	MaxDelay time.Duration

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: DefaultMaxDelay}
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	// 2^62 overflows any useful duration
	if attempt > 62 {
		return maxDelay
	}

	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d < 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs op until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. The last error from op is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; ; attempt++ {
		var v T
		v, err = op(ctx)
		if err == nil {
			return v, nil
		}
		if IsPermanent(err) {
			var pe *permanentError
			errors.As(err, &pe)
			return zero, pe.err
		}
		if attempt >= attempts || ctx.Err() != nil {
			return zero, err
		}

		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
