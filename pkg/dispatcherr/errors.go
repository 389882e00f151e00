/*
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcherr models the error kinds the dispatcher must
// distinguish: a thin wrapper that tags an underlying error as retryable
// and optionally pins a retry-after hint, versus a fatal ProgrammingError
// that must never be retried.
package dispatcherr

import "time"

// RetriableError marks an error as safe to retry: optimistic-lock
// conflicts and transport/API failures are both modeled this way. The
// dispatcher does not catch these — it lets them surface so the watch
// source applies the event's retry policy; the only wrapper behavior
// that matters to the dispatcher itself is that it must NOT call
// gencache.MarkProcessed when one occurs.
type RetriableError struct {
	err        error
	retryAfter *time.Duration
}

// NewRetriableError wraps err as retryable. retryAfter, if non-nil,
// overrides whatever delay the event's retry policy would otherwise have
// produced for this attempt.
func NewRetriableError(err error, retryAfter *time.Duration) RetriableError {
	return RetriableError{err: err, retryAfter: retryAfter}
}

func (e RetriableError) Error() string {
	return e.err.Error()
}

// Unwrap exposes the underlying error to errors.Is/errors.As.
func (e RetriableError) Unwrap() error {
	return e.err
}

// RetryAfter returns the caller-pinned retry delay, if any.
func (e RetriableError) RetryAfter() *time.Duration {
	return e.retryAfter
}

// ConflictError is a RetriableError raised specifically by a façade
// replaceWithLock precondition failure. A subsequent watch event carrying
// a fresh snapshot supersedes it.
type ConflictError struct {
	RetriableError
}

// NewConflictError wraps err as an optimistic-lock conflict.
func NewConflictError(err error) ConflictError {
	return ConflictError{RetriableError: NewRetriableError(err, nil)}
}

// TransportError is a RetriableError raised by a façade network or server
// failure.
type TransportError struct {
	RetriableError
}

// NewTransportError wraps err as a transport/API failure.
func NewTransportError(err error) TransportError {
	return TransportError{RetriableError: NewRetriableError(err, nil)}
}

// ProgrammingError is fatal and must never be retried: a nil verdict
// resource, a missing UID, or any other contract violation by the
// callback or façade.
type ProgrammingError struct {
	msg string
}

// NewProgrammingError constructs a fatal, non-retriable error.
func NewProgrammingError(msg string) ProgrammingError {
	return ProgrammingError{msg: msg}
}

func (e ProgrammingError) Error() string {
	return e.msg
}
